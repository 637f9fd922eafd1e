// Package routing provides an OSRM adapter for route geometry.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

var _ ports.Router = (*OSRM)(nil)

const (
	DefaultBaseURL = "https://router.project-osrm.org"
	DefaultProfile = "driving"
	DefaultTimeout = 10 * time.Second
)

var errNoRoute = errors.New("osrm: no route")

// Config holds configuration for the OSRM client.
type Config struct {
	BaseURL string
	Profile string
	Timeout time.Duration
}

// OSRM computes routes with the /route/v1 service.
type OSRM struct {
	client  *http.Client
	baseURL string
	profile string
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			// GeoJSON LineString: [lng, lat] pairs.
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// NewOSRM creates an OSRM client.
func NewOSRM(cfg Config) *OSRM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OSRM{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		profile: cfg.Profile,
	}
}

// Route returns the best route from → to with its full geometry.
func (o *OSRM) Route(ctx context.Context, from, to domain.Coordinates) (*domain.Route, error) {
	endpoint := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=geojson",
		o.baseURL, o.profile, from.Lng, from.Lat, to.Lng, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("osrm error (status %d): %s", resp.StatusCode, string(body))
	}

	var rr routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rr.Code != "Ok" || len(rr.Routes) == 0 {
		return nil, fmt.Errorf("%w (code %q)", errNoRoute, rr.Code)
	}

	best := rr.Routes[0]
	route := &domain.Route{
		Points:          make([]domain.Coordinates, 0, len(best.Geometry.Coordinates)),
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
	}
	for _, pair := range best.Geometry.Coordinates {
		if len(pair) < 2 {
			return nil, fmt.Errorf("osrm: malformed coordinate %v", pair)
		}
		route.Points = append(route.Points, domain.Coordinates{Lat: pair[1], Lng: pair[0]})
	}
	return route, nil
}
