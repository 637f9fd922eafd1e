package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

const defaultRouteTimeout = 8 * time.Second

// RouteProvider fetches a route on a best-effort basis.
type RouteProvider struct {
	router  ports.Router
	timeout time.Duration
	log     zerolog.Logger
}

// NewRouteProvider wraps router. A nil router always yields no route.
func NewRouteProvider(router ports.Router, timeout time.Duration, log zerolog.Logger) *RouteProvider {
	if timeout <= 0 {
		timeout = defaultRouteTimeout
	}
	return &RouteProvider{
		router:  router,
		timeout: timeout,
		log:     log.With().Str("component", "route_provider").Logger(),
	}
}

// ComputeRoute returns the route from → to, or nil when the provider fails
// or answers with an unusable geometry. A nil route is not an error.
func (p *RouteProvider) ComputeRoute(ctx context.Context, from, to domain.Coordinates) *domain.Route {
	if p.router == nil {
		metrics.RouteRequestsTotal.WithLabelValues("unavailable").Inc()
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	route, err := p.router.Route(ctx, from, to)
	if err != nil {
		metrics.RouteRequestsTotal.WithLabelValues("unavailable").Inc()
		p.log.Warn().Err(err).Msg("route unavailable, framing endpoints only")
		return nil
	}
	if !usable(route) {
		metrics.RouteRequestsTotal.WithLabelValues("unavailable").Inc()
		p.log.Warn().Err(domain.ErrRouteUnavailable).Msg("malformed route geometry discarded")
		return nil
	}

	metrics.RouteRequestsTotal.WithLabelValues("ok").Inc()
	return route
}

func usable(r *domain.Route) bool {
	if r == nil || len(r.Points) < 2 {
		return false
	}
	for _, p := range r.Points {
		if !p.Valid() {
			return false
		}
	}
	return true
}
