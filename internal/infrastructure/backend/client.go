// Package backend is the HTTP client of the tracking store API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

var _ ports.TrackingBackend = (*Client)(nil)

const (
	DefaultTimeout = 5 * time.Second

	codeSessionNotStarted = "session_not_started"
)

// TokenSource returns the bearer token sent with every request.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that never changes.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// Config holds configuration for the tracking store client.
type Config struct {
	BaseURL string
	Tokens  TokenSource
	Timeout time.Duration
}

// Client calls the tracking store endpoints.
type Client struct {
	client  *http.Client
	baseURL string
	tokens  TokenSource
}

type positionRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewClient creates a tracking store client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		tokens:  cfg.Tokens,
	}
}

// Start opens the tracking session of deliveryID.
func (c *Client) Start(ctx context.Context, deliveryID string) error {
	return c.do(ctx, http.MethodPost, c.path(deliveryID, "start"), nil)
}

// PushPosition records the latest courier position.
func (c *Client) PushPosition(ctx context.Context, deliveryID string, pos domain.Coordinates) error {
	return c.do(ctx, http.MethodPut, c.path(deliveryID, "position"), positionRequest{
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
		Timestamp: time.Now().UTC(),
	})
}

// Delivered closes the tracking session.
func (c *Client) Delivered(ctx context.Context, deliveryID string) error {
	return c.do(ctx, http.MethodPost, c.path(deliveryID, "delivered"), nil)
}

func (c *Client) path(deliveryID, action string) string {
	return fmt.Sprintf("%s/tracking/%s/%s", c.baseURL, url.PathEscape(deliveryID), action)
}

// do sends the request. Failures match domain.ErrTrackingSessionRace when
// the store reports the session as not started and domain.ErrSyncTransport
// otherwise.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %w", domain.ErrSyncTransport, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", domain.ErrSyncTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("%w: token: %w", domain.ErrSyncTransport, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", domain.ErrSyncTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	_ = json.Unmarshal(raw, &er)
	if er.Code == codeSessionNotStarted {
		return fmt.Errorf("%w (status %d)", domain.ErrTrackingSessionRace, resp.StatusCode)
	}
	return fmt.Errorf("%w: tracking store error (status %d): %s", domain.ErrSyncTransport, resp.StatusCode, string(raw))
}
