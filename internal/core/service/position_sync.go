package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

// DefaultSignificanceThreshold is about 11 m of latitude.
const DefaultSignificanceThreshold = 1e-4

// PushOutcome classifies the result of a position push.
type PushOutcome int

const (
	PushOK PushOutcome = iota
	// PushIgnored is the benign "session not started yet" race.
	PushIgnored
	// PushFailed is a transport or server failure. Tracking continues.
	PushFailed
)

func (o PushOutcome) String() string {
	switch o {
	case PushOK:
		return "ok"
	case PushIgnored:
		return "race"
	default:
		return "error"
	}
}

// ClassifyPushError maps a backend error to a PushOutcome.
func ClassifyPushError(err error) PushOutcome {
	switch {
	case err == nil:
		return PushOK
	case errors.Is(err, domain.ErrTrackingSessionRace):
		return PushIgnored
	default:
		return PushFailed
	}
}

// SyncConfig tunes a PositionSyncClient.
type SyncConfig struct {
	Threshold   float64
	RatePerSec  float64
	Burst       int
	PushTimeout time.Duration
}

// PositionSyncClient filters samples of one delivery and pushes the
// significant ones to the tracking backend. OnSample and Reset must be
// called from a single goroutine; pushes run in the background and report
// through the result callback.
type PositionSyncClient struct {
	deliveryID string
	backend    ports.TrackingBackend
	threshold  float64
	limiter    *rate.Limiter
	timeout    time.Duration
	log        zerolog.Logger
	now        func() time.Time

	// last is the last accepted sample, forwarded the last one pushed.
	// The significance filter compares against forwarded only.
	last      *domain.Coordinates
	forwarded *domain.Coordinates

	// onResult receives the outcome of every push, from the push goroutine.
	onResult func(domain.Coordinates, PushOutcome, error)
}

// NewPositionSyncClient builds a sync client for deliveryID.
func NewPositionSyncClient(deliveryID string, backend ports.TrackingBackend, cfg SyncConfig, log zerolog.Logger) *PositionSyncClient {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultSignificanceThreshold
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 5 * time.Second
	}
	return &PositionSyncClient{
		deliveryID: deliveryID,
		backend:    backend,
		threshold:  cfg.Threshold,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		timeout:    cfg.PushTimeout,
		now:        time.Now,
		log:        log.With().Str("component", "position_sync").Str("delivery_id", deliveryID).Logger(),
	}
}

// OnResult installs the push result callback.
func (c *PositionSyncClient) OnResult(fn func(domain.Coordinates, PushOutcome, error)) {
	c.onResult = fn
}

// OnSample applies the significance filter against the last forwarded
// position and, when the rate bound allows it, starts a push. It reports
// whether the sample was accepted. A throttled sample is accepted but does
// not move the filter baseline, so the next significant sample is still
// pushed. Pushes are never retried: the next accepted sample supersedes a
// failed one.
func (c *PositionSyncClient) OnSample(ctx context.Context, s domain.PositionSample) bool {
	if c.forwarded != nil && !s.Coordinates.DiffersFrom(*c.forwarded, c.threshold) {
		return false
	}
	pos := s.Coordinates
	c.last = &pos

	if !c.limiter.AllowN(c.now(), 1) {
		metrics.PositionPushesTotal.WithLabelValues("throttled").Inc()
		return true
	}
	c.forwarded = &pos
	go c.push(ctx, pos)
	return true
}

// Last returns the last accepted position.
func (c *PositionSyncClient) Last() (domain.Coordinates, bool) {
	if c.last == nil {
		return domain.Coordinates{}, false
	}
	return *c.last, true
}

// Reset discards the filter state at the end of a session.
func (c *PositionSyncClient) Reset() {
	c.last = nil
	c.forwarded = nil
}

func (c *PositionSyncClient) push(ctx context.Context, pos domain.Coordinates) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.backend.PushPosition(ctx, c.deliveryID, pos)
	metrics.PositionPushDuration.Observe(time.Since(start).Seconds())

	outcome := ClassifyPushError(err)
	metrics.PositionPushesTotal.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case PushIgnored:
		c.log.Debug().Err(err).Msg("tracking session not started yet, position dropped")
	case PushFailed:
		c.log.Warn().Err(err).Msg("position push failed")
	}

	if c.onResult != nil {
		c.onResult(pos, outcome, err)
	}
}
