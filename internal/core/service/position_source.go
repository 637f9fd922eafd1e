package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

// SourceEvent is one item of a position stream: either a sample or a
// terminal error. The stream is closed after a terminal error or Stop.
type SourceEvent struct {
	Sample domain.PositionSample
	Err    error
}

// PositionSource turns the callback-based device watcher into a lazy,
// cancelable stream for one delivery.
type PositionSource struct {
	watcher     ports.LocationWatcher
	deliveryID  string
	fallbackAge time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	events  chan SourceEvent
}

// NewPositionSource returns a stopped source. fallbackAge is the relaxed
// maximum sample age used after a timeout.
func NewPositionSource(watcher ports.LocationWatcher, deliveryID string, fallbackAge time.Duration, log zerolog.Logger) *PositionSource {
	return &PositionSource{
		watcher:     watcher,
		deliveryID:  deliveryID,
		fallbackAge: fallbackAge,
		log:         log.With().Str("component", "position_source").Logger(),
	}
}

// Start begins watching with policy. Calling Start while running returns the
// existing stream instead of opening a second watch.
func (p *PositionSource) Start(policy domain.SamplePolicy) <-chan SourceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.log.Debug().Str("delivery_id", p.deliveryID).Msg("position source already running")
		return p.events
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.events = make(chan SourceEvent)

	go p.run(ctx, policy, p.events, p.done)
	return p.events
}

// Running reports whether a watch is active.
func (p *PositionSource) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop releases the device watch and returns once the stream is closed.
func (p *PositionSource) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *PositionSource) run(ctx context.Context, policy domain.SamplePolicy, out chan<- SourceEvent, done chan<- struct{}) {
	defer close(done)
	defer close(out)
	defer p.markStopped(done)

	current := policy
	fellBack := false

	for {
		failed := make(chan error, 1)
		stop, err := p.watcher.Watch(p.deliveryID, current,
			func(s domain.PositionSample) {
				select {
				case out <- SourceEvent{Sample: s}:
				case <-ctx.Done():
				}
			},
			func(err error) {
				select {
				case failed <- err:
				default:
				}
			},
		)
		if err != nil {
			p.emit(ctx, out, err)
			return
		}

		select {
		case <-ctx.Done():
			stop()
			return
		case err := <-failed:
			stop()
			if errors.Is(err, domain.ErrGeolocationTimeout) && !fellBack {
				fellBack = true
				current = current.Fallback(p.fallbackAge)
				metrics.PositionSourceFallbacksTotal.Inc()
				p.log.Warn().
					Str("delivery_id", p.deliveryID).
					Dur("timeout", current.Timeout).
					Dur("max_sample_age", current.MaxSampleAge).
					Msg("high accuracy fix timed out, retrying with low accuracy")
				continue
			}
			p.log.Warn().Err(err).Str("delivery_id", p.deliveryID).Msg("position source stopped")
			p.emit(ctx, out, err)
			return
		}
	}
}

// markStopped clears the running flag when the stream ends on its own.
func (p *PositionSource) markStopped(done chan<- struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.running = false
	}
}

func (p *PositionSource) emit(ctx context.Context, out chan<- SourceEvent, err error) {
	select {
	case out <- SourceEvent{Err: err}:
	case <-ctx.Done():
	}
}
