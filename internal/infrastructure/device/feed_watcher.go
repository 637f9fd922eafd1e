// Package device adapts the samples posted by courier apps to the
// callback-based location capability the tracking engine consumes.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

const (
	defaultAccuracyLimit = 100.0
	defaultRetention     = 10 * time.Minute
	watchBuffer          = 64
)

// Config tunes a FeedWatcher.
type Config struct {
	// AccuracyLimit is the worst accuracy, in meters, accepted by a high
	// accuracy watch.
	AccuracyLimit float64
	// Retention bounds how long the last sample of a delivery is kept.
	Retention time.Duration
}

type event struct {
	sample domain.PositionSample
	err    error
}

type watch struct {
	id       uint64
	policy   domain.SamplePolicy
	onSample func(domain.PositionSample)
	onError  func(error)
	events   chan event
	quit     chan struct{}
	timer    *time.Timer
	stopped  bool
}

// FeedWatcher implements ports.LocationWatcher and ports.SampleFeed. Every
// watch gets its own delivery goroutine so callbacks run in order and never
// under the watcher lock.
type FeedWatcher struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	latest  map[string]domain.PositionSample
	watches map[string]map[uint64]*watch
	nextID  uint64
}

var (
	_ ports.LocationWatcher = (*FeedWatcher)(nil)
	_ ports.SampleFeed      = (*FeedWatcher)(nil)
)

// NewFeedWatcher returns an empty FeedWatcher.
func NewFeedWatcher(cfg Config, log zerolog.Logger) *FeedWatcher {
	if cfg.AccuracyLimit <= 0 {
		cfg.AccuracyLimit = defaultAccuracyLimit
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &FeedWatcher{
		cfg:     cfg,
		log:     log.With().Str("component", "feed_watcher").Logger(),
		now:     time.Now,
		latest:  make(map[string]domain.PositionSample),
		watches: make(map[string]map[uint64]*watch),
	}
}

// Watch registers callbacks for deliveryID. A fresh cached sample is
// delivered first. onError receives domain.ErrGeolocationTimeout when no
// acceptable sample arrives within policy.Timeout.
func (f *FeedWatcher) Watch(deliveryID string, policy domain.SamplePolicy, onSample func(domain.PositionSample), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	w := &watch{
		id:       f.nextID,
		policy:   policy,
		onSample: onSample,
		onError:  onError,
		events:   make(chan event, watchBuffer),
		quit:     make(chan struct{}),
	}
	go w.run()

	if policy.Timeout > 0 {
		w.timer = time.AfterFunc(policy.Timeout, func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if !w.stopped {
				f.log.Debug().Str("delivery_id", deliveryID).Dur("timeout", policy.Timeout).Msg("no acceptable sample before timeout")
				w.send(event{err: domain.ErrGeolocationTimeout})
			}
		})
	}

	if s, ok := f.latest[deliveryID]; ok && f.acceptable(s, policy) {
		w.send(event{sample: s})
	}

	if f.watches[deliveryID] == nil {
		f.watches[deliveryID] = make(map[uint64]*watch)
	}
	f.watches[deliveryID][w.id] = w

	return func() { f.unwatch(deliveryID, w) }, nil
}

// CurrentPosition returns the last sample of deliveryID if it satisfies policy.
func (f *FeedWatcher) CurrentPosition(deliveryID string, policy domain.SamplePolicy) (domain.PositionSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.latest[deliveryID]
	if !ok || !f.acceptable(s, policy) {
		return domain.PositionSample{}, domain.ErrPositionUnavailable
	}
	return s, nil
}

// Publish records a sample posted by the device and hands it to the watches
// whose policy it satisfies.
func (f *FeedWatcher) Publish(deliveryID string, s domain.PositionSample) error {
	if !s.Valid() {
		return domain.ErrInvalidSample
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = f.now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if prev, ok := f.latest[deliveryID]; ok && prev.CapturedAt.After(s.CapturedAt) {
		f.log.Debug().Str("delivery_id", deliveryID).Msg("out of order sample dropped")
		return nil
	}
	f.latest[deliveryID] = s

	for _, w := range f.watches[deliveryID] {
		if f.acceptable(s, w.policy) {
			if w.timer != nil {
				w.timer.Reset(w.policy.Timeout)
			}
			w.send(event{sample: s})
		}
	}
	return nil
}

// Fail forwards a device failure to every watch of deliveryID.
func (f *FeedWatcher) Fail(deliveryID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, w := range f.watches[deliveryID] {
		w.send(event{err: err})
	}
}

// Run prunes samples older than the retention period until ctx is done.
func (f *FeedWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Retention / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.prune()
		}
	}
}

func (f *FeedWatcher) prune() {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := f.now().Add(-f.cfg.Retention)
	for id, s := range f.latest {
		if s.CapturedAt.Before(cutoff) && len(f.watches[id]) == 0 {
			delete(f.latest, id)
		}
	}
}

func (f *FeedWatcher) unwatch(deliveryID string, w *watch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.quit)
	delete(f.watches[deliveryID], w.id)
	if len(f.watches[deliveryID]) == 0 {
		delete(f.watches, deliveryID)
	}
}

// acceptable applies the max age and, for high accuracy, the accuracy limit.
func (f *FeedWatcher) acceptable(s domain.PositionSample, p domain.SamplePolicy) bool {
	if p.MaxSampleAge > 0 && f.now().Sub(s.CapturedAt) > p.MaxSampleAge {
		return false
	}
	if p.HighAccuracy && s.AccuracyMeters > f.cfg.AccuracyLimit {
		return false
	}
	return true
}

// send queues an event. Must be called with the watcher lock held. A full
// buffer drops the event.
func (w *watch) send(ev event) {
	if w.stopped {
		return
	}
	select {
	case w.events <- ev:
	default:
	}
}

func (w *watch) run() {
	for {
		select {
		case <-w.quit:
			return
		case ev := <-w.events:
			if ev.err != nil {
				w.onError(ev.err)
				continue
			}
			w.onSample(ev.sample)
		}
	}
}
