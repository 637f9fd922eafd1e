package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

const (
	inboxSize           = 64
	defaultStoreTimeout = 5 * time.Second
)

// errSessionEnded is returned by calls made after Close.
var errSessionEnded = errors.New("tracking session ended")

const (
	noticeLocation    = "location"
	noticeDestination = "destination"
	noticeRoute       = "route"
	noticeSync        = "sync"
	noticeMap         = "map"
)

// SessionDeps are the collaborators of a session.
type SessionDeps struct {
	Watcher  ports.LocationWatcher
	Backend  ports.TrackingBackend
	Repo     ports.TrackingRepository
	Surface  ports.MapSurface
	Resolver *AddressResolver
	Routes   *RouteProvider
}

// SessionConfig tunes a session.
type SessionConfig struct {
	Policy       domain.SamplePolicy
	FallbackAge  time.Duration
	Sync         SyncConfig
	StoreTimeout time.Duration
}

// SessionSnapshot is a copy of the session state taken on the session goroutine.
type SessionSnapshot struct {
	Record    domain.DeliveryTracking
	MapHandle string
	Notices   []string
}

// Session is the actor owning one DeliveryTracking while it is live. All
// state lives on a single goroutine: commands, device samples and results of
// background I/O are posted to its inbox as closures and run in arrival
// order. The record held here is the authority every callback consults
// before acting, so a result arriving after Delivered is dropped.
type Session struct {
	record  domain.DeliveryTracking
	address string
	deps    SessionDeps
	cfg     SessionConfig
	log     zerolog.Logger
	now     func() time.Time

	source     *PositionSource
	syncClient *PositionSyncClient
	liveMap    *LiveMapChannel

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	resolving    bool
	mapRequested bool
	notices      map[string]string

	// sourceGen identifies the current device stream; events of an older
	// stream are dropped.
	sourceGen int
}

func newSession(rec domain.DeliveryTracking, address string, deps SessionDeps, cfg SessionConfig, log zerolog.Logger, now func() time.Time) *Session {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if now == nil {
		now = time.Now
	}
	log = log.With().Str("delivery_id", rec.DeliveryID).Logger()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		record:     rec.Clone(),
		address:    address,
		deps:       deps,
		cfg:        cfg,
		log:        log,
		now:        now,
		source:     NewPositionSource(deps.Watcher, rec.DeliveryID, cfg.FallbackAge, log),
		syncClient: NewPositionSyncClient(rec.DeliveryID, deps.Backend, cfg.Sync, log),
		liveMap:    NewLiveMapChannel(rec.DeliveryID, deps.Surface, log),
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan func(), inboxSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		notices:    make(map[string]string),
	}
	s.syncClient.OnResult(func(_ domain.Coordinates, outcome PushOutcome, err error) {
		s.post(func() { s.onPushResult(outcome, err) })
	})

	metrics.ActiveSessions.Inc()
	go s.loop()
	s.post(s.ensureDestination)
	if rec.Status == domain.StatusInTransit {
		// Reloaded while live: pick the device stream back up.
		s.post(func() {
			s.watchDevice()
			s.maybeInitMap()
		})
	}
	return s
}

// ── Public API (any goroutine) ────────────────────────────────────────────────

// Start performs Pending → InTransit. lastKnown, when set, becomes the
// courier position used by the guard.
func (s *Session) Start(ctx context.Context, lastKnown *domain.Coordinates) (domain.DeliveryTracking, error) {
	var (
		rec domain.DeliveryTracking
		err error
	)
	if cerr := s.call(ctx, func() {
		err = s.start(lastKnown)
		rec = s.record.Clone()
	}); cerr != nil {
		return domain.DeliveryTracking{}, cerr
	}
	return rec, err
}

// Deliver performs InTransit → Delivered. On return the position source is
// stopped and the live map disposed.
func (s *Session) Deliver(ctx context.Context) (domain.DeliveryTracking, error) {
	var (
		rec domain.DeliveryTracking
		err error
	)
	if cerr := s.call(ctx, func() {
		err = s.deliver()
		rec = s.record.Clone()
	}); cerr != nil {
		return domain.DeliveryTracking{}, cerr
	}
	return rec, err
}

// RetryDestination re-runs address resolution when the destination is still
// unknown and no resolution is in flight.
func (s *Session) RetryDestination(ctx context.Context) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.call(ctx, func() {
		delete(s.notices, noticeDestination)
		s.ensureDestination()
		snap = s.snapshot()
	})
	return snap, err
}

// ResumeLocation reopens the device stream of an InTransit delivery after it
// ended on a terminal error, for instance once the courier granted the
// location permission again. It is a no-op while a stream is running.
func (s *Session) ResumeLocation(ctx context.Context) (SessionSnapshot, error) {
	var (
		snap SessionSnapshot
		err  error
	)
	if cerr := s.call(ctx, func() {
		if !s.record.AcceptsSamples() {
			err = domain.ErrNotInTransit
			return
		}
		s.resumeDevice()
		snap = s.snapshot()
	}); cerr != nil {
		return SessionSnapshot{}, cerr
	}
	return snap, err
}

// DeviceActive tells the session the device is producing samples again. A
// stream that ended on a terminal error is reopened. It never blocks; when
// the inbox is full the next sample tries again.
func (s *Session) DeviceActive() {
	select {
	case s.inbox <- s.resumeDevice:
	case <-s.quit:
	default:
	}
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot(ctx context.Context) (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := s.call(ctx, func() { snap = s.snapshot() })
	return snap, err
}

// Close tears the session down: the source is stopped, the surface released
// and every later post is dropped. It blocks until teardown completes and
// must not be called from the session goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// ── Actor plumbing ────────────────────────────────────────────────────────────

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.quit:
			s.teardown()
			return
		}
	}
}

func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.quit:
		return false
	}
}

func (s *Session) call(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	if !s.post(func() { fn(); close(reply) }) {
		return errSessionEnded
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case <-reply:
			return nil
		default:
			return errSessionEnded
		}
	}
}

func (s *Session) teardown() {
	s.cancel()
	s.source.Stop()
	s.syncClient.Reset()
	s.liveMap.Dispose()
	metrics.ActiveSessions.Dec()
	s.log.Debug().Str("status", string(s.record.Status)).Msg("tracking session closed")
}

// persist runs a store write in the background. Writes outlive Close so the
// final transition is not lost.
func (s *Session) persist(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.StoreTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn().Err(err).Str("op", op).Msg("tracking store write failed")
		}
	}()
}

// ── State machine (session goroutine only) ────────────────────────────────────

func (s *Session) start(lastKnown *domain.Coordinates) error {
	// State first, side effects after.
	if err := s.record.Start(s.now(), lastKnown); err != nil {
		return err
	}
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusInTransit)).Inc()

	rec := s.record.Clone()
	s.persist("save_transition", func(ctx context.Context) error {
		return s.deps.Repo.SaveTransition(ctx, &rec)
	})

	s.watchDevice()

	s.ensureDestination()
	s.maybeInitMap()

	s.log.Info().Msg("delivery in transit")
	return nil
}

func (s *Session) deliver() error {
	if err := s.record.Deliver(s.now()); err != nil {
		return err
	}
	metrics.TransitionsTotal.WithLabelValues(string(domain.StatusDelivered)).Inc()

	s.source.Stop()
	s.syncClient.Reset()
	s.liveMap.Dispose()

	rec := s.record.Clone()
	s.persist("save_transition", func(ctx context.Context) error {
		return s.deps.Repo.SaveTransition(ctx, &rec)
	})

	s.log.Info().Msg("delivery delivered")
	return nil
}

// watchDevice opens the device stream unless one is running.
func (s *Session) watchDevice() {
	if s.source.Running() {
		return
	}
	s.sourceGen++
	go s.pump(s.sourceGen, s.source.Start(s.cfg.Policy))
}

func (s *Session) resumeDevice() {
	if !s.record.AcceptsSamples() || s.source.Running() {
		return
	}
	delete(s.notices, noticeLocation)
	s.watchDevice()
	s.log.Info().Msg("device location stream resumed")
}

// pump forwards the position stream into the inbox, preserving order.
func (s *Session) pump(gen int, events <-chan SourceEvent) {
	for ev := range events {
		ev := ev
		if !s.post(func() { s.onSourceEvent(gen, ev) }) {
			return
		}
	}
}

func (s *Session) onSourceEvent(gen int, ev SourceEvent) {
	if gen != s.sourceGen {
		return
	}
	if ev.Err != nil {
		// The stream is over; wait for it so a resume can reopen it.
		s.source.Stop()
		s.notices[noticeLocation] = ev.Err.Error()
		s.log.Warn().Err(ev.Err).Msg("device location stream ended")
		return
	}
	s.onSample(ev.Sample)
}

func (s *Session) onSample(sample domain.PositionSample) {
	if !s.record.AcceptsSamples() {
		metrics.SamplesTotal.WithLabelValues("discarded").Inc()
		s.log.Debug().Str("status", string(s.record.Status)).Msg("sample discarded")
		return
	}
	if !s.syncClient.OnSample(s.ctx, sample) {
		metrics.SamplesTotal.WithLabelValues("insignificant").Inc()
		return
	}
	metrics.SamplesTotal.WithLabelValues("accepted").Inc()
	delete(s.notices, noticeLocation)

	pos := sample.Coordinates
	s.record.CourierPosition = &pos
	id, ts := s.record.DeliveryID, s.now()
	s.persist("save_courier_position", func(ctx context.Context) error {
		return s.deps.Repo.SaveCourierPosition(ctx, id, pos, ts)
	})

	if s.liveMap.Initialized() {
		s.liveMap.UpdatePosition(pos)
		return
	}
	s.maybeInitMap()
}

func (s *Session) onPushResult(outcome PushOutcome, err error) {
	if !s.record.AcceptsSamples() {
		return
	}
	switch outcome {
	case PushFailed:
		s.notices[noticeSync] = err.Error()
	case PushOK:
		delete(s.notices, noticeSync)
	}
}

func (s *Session) ensureDestination() {
	if s.record.DestinationPosition != nil || s.resolving {
		return
	}
	if s.address == "" || s.deps.Resolver == nil {
		s.notices[noticeDestination] = "delivery address unknown"
		return
	}

	s.resolving = true
	id, address := s.record.DeliveryID, s.address
	go func() {
		pos, err := s.deps.Resolver.Resolve(s.ctx, id, address)
		s.post(func() { s.onResolved(pos, err) })
	}()
}

func (s *Session) onResolved(pos domain.Coordinates, err error) {
	s.resolving = false
	if err != nil {
		s.notices[noticeDestination] = err.Error()
		return
	}
	if s.record.DestinationPosition != nil {
		return
	}
	delete(s.notices, noticeDestination)
	s.record.DestinationPosition = &pos
	id := s.record.DeliveryID
	s.persist("save_destination", func(ctx context.Context) error {
		return s.deps.Repo.SaveDestination(ctx, id, pos)
	})
	s.maybeInitMap()
}

// maybeInitMap requests the route and then the surface, once both
// endpoints are known and the delivery is in transit.
func (s *Session) maybeInitMap() {
	if s.mapRequested || !s.record.AcceptsSamples() {
		return
	}
	if s.record.CourierPosition == nil || s.record.DestinationPosition == nil {
		return
	}
	s.mapRequested = true

	from, to := *s.record.CourierPosition, *s.record.DestinationPosition
	go func() {
		var route *domain.Route
		if s.deps.Routes != nil {
			route = s.deps.Routes.ComputeRoute(s.ctx, from, to)
		}
		s.post(func() { s.initMap(route) })
	}()
}

func (s *Session) initMap(route *domain.Route) {
	if !s.record.AcceptsSamples() {
		return
	}
	if route == nil {
		s.notices[noticeRoute] = domain.ErrRouteUnavailable.Error()
	}

	_, err := s.liveMap.Initialize(*s.record.CourierPosition, *s.record.DestinationPosition, route)
	switch {
	case errors.Is(err, domain.ErrMapInitialized):
	case err != nil:
		// Let the next accepted sample try again.
		s.mapRequested = false
		s.notices[noticeMap] = err.Error()
		s.log.Warn().Err(err).Msg("live map initialization failed")
	default:
		delete(s.notices, noticeMap)
	}
}

func (s *Session) snapshot() SessionSnapshot {
	keys := make([]string, 0, len(s.notices))
	for k := range s.notices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	notices := make([]string, 0, len(keys))
	for _, k := range keys {
		notices = append(notices, k+": "+s.notices[k])
	}

	handle := ""
	if s.liveMap.Initialized() {
		handle = s.liveMap.Handle()
	}
	return SessionSnapshot{
		Record:    s.record.Clone(),
		MapHandle: handle,
		Notices:   notices,
	}
}
