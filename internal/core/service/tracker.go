package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

const defaultBackendTimeout = 5 * time.Second

// TrackerDeps are the collaborators shared by every session.
type TrackerDeps struct {
	Repo     ports.TrackingRepository
	Orders   ports.OrderDirectory
	Watcher  ports.LocationWatcher
	Feed     ports.SampleFeed
	Backend  ports.TrackingBackend
	Surface  ports.MapSurface
	Resolver *AddressResolver
	Routes   *RouteProvider
}

// TrackerConfig tunes the tracker and its sessions.
type TrackerConfig struct {
	Session        SessionConfig
	BackendTimeout time.Duration
}

// Tracker implements ports.TrackingService. It keeps one Session per live
// delivery and performs the remote confirmations outside the sessions so
// that no session ever waits on the network.
type Tracker struct {
	deps TrackerDeps
	cfg  TrackerConfig
	log  zerolog.Logger
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewTracker returns a Tracker.
func NewTracker(deps TrackerDeps, cfg TrackerConfig, log zerolog.Logger) *Tracker {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaultBackendTimeout
	}
	return &Tracker{
		deps:     deps,
		cfg:      cfg,
		log:      log.With().Str("component", "tracker").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// RegisterDelivery creates a Pending record for an order marked for delivery.
func (t *Tracker) RegisterDelivery(ctx context.Context, in ports.RegisterDeliveryInput) (*ports.TrackingView, error) {
	rec := &domain.DeliveryTracking{
		DeliveryID: in.DeliveryID,
		OrderID:    in.OrderID,
		CourierID:  in.CourierID,
		Status:     domain.StatusPending,
		CreatedAt:  t.now().UTC(),
	}
	if err := t.deps.Repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("register delivery: %w", err)
	}
	t.log.Info().Str("delivery_id", in.DeliveryID).Str("order_id", in.OrderID).Msg("delivery registered")
	return toView(*rec, "", nil), nil
}

// StartDelivery performs Pending → InTransit. When the backend fails to
// confirm, the local transition stands: the view is returned together with
// an error matching domain.ErrSyncTransport and the caller may ConfirmStart.
func (t *Tracker) StartDelivery(ctx context.Context, in ports.StartDeliveryInput) (*ports.TrackingView, error) {
	sess, rec, err := t.session(ctx, in.DeliveryID, in.Actor, true)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &domain.TransitionError{From: rec.Status, To: domain.StatusInTransit}
	}

	var at *domain.Coordinates
	if in.LastKnown != nil {
		c := domain.Coordinates{Lat: in.LastKnown.Lat, Lng: in.LastKnown.Lng}
		if !c.Valid() {
			return nil, fmt.Errorf("start delivery: %w", domain.ErrInvalidSample)
		}
		at = &c
	} else if rec.CourierPosition == nil && t.deps.Watcher != nil {
		if s, err := t.deps.Watcher.CurrentPosition(in.DeliveryID, t.cfg.Session.Policy); err == nil {
			at = &s.Coordinates
		}
	}

	started, err := sess.Start(ctx, at)
	if err != nil {
		if started.Status != domain.StatusInTransit {
			// Nothing runs for a delivery that is still pending.
			t.evict(in.DeliveryID, sess)
		}
		return nil, fmt.Errorf("start delivery: %w", err)
	}

	if err := t.confirm(ctx, in.DeliveryID, t.deps.Backend.Start); err != nil {
		t.log.Warn().Err(err).Str("delivery_id", in.DeliveryID).Msg("backend did not confirm start, local state kept")
		return t.liveView(ctx, sess, started), fmt.Errorf("start delivery: %w", err)
	}
	return t.liveView(ctx, sess, started), nil
}

// ConfirmStart re-sends the backend start of an InTransit delivery.
func (t *Tracker) ConfirmStart(ctx context.Context, deliveryID string, actor ports.Actor) error {
	_, rec, err := t.session(ctx, deliveryID, actor, false)
	if err != nil {
		return err
	}
	if rec.Status != domain.StatusInTransit {
		return fmt.Errorf("confirm start: %w", domain.ErrNotInTransit)
	}
	if err := t.confirm(ctx, deliveryID, t.deps.Backend.Start); err != nil {
		return fmt.Errorf("confirm start: %w", err)
	}
	return nil
}

// MarkDelivered performs InTransit → Delivered and evicts the session.
func (t *Tracker) MarkDelivered(ctx context.Context, deliveryID string, actor ports.Actor) (*ports.TrackingView, error) {
	sess, rec, err := t.session(ctx, deliveryID, actor, false)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &domain.TransitionError{From: rec.Status, To: domain.StatusDelivered}
	}

	delivered, err := sess.Deliver(ctx)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	// Written before eviction so a reload never sees the record InTransit.
	if err := t.deps.Repo.SaveTransition(ctx, &delivered); err != nil {
		t.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("failed to persist delivery before eviction")
	}
	t.evict(deliveryID, sess)

	view := toView(delivered, "", nil)
	if err := t.confirm(ctx, deliveryID, t.deps.Backend.Delivered); err != nil {
		t.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("backend did not confirm delivery, local state kept")
		return view, fmt.Errorf("mark delivered: %w", err)
	}
	return view, nil
}

// RetryDestination re-runs address resolution for a live delivery.
func (t *Tracker) RetryDestination(ctx context.Context, deliveryID string, actor ports.Actor) (*ports.TrackingView, error) {
	sess, rec, err := t.session(ctx, deliveryID, actor, false)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return toView(*rec, "", nil), nil
	}
	snap, err := sess.RetryDestination(ctx)
	if err != nil {
		return nil, fmt.Errorf("retry destination: %w", err)
	}
	return toView(snap.Record, snap.MapHandle, snap.Notices), nil
}

// Get returns the current view of a delivery.
func (t *Tracker) Get(ctx context.Context, deliveryID string, actor ports.Actor) (*ports.TrackingView, error) {
	sess, rec, err := t.session(ctx, deliveryID, actor, false)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return toView(*rec, "", nil), nil
	}
	return t.liveView(ctx, sess, *rec), nil
}

// ResumeLocation reopens the device stream of an InTransit delivery after a
// terminal location error.
func (t *Tracker) ResumeLocation(ctx context.Context, deliveryID string, actor ports.Actor) (*ports.TrackingView, error) {
	sess, _, err := t.session(ctx, deliveryID, actor, false)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("resume location: %w", domain.ErrNotInTransit)
	}
	snap, err := sess.ResumeLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume location: %w", err)
	}
	return toView(snap.Record, snap.MapHandle, snap.Notices), nil
}

// Authorize checks that actor may act on deliveryID. For a delivery in
// transit it also makes sure its session is live, so samples posted after a
// restart reach a watch.
func (t *Tracker) Authorize(ctx context.Context, deliveryID string, actor ports.Actor) error {
	_, _, err := t.session(ctx, deliveryID, actor, false)
	return err
}

// IngestSample hands a device sample to the feed backing the watchers.
func (t *Tracker) IngestSample(_ context.Context, in ports.SampleInput) error {
	sample := domain.PositionSample{
		Coordinates:    domain.Coordinates{Lat: in.Lat, Lng: in.Lng},
		CapturedAt:     in.CapturedAt,
		AccuracyMeters: in.AccuracyMeters,
	}
	if !sample.Valid() || sample.AccuracyMeters < 0 {
		return fmt.Errorf("ingest sample: %w", domain.ErrInvalidSample)
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = t.now().UTC()
	}
	if err := t.deps.Feed.Publish(in.DeliveryID, sample); err != nil {
		return fmt.Errorf("ingest sample: %w", err)
	}

	t.mu.Lock()
	sess, ok := t.sessions[in.DeliveryID]
	t.mu.Unlock()
	if ok {
		sess.DeviceActive()
	}
	return nil
}

// ReportLocationError forwards a device failure to the active watches.
func (t *Tracker) ReportLocationError(_ context.Context, deliveryID, code string) error {
	err, ok := domain.LocationErrorFromCode(code)
	if !ok {
		return fmt.Errorf("report location error: %w: unknown code %q", domain.ErrInvalidSample, code)
	}
	t.deps.Feed.Fail(deliveryID, err)
	t.log.Warn().Err(err).Str("delivery_id", deliveryID).Msg("device reported location failure")
	return nil
}

// Shutdown closes every live session.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	t.closed = true
	sessions := make([]*Session, 0, len(t.sessions))
	for id, s := range t.sessions {
		sessions = append(sessions, s)
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	t.log.Info().Int("sessions", len(sessions)).Msg("tracker shut down")
}

// session returns the live session for deliveryID together with a current
// copy of its record, once actor is authorized for it. A session is opened
// for a delivery in transit, or for a pending one when starting is set;
// otherwise only the stored record is returned.
func (t *Tracker) session(ctx context.Context, deliveryID string, actor ports.Actor, starting bool) (*Session, *domain.DeliveryTracking, error) {
	t.mu.Lock()
	sess, ok := t.sessions[deliveryID]
	t.mu.Unlock()
	if ok {
		snap, err := sess.Snapshot(ctx)
		if err == nil {
			if err := authorize(&snap.Record, actor); err != nil {
				return nil, nil, err
			}
			return sess, &snap.Record, nil
		}
		if !errors.Is(err, errSessionEnded) {
			return nil, nil, err
		}
	}

	rec, err := t.deps.Repo.FindByDeliveryID(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(rec, actor); err != nil {
		return nil, nil, err
	}
	live := rec.Status == domain.StatusInTransit || (starting && rec.Status == domain.StatusPending)
	if !live {
		return nil, rec, nil
	}

	address := t.address(ctx, rec)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, nil, errSessionEnded
	}
	if existing, ok := t.sessions[deliveryID]; ok {
		t.mu.Unlock()
		snap, err := existing.Snapshot(ctx)
		if err != nil {
			return nil, nil, err
		}
		return existing, &snap.Record, nil
	}
	sess = newSession(*rec, address, SessionDeps{
		Watcher:  t.deps.Watcher,
		Backend:  t.deps.Backend,
		Repo:     t.deps.Repo,
		Surface:  t.deps.Surface,
		Resolver: t.deps.Resolver,
		Routes:   t.deps.Routes,
	}, t.cfg.Session, t.log, t.now)
	t.sessions[deliveryID] = sess
	t.mu.Unlock()

	return sess, rec, nil
}

func (t *Tracker) address(ctx context.Context, rec *domain.DeliveryTracking) string {
	if t.deps.Orders == nil || rec.OrderID == "" {
		return ""
	}
	order, err := t.deps.Orders.FindOrder(ctx, rec.OrderID)
	if err != nil {
		t.log.Warn().Err(err).Str("delivery_id", rec.DeliveryID).Str("order_id", rec.OrderID).Msg("order lookup failed, destination left unresolved")
		return ""
	}
	return strings.TrimSpace(order.DeliveryAddress)
}

func (t *Tracker) evict(deliveryID string, sess *Session) {
	t.mu.Lock()
	if t.sessions[deliveryID] == sess {
		delete(t.sessions, deliveryID)
	}
	t.mu.Unlock()
	sess.Close()
}

// confirm calls the backend with its own timeout. Every failure matches
// domain.ErrSyncTransport.
func (t *Tracker) confirm(ctx context.Context, deliveryID string, call func(context.Context, string) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.BackendTimeout)
	defer cancel()

	err := call(ctx, deliveryID)
	if err == nil || errors.Is(err, domain.ErrSyncTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrSyncTransport, err)
}

// liveView snapshots sess, falling back to rec when the session has ended.
func (t *Tracker) liveView(ctx context.Context, sess *Session, rec domain.DeliveryTracking) *ports.TrackingView {
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return toView(rec, "", nil)
	}
	return toView(snap.Record, snap.MapHandle, snap.Notices)
}

func authorize(rec *domain.DeliveryTracking, actor ports.Actor) error {
	if actor.Role == domain.RoleCourier && rec.CourierID != actor.CourierID {
		return domain.ErrForbidden
	}
	return nil
}

func toView(rec domain.DeliveryTracking, handle string, notices []string) *ports.TrackingView {
	v := &ports.TrackingView{
		DeliveryID:  rec.DeliveryID,
		OrderID:     rec.OrderID,
		CourierID:   rec.CourierID,
		Status:      string(rec.Status),
		StartedAt:   rec.StartedAt,
		DeliveredAt: rec.DeliveredAt,
		MapHandle:   handle,
		Notices:     notices,
	}
	if rec.CourierPosition != nil {
		v.CourierPosition = &ports.CoordinatesInput{Lat: rec.CourierPosition.Lat, Lng: rec.CourierPosition.Lng}
	}
	if rec.DestinationPosition != nil {
		v.DestinationPosition = &ports.CoordinatesInput{Lat: rec.DestinationPosition.Lat, Lng: rec.DestinationPosition.Lng}
	}
	return v
}
