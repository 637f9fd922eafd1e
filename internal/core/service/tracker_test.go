package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type stubFeed struct {
	mu        sync.Mutex
	published []domain.PositionSample
	failures  []error
}

func (f *stubFeed) Publish(_ string, s domain.PositionSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, s)
	return nil
}

func (f *stubFeed) Fail(_ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

type harness struct {
	tracker *Tracker
	watcher *stubWatcher
	backend *stubBackend
	repo    *stubTrackingRepo
	surface *stubSurface
	feed    *stubFeed
}

var (
	dispatcher = ports.Actor{Role: domain.RoleDispatcher}
	courier1   = ports.Actor{Role: domain.RoleCourier, CourierID: "C-1"}
	origin     = &ports.CoordinatesInput{Lat: 19.40, Lng: -99.20}
	destCoords = domain.Coordinates{Lat: 19.50, Lng: -99.10}
)

func pendingRecord(id string) domain.DeliveryTracking {
	return domain.DeliveryTracking{
		DeliveryID: id,
		OrderID:    "ORD-" + id,
		CourierID:  "C-1",
		Status:     domain.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

func newHarness(t *testing.T, recs ...domain.DeliveryTracking) *harness {
	t.Helper()
	h := &harness{
		watcher: &stubWatcher{},
		backend: &stubBackend{},
		repo:    newStubTrackingRepo(recs...),
		surface: &stubSurface{},
		feed:    &stubFeed{},
	}
	orders := stubOrders{}
	for _, r := range recs {
		orders[r.OrderID] = "Av. Reforma, 222, Juarez, CDMX"
	}
	geo := &stubGeocoder{results: map[string][]domain.Coordinates{
		"Av. Reforma, 222, Juarez, CDMX": {destCoords},
	}}
	router := &stubRouter{route: &domain.Route{Points: []domain.Coordinates{
		{Lat: 19.40, Lng: -99.20}, {Lat: 19.45, Lng: -99.15}, destCoords,
	}}}

	h.tracker = NewTracker(TrackerDeps{
		Repo:     h.repo,
		Orders:   orders,
		Watcher:  h.watcher,
		Feed:     h.feed,
		Backend:  h.backend,
		Surface:  h.surface,
		Resolver: NewAddressResolver(geo, newStubCache(), time.Second, zerolog.Nop()),
		Routes:   NewRouteProvider(router, time.Second, zerolog.Nop()),
	}, TrackerConfig{
		Session: SessionConfig{Policy: testPolicy, FallbackAge: time.Minute},
	}, zerolog.Nop())
	t.Cleanup(h.tracker.Shutdown)
	return h
}

func (h *harness) start(t *testing.T, id string) *ports.TrackingView {
	t.Helper()
	view, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{
		DeliveryID: id, Actor: courier1, LastKnown: origin,
	})
	if err != nil {
		t.Fatalf("start delivery: %v", err)
	}
	return view
}

func (h *harness) liveSession(t *testing.T, id string) *Session {
	t.Helper()
	h.tracker.mu.Lock()
	defer h.tracker.mu.Unlock()
	s, ok := h.tracker.sessions[id]
	if !ok {
		t.Fatalf("no live session for %s", id)
	}
	return s
}

func hasNotice(v *ports.TrackingView, prefix string) bool {
	for _, n := range v.Notices {
		if strings.HasPrefix(n, prefix+":") {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Start
// ---------------------------------------------------------------------------

func TestTracker_StartWithoutPosition(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))

	_, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1})

	if !errors.Is(err, domain.ErrPositionUnavailable) {
		t.Fatalf("expected ErrPositionUnavailable, got: %v", err)
	}
	view, err := h.tracker.Get(context.Background(), "DLV-1", courier1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != string(domain.StatusPending) || view.StartedAt != nil {
		t.Errorf("expected pending without startedAt, got %+v", view)
	}
	if h.watcher.count() != 0 {
		t.Error("no watch may start before the transition")
	}
	if h.backend.starts != 0 {
		t.Error("backend must not be told about a failed start")
	}
}

func TestTracker_StartUsesDeviceFix(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.watcher.current = &domain.PositionSample{Coordinates: domain.Coordinates{Lat: 19.41, Lng: -99.21}}

	view, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.CourierPosition == nil || view.CourierPosition.Lat != 19.41 {
		t.Errorf("expected the device fix, got %+v", view.CourierPosition)
	}
}

func TestTracker_StartThenRetryWithFix(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	_, _ = h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1})

	view := h.start(t, "DLV-1")

	if view.Status != string(domain.StatusInTransit) {
		t.Errorf("expected in_transit, got %s", view.Status)
	}
	if view.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}
	if h.backend.starts != 1 {
		t.Errorf("expected one backend start, got %d", h.backend.starts)
	}
	eventually(t, func() bool { return h.repo.status("DLV-1") == domain.StatusInTransit }, "transition never persisted")
}

func TestTracker_DoubleStartIsNoOp(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	first := h.start(t, "DLV-1")
	h.watcher.waitActive(t, 1)

	_, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1, LastKnown: origin})

	if !errors.Is(err, domain.ErrAlreadyInState) {
		t.Fatalf("expected ErrAlreadyInState, got: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := h.watcher.count(); n != 1 {
		t.Errorf("expected a single watch, got %d", n)
	}
	if h.backend.starts != 1 {
		t.Errorf("expected one backend start, got %d", h.backend.starts)
	}
	view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
	if !view.StartedAt.Equal(*first.StartedAt) {
		t.Error("startedAt must be set exactly once")
	}
}

func TestTracker_StartBackendFailureKeepsLocalState(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.backend.startErr = errors.New("503 service unavailable")

	view, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1, LastKnown: origin})

	if !errors.Is(err, domain.ErrSyncTransport) {
		t.Fatalf("expected ErrSyncTransport, got: %v", err)
	}
	if view == nil || view.Status != string(domain.StatusInTransit) {
		t.Fatalf("expected the in_transit view alongside the error, got %+v", view)
	}

	h.backend.mu.Lock()
	h.backend.startErr = nil
	h.backend.mu.Unlock()
	if err := h.tracker.ConfirmStart(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("confirm start: %v", err)
	}
	if h.backend.starts != 2 {
		t.Errorf("expected a second backend start, got %d", h.backend.starts)
	}
}

func TestTracker_ConfirmStartRequiresInTransit(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))

	err := h.tracker.ConfirmStart(context.Background(), "DLV-1", dispatcher)

	if !errors.Is(err, domain.ErrNotInTransit) {
		t.Fatalf("expected ErrNotInTransit, got: %v", err)
	}
}

func TestTracker_CourierMayOnlyTouchOwnDelivery(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	other := ports.Actor{Role: domain.RoleCourier, CourierID: "C-2"}

	_, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: other, LastKnown: origin})

	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
	if err := h.tracker.Authorize(context.Background(), "DLV-1", dispatcher); err != nil {
		t.Errorf("dispatcher must be allowed, got: %v", err)
	}
}

func TestTracker_UnknownDelivery(t *testing.T) {
	h := newHarness(t)

	_, err := h.tracker.Get(context.Background(), "DLV-404", dispatcher)

	if !errors.Is(err, domain.ErrTrackingNotFound) {
		t.Fatalf("expected ErrTrackingNotFound, got: %v", err)
	}
}

func TestTracker_RegisterDelivery(t *testing.T) {
	h := newHarness(t)

	view, err := h.tracker.RegisterDelivery(context.Background(), ports.RegisterDeliveryInput{DeliveryID: "DLV-9", OrderID: "ORD-9", CourierID: "C-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Status != string(domain.StatusPending) {
		t.Errorf("expected pending, got %s", view.Status)
	}

	_, err = h.tracker.RegisterDelivery(context.Background(), ports.RegisterDeliveryInput{DeliveryID: "DLV-9", OrderID: "ORD-9", CourierID: "C-1"})
	if !errors.Is(err, domain.ErrDuplicateTracking) {
		t.Errorf("expected ErrDuplicateTracking, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Samples and live map
// ---------------------------------------------------------------------------

func TestTracker_SamplesDriveSyncAndMap(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")

	eventually(t, func() bool { c, _, _ := h.surface.counts(); return c == 1 }, "live map never initialized")

	h.watcher.emit(t, 19.41, -99.19)
	h.watcher.emit(t, 19.42, -99.18)
	// Inside the significance threshold.
	h.watcher.emit(t, 19.42001, -99.18001)

	eventually(t, func() bool { return h.backend.pushCount() == 2 }, "expected two pushes, got %d", h.backend.pushCount())
	eventually(t, func() bool { _, u, _ := h.surface.counts(); return u == 2 }, "expected two map updates")

	creates, _, _ := h.surface.counts()
	if creates != 1 {
		t.Errorf("expected one surface, got %d", creates)
	}
	init := h.surface.creates[0]
	if len(init.Route) != 3 {
		t.Errorf("expected route geometry in the init payload, got %d points", len(init.Route))
	}

	view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
	if view.DestinationPosition == nil || view.DestinationPosition.Lat != destCoords.Lat {
		t.Errorf("expected resolved destination, got %+v", view.DestinationPosition)
	}
	if view.CourierPosition.Lat != 19.42 {
		t.Errorf("expected latest accepted position, got %+v", view.CourierPosition)
	}
	if view.MapHandle == "" {
		t.Error("expected a map handle")
	}
}

func TestTracker_MapInitializedOnceUnderOverlap(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")

	for i := 0; i < 20; i++ {
		h.watcher.emit(t, 19.40+float64(i)*0.001, -99.20)
	}
	_, _ = h.tracker.RetryDestination(context.Background(), "DLV-1", courier1)

	eventually(t, func() bool { c, _, _ := h.surface.counts(); return c >= 1 }, "live map never initialized")
	time.Sleep(30 * time.Millisecond)
	if c, _, _ := h.surface.counts(); c != 1 {
		t.Errorf("expected exactly one surface, got %d", c)
	}
}

func TestTracker_RaceErrorDoesNotStopTracking(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.backend.setPushErr(domain.ErrTrackingSessionRace)
	h.start(t, "DLV-1")

	h.watcher.emit(t, 19.41, -99.19)
	h.watcher.emit(t, 19.42, -99.18)

	eventually(t, func() bool { return h.backend.pushCount() == 2 }, "expected pushes to continue")
	view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
	if hasNotice(view, noticeSync) {
		t.Errorf("a race must not surface as a sync failure: %v", view.Notices)
	}
}

func TestTracker_SyncFailureIsNotice(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.backend.setPushErr(domain.ErrSyncTransport)
	h.start(t, "DLV-1")

	h.watcher.emit(t, 19.41, -99.19)

	eventually(t, func() bool {
		view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
		return hasNotice(view, noticeSync)
	}, "expected a sync notice")
	view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
	if view.Status != string(domain.StatusInTransit) {
		t.Errorf("sync failures must not change state, got %s", view.Status)
	}
}

func TestTracker_LocationFailureIsNotice(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")

	h.watcher.waitActive(t, 1).onError(domain.ErrGeolocationDenied)

	eventually(t, func() bool {
		view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
		return hasNotice(view, noticeLocation)
	}, "expected a location notice")
	if n := h.watcher.count(); n != 1 {
		t.Errorf("denied must not be retried, got %d watches", n)
	}
}

func TestTracker_ResumeLocationAfterDenied(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")

	h.watcher.waitActive(t, 1).onError(domain.ErrGeolocationDenied)
	eventually(t, func() bool {
		view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
		return hasNotice(view, noticeLocation)
	}, "expected a location notice")

	view, err := h.tracker.ResumeLocation(context.Background(), "DLV-1", courier1)
	if err != nil {
		t.Fatalf("resume location: %v", err)
	}
	if hasNotice(view, noticeLocation) {
		t.Errorf("resume must clear the location notice, got %v", view.Notices)
	}
	h.watcher.waitActive(t, 2)
	if p := h.watcher.policies()[1]; !p.HighAccuracy {
		t.Errorf("a resumed stream starts from the first attempt policy, got %+v", p)
	}

	h.watcher.emit(t, 19.41, -99.19)
	eventually(t, func() bool { return h.backend.pushCount() == 1 }, "samples after resume never reached the backend")

	// Running streams are left alone.
	if _, err := h.tracker.ResumeLocation(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("resume location: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := h.watcher.count(); n != 2 {
		t.Errorf("expected no extra watch, got %d", n)
	}
}

func TestTracker_SampleAfterLocationFailureReopensWatch(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")

	h.watcher.waitActive(t, 1).onError(domain.ErrGeolocationUnavailable)
	eventually(t, func() bool {
		view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
		return hasNotice(view, noticeLocation)
	}, "expected a location notice")

	err := h.tracker.IngestSample(context.Background(), ports.SampleInput{DeliveryID: "DLV-1", Lat: 19.41, Lng: -99.19, AccuracyMeters: 5})
	if err != nil {
		t.Fatalf("ingest sample: %v", err)
	}

	h.watcher.waitActive(t, 2)
	eventually(t, func() bool {
		view, _ := h.tracker.Get(context.Background(), "DLV-1", courier1)
		return !hasNotice(view, noticeLocation)
	}, "location notice never cleared")
}

func TestTracker_ResumeLocationRequiresInTransit(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))

	_, err := h.tracker.ResumeLocation(context.Background(), "DLV-1", courier1)

	if !errors.Is(err, domain.ErrNotInTransit) {
		t.Fatalf("expected ErrNotInTransit, got: %v", err)
	}
}

func TestTracker_ReloadedInTransitKeepsTracking(t *testing.T) {
	rec := pendingRecord("DLV-1")
	started := time.Now().Add(-time.Hour).UTC()
	rec.Status = domain.StatusInTransit
	rec.StartedAt = &started
	rec.CourierPosition = &domain.Coordinates{Lat: 19.40, Lng: -99.20}
	h := newHarness(t, rec)

	if _, err := h.tracker.Get(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("get: %v", err)
	}

	h.watcher.waitActive(t, 1)
	eventually(t, func() bool { c, _, _ := h.surface.counts(); return c == 1 }, "live map never initialized")

	h.watcher.emit(t, 19.41, -99.19)
	eventually(t, func() bool { return h.backend.pushCount() == 1 }, "samples of a reloaded delivery never reached the backend")
	eventually(t, func() bool { _, u, _ := h.surface.counts(); return u == 1 }, "live map never moved")

	_, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1, LastKnown: origin})
	if !errors.Is(err, domain.ErrAlreadyInState) {
		t.Errorf("expected ErrAlreadyInState, got: %v", err)
	}
	if n := h.watcher.count(); n != 1 {
		t.Errorf("expected a single watch, got %d", n)
	}
}

func TestTracker_PendingReadsDoNotOpenSessions(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))

	if _, err := h.tracker.Get(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := h.tracker.Authorize(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	// A start without a fix leaves the delivery pending.
	_, _ = h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1})

	h.tracker.mu.Lock()
	n := len(h.tracker.sessions)
	h.tracker.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no live session for a pending delivery, got %d", n)
	}
}

func TestTracker_ForbiddenStartOpensNoSession(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	other := ports.Actor{Role: domain.RoleCourier, CourierID: "C-2"}

	_, _ = h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: other, LastKnown: origin})

	h.tracker.mu.Lock()
	_, live := h.tracker.sessions["DLV-1"]
	h.tracker.mu.Unlock()
	if live {
		t.Error("an unauthorized caller must not open a session")
	}
}

// ---------------------------------------------------------------------------
// Delivered
// ---------------------------------------------------------------------------

func TestTracker_MarkDeliveredReleasesEverything(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")
	eventually(t, func() bool { c, _, _ := h.surface.counts(); return c == 1 }, "live map never initialized")

	view, err := h.tracker.MarkDelivered(context.Background(), "DLV-1", courier1)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Status != string(domain.StatusDelivered) || view.DeliveredAt == nil {
		t.Errorf("expected delivered view, got %+v", view)
	}
	if h.watcher.active() != nil {
		t.Error("the device watch must be released")
	}
	if _, _, releases := h.surface.counts(); releases != 1 {
		t.Errorf("expected the surface to be released once, got %d", releases)
	}
	if h.backend.delivered != 1 {
		t.Errorf("expected one backend delivered, got %d", h.backend.delivered)
	}
	h.tracker.mu.Lock()
	_, live := h.tracker.sessions["DLV-1"]
	h.tracker.mu.Unlock()
	if live {
		t.Error("session must be evicted after delivery")
	}
	eventually(t, func() bool { return h.repo.status("DLV-1") == domain.StatusDelivered }, "delivery never persisted")

	if _, err := h.tracker.StartDelivery(context.Background(), ports.StartDeliveryInput{DeliveryID: "DLV-1", Actor: courier1, LastKnown: origin}); !errors.Is(err, domain.ErrAlreadyInState) {
		t.Errorf("a delivered record must never restart, got: %v", err)
	}
	if _, err := h.tracker.MarkDelivered(context.Background(), "DLV-1", courier1); !errors.Is(err, domain.ErrAlreadyInState) {
		t.Errorf("expected ErrAlreadyInState on repeated delivery, got: %v", err)
	}
}

func TestTracker_MarkDeliveredRequiresInTransit(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))

	_, err := h.tracker.MarkDelivered(context.Background(), "DLV-1", dispatcher)

	if !errors.Is(err, domain.ErrAlreadyInState) {
		t.Fatalf("expected ErrAlreadyInState, got: %v", err)
	}
}

func TestTracker_DeliveredWhilePushInFlight(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")
	eventually(t, func() bool { c, _, _ := h.surface.counts(); return c == 1 }, "live map never initialized")

	gate := make(chan struct{})
	h.backend.mu.Lock()
	h.backend.gate = gate
	h.backend.mu.Unlock()
	h.watcher.emit(t, 19.41, -99.19)
	eventually(t, func() bool { _, u, _ := h.surface.counts(); return u == 1 }, "sample never reached the map")

	if _, err := h.tracker.MarkDelivered(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	close(gate)

	eventually(t, func() bool { return h.backend.pushCount() == 1 }, "in-flight push never completed")
	time.Sleep(20 * time.Millisecond)

	if _, u, _ := h.surface.counts(); u != 1 {
		t.Errorf("expected no map updates after delivery, got %d", u)
	}
	eventually(t, func() bool { return h.repo.status("DLV-1") == domain.StatusDelivered }, "delivery never persisted")
	view, err := h.tracker.Get(context.Background(), "DLV-1", courier1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != string(domain.StatusDelivered) {
		t.Errorf("a late push result must not reopen the delivery, got %s", view.Status)
	}
}

func TestSession_SampleInFlightAfterDeliveredIsDiscarded(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")
	eventually(t, func() bool { c, _, _ := h.surface.counts(); return c == 1 }, "live map never initialized")
	sess := h.liveSession(t, "DLV-1")

	if _, err := sess.Deliver(context.Background()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// A sample queued before the transition is processed after it.
	err := sess.call(context.Background(), func() {
		sess.onSample(domain.PositionSample{Coordinates: domain.Coordinates{Lat: 19.9, Lng: -99.9}, CapturedAt: time.Now()})
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if n := h.backend.pushCount(); n != 0 {
		t.Errorf("expected no push after delivery, got %d", n)
	}
	if _, u, _ := h.surface.counts(); u != 0 {
		t.Errorf("expected no map update after delivery, got %d", u)
	}
	snap, _ := sess.Snapshot(context.Background())
	if snap.Record.CourierPosition.Lat == 19.9 {
		t.Error("discarded sample must not move the courier")
	}
}

func TestTracker_StatusNeverRegresses(t *testing.T) {
	h := newHarness(t, pendingRecord("DLV-1"))
	h.start(t, "DLV-1")
	if _, err := h.tracker.MarkDelivered(context.Background(), "DLV-1", courier1); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	eventually(t, func() bool { return h.repo.status("DLV-1") == domain.StatusDelivered }, "delivery never persisted")

	// A stale in_transit write landing late.
	stale := pendingRecord("DLV-1")
	stale.Status = domain.StatusInTransit
	_ = h.repo.SaveTransition(context.Background(), &stale)

	if got := h.repo.status("DLV-1"); got != domain.StatusDelivered {
		t.Errorf("status regressed to %s", got)
	}
}

// ---------------------------------------------------------------------------
// Device ingestion
// ---------------------------------------------------------------------------

func TestTracker_IngestSample(t *testing.T) {
	h := newHarness(t)

	err := h.tracker.IngestSample(context.Background(), ports.SampleInput{DeliveryID: "DLV-1", Lat: 19.4, Lng: -99.1, AccuracyMeters: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.feed.published) != 1 || h.feed.published[0].CapturedAt.IsZero() {
		t.Errorf("expected one published sample with a capture time, got %+v", h.feed.published)
	}

	err = h.tracker.IngestSample(context.Background(), ports.SampleInput{DeliveryID: "DLV-1", Lat: 91, Lng: 0})
	if !errors.Is(err, domain.ErrInvalidSample) {
		t.Errorf("expected ErrInvalidSample, got: %v", err)
	}
}

func TestTracker_ReportLocationError(t *testing.T) {
	h := newHarness(t)

	if err := h.tracker.ReportLocationError(context.Background(), "DLV-1", "permission_denied"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.feed.failures) != 1 || !errors.Is(h.feed.failures[0], domain.ErrGeolocationDenied) {
		t.Errorf("expected a denied failure, got %v", h.feed.failures)
	}

	if err := h.tracker.ReportLocationError(context.Background(), "DLV-1", "cosmic_rays"); !errors.Is(err, domain.ErrInvalidSample) {
		t.Errorf("expected ErrInvalidSample for unknown codes, got: %v", err)
	}
}
