package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Location watcher
// ---------------------------------------------------------------------------

type watch struct {
	policy   domain.SamplePolicy
	onSample func(domain.PositionSample)
	onError  func(error)
	stopped  bool
}

type stubWatcher struct {
	mu       sync.Mutex
	watches  []*watch
	current  *domain.PositionSample
	watchErr error
}

func (w *stubWatcher) Watch(_ string, policy domain.SamplePolicy, onSample func(domain.PositionSample), onError func(error)) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchErr != nil {
		return nil, w.watchErr
	}
	wt := &watch{policy: policy, onSample: onSample, onError: onError}
	w.watches = append(w.watches, wt)
	return func() {
		w.mu.Lock()
		wt.stopped = true
		w.mu.Unlock()
	}, nil
}

func (w *stubWatcher) CurrentPosition(string, domain.SamplePolicy) (domain.PositionSample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return domain.PositionSample{}, domain.ErrPositionUnavailable
	}
	return *w.current, nil
}

func (w *stubWatcher) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}

func (w *stubWatcher) active() *watch {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.watches) - 1; i >= 0; i-- {
		if !w.watches[i].stopped {
			return w.watches[i]
		}
	}
	return nil
}

func (w *stubWatcher) policies() []domain.SamplePolicy {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.SamplePolicy, 0, len(w.watches))
	for _, wt := range w.watches {
		out = append(out, wt.policy)
	}
	return out
}

// waitActive waits for the n-th watch (1-based) to be opened and returns it.
func (w *stubWatcher) waitActive(t *testing.T, n int) *watch {
	t.Helper()
	eventually(t, func() bool { return w.count() >= n && w.active() != nil }, "watch #%d never opened", n)
	return w.active()
}

// emit delivers a sample through the active watch.
func (w *stubWatcher) emit(t *testing.T, lat, lng float64) {
	t.Helper()
	wt := w.waitActive(t, 1)
	wt.onSample(domain.PositionSample{
		Coordinates:    domain.Coordinates{Lat: lat, Lng: lng},
		CapturedAt:     time.Now(),
		AccuracyMeters: 5,
	})
}

// ---------------------------------------------------------------------------
// Tracking backend
// ---------------------------------------------------------------------------

type stubBackend struct {
	mu        sync.Mutex
	startErr  error
	pushErr   error
	doneErr   error
	starts    int
	delivered int
	pushes    []domain.Coordinates
	// gate, when set, blocks pushes until it is closed.
	gate chan struct{}
}

func (b *stubBackend) Start(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	return b.startErr
}

func (b *stubBackend) PushPosition(_ context.Context, _ string, pos domain.Coordinates) error {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushes = append(b.pushes, pos)
	return b.pushErr
}

func (b *stubBackend) Delivered(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivered++
	return b.doneErr
}

func (b *stubBackend) pushCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pushes)
}

func (b *stubBackend) setPushErr(err error) {
	b.mu.Lock()
	b.pushErr = err
	b.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Tracking repository and order directory
// ---------------------------------------------------------------------------

type stubTrackingRepo struct {
	mu      sync.Mutex
	records map[string]*domain.DeliveryTracking
	saves   int
}

func newStubTrackingRepo(recs ...domain.DeliveryTracking) *stubTrackingRepo {
	r := &stubTrackingRepo{records: make(map[string]*domain.DeliveryTracking)}
	for _, rec := range recs {
		rec := rec
		r.records[rec.DeliveryID] = &rec
	}
	return r
}

func (r *stubTrackingRepo) Create(_ context.Context, t *domain.DeliveryTracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[t.DeliveryID]; ok {
		return domain.ErrDuplicateTracking
	}
	c := t.Clone()
	r.records[t.DeliveryID] = &c
	return nil
}

func (r *stubTrackingRepo) FindByDeliveryID(_ context.Context, id string) (*domain.DeliveryTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrTrackingNotFound
	}
	c := rec.Clone()
	return &c, nil
}

func (r *stubTrackingRepo) SaveTransition(_ context.Context, t *domain.DeliveryTracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	rec, ok := r.records[t.DeliveryID]
	if !ok {
		return domain.ErrTrackingNotFound
	}
	if rec.Status.Rank() >= t.Status.Rank() {
		return nil
	}
	rec.Status = t.Status
	rec.StartedAt = t.StartedAt
	rec.DeliveredAt = t.DeliveredAt
	return nil
}

func (r *stubTrackingRepo) SaveCourierPosition(_ context.Context, id string, pos domain.Coordinates, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.CourierPosition = &pos
	}
	return nil
}

func (r *stubTrackingRepo) SaveDestination(_ context.Context, id string, pos domain.Coordinates) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.DestinationPosition = &pos
	}
	return nil
}

func (r *stubTrackingRepo) status(id string) domain.TrackingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id].Status
}

type stubOrders map[string]string

func (o stubOrders) FindOrder(_ context.Context, orderID string) (*domain.DeliveryOrder, error) {
	addr, ok := o[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &domain.DeliveryOrder{OrderID: orderID, DeliveryAddress: addr}, nil
}

// ---------------------------------------------------------------------------
// Map surface
// ---------------------------------------------------------------------------

type stubSurface struct {
	mu        sync.Mutex
	creates   []domain.MapInit
	updates   []domain.PositionUpdate
	releases  int
	createErr error
}

func (s *stubSurface) Create(deliveryID string, init domain.MapInit) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.creates = append(s.creates, init)
	return fmt.Sprintf("map-%s-%d", deliveryID, len(s.creates)), nil
}

func (s *stubSurface) Send(_ string, msg domain.PositionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, msg)
}

func (s *stubSurface) Release(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
}

func (s *stubSurface) counts() (creates, updates, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates), len(s.updates), s.releases
}

// ---------------------------------------------------------------------------
// Geocoder, cache and router
// ---------------------------------------------------------------------------

type stubGeocoder struct {
	mu      sync.Mutex
	results map[string][]domain.Coordinates
	err     error
	block   bool
	queries []string
}

func (g *stubGeocoder) Lookup(ctx context.Context, query string, _ int) ([]domain.Coordinates, error) {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	block, err, res := g.block, g.err, g.results[query]
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (g *stubGeocoder) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

type stubCache struct {
	mu      sync.Mutex
	entries map[string]domain.Coordinates
}

func newStubCache() *stubCache { return &stubCache{entries: make(map[string]domain.Coordinates)} }

func (c *stubCache) Get(_ context.Context, id string) (domain.Coordinates, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.entries[id]
	return pos, ok, nil
}

func (c *stubCache) Set(_ context.Context, id string, pos domain.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = pos
	return nil
}

type stubRouter struct {
	route *domain.Route
	err   error
}

func (r *stubRouter) Route(context.Context, domain.Coordinates, domain.Coordinates) (*domain.Route, error) {
	return r.route, r.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func eventually(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

var testPolicy = domain.SamplePolicy{HighAccuracy: true, Timeout: 30 * time.Second, MaxSampleAge: 10 * time.Second}
