package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

type resultLog struct {
	mu       sync.Mutex
	outcomes []PushOutcome
}

func (l *resultLog) record(_ domain.Coordinates, o PushOutcome, _ error) {
	l.mu.Lock()
	l.outcomes = append(l.outcomes, o)
	l.mu.Unlock()
}

func (l *resultLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outcomes)
}

func (l *resultLog) at(i int) PushOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcomes[i]
}

func sample(lat, lng float64) domain.PositionSample {
	return domain.PositionSample{Coordinates: domain.Coordinates{Lat: lat, Lng: lng}, CapturedAt: time.Now()}
}

func newSyncClient(b *stubBackend, log *resultLog) *PositionSyncClient {
	c := NewPositionSyncClient("DLV-1", b, SyncConfig{}, zerolog.Nop())
	c.OnResult(log.record)
	return c
}

func TestPositionSync_WithinThresholdIsDropped(t *testing.T) {
	b := &stubBackend{}
	log := &resultLog{}
	c := newSyncClient(b, log)

	if !c.OnSample(context.Background(), sample(1.00001, 2.00001)) {
		t.Fatal("first sample must be accepted")
	}
	if c.OnSample(context.Background(), sample(1.00002, 2.00002)) {
		t.Error("a 1e-5 move must be dropped")
	}

	eventually(t, func() bool { return log.len() == 1 }, "expected one push result")
	time.Sleep(20 * time.Millisecond)
	if n := b.pushCount(); n != 1 {
		t.Errorf("expected a single forward, got %d", n)
	}
}

func TestPositionSync_BeyondThresholdIsForwarded(t *testing.T) {
	b := &stubBackend{}
	log := &resultLog{}
	c := newSyncClient(b, log)

	c.OnSample(context.Background(), sample(1, 2))
	if !c.OnSample(context.Background(), sample(1.001, 2)) {
		t.Error("a 1e-3 move must be accepted")
	}

	eventually(t, func() bool { return b.pushCount() == 2 }, "expected two forwards, got %d", b.pushCount())
	last, ok := c.Last()
	if !ok || last.Lat != 1.001 {
		t.Errorf("unexpected last position: %+v", last)
	}
}

func TestPositionSync_RaceIsIgnoredAndTrackingContinues(t *testing.T) {
	b := &stubBackend{pushErr: fmt.Errorf("%w: 404", domain.ErrTrackingSessionRace)}
	log := &resultLog{}
	c := newSyncClient(b, log)

	c.OnSample(context.Background(), sample(1, 2))
	eventually(t, func() bool { return log.len() == 1 }, "expected a push result")
	if got := log.at(0); got != PushIgnored {
		t.Errorf("expected PushIgnored, got %s", got)
	}

	b.setPushErr(nil)
	c.OnSample(context.Background(), sample(1.01, 2))
	eventually(t, func() bool { return log.len() == 2 }, "expected a second push result")
	if got := log.at(1); got != PushOK {
		t.Errorf("expected PushOK after the race, got %s", got)
	}
}

func TestPositionSync_RateLimitedSamplesAreAcceptedNotPushed(t *testing.T) {
	b := &stubBackend{}
	c := NewPositionSyncClient("DLV-1", b, SyncConfig{RatePerSec: 0.001, Burst: 1}, zerolog.Nop())

	c.OnSample(context.Background(), sample(1, 2))
	if !c.OnSample(context.Background(), sample(1.01, 2)) {
		t.Error("throttled sample must still be accepted")
	}

	eventually(t, func() bool { return b.pushCount() == 1 }, "expected the first push")
	time.Sleep(20 * time.Millisecond)
	if n := b.pushCount(); n != 1 {
		t.Errorf("expected the second push to be throttled, got %d pushes", n)
	}
	if last, _ := c.Last(); last.Lat != 1.01 {
		t.Errorf("expected the throttled sample as last accepted, got %+v", last)
	}
	if c.forwarded == nil || c.forwarded.Lat != 1 {
		t.Errorf("a throttled sample must not become the filter baseline, got %+v", c.forwarded)
	}
}

func TestPositionSync_ThrottledSampleDoesNotHideNextMove(t *testing.T) {
	b := &stubBackend{}
	c := NewPositionSyncClient("DLV-1", b, SyncConfig{RatePerSec: 1, Burst: 1}, zerolog.Nop())
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.OnSample(context.Background(), sample(1, 2))
	eventually(t, func() bool { return b.pushCount() == 1 }, "expected the first push")

	// Significant but inside the rate bound.
	if !c.OnSample(context.Background(), sample(1.00015, 2)) {
		t.Fatal("throttled sample must still be accepted")
	}

	// 0.9e-4 from the throttled sample, 2.4e-4 from the pushed one.
	clock = clock.Add(1100 * time.Millisecond)
	if !c.OnSample(context.Background(), sample(1.00024, 2)) {
		t.Fatal("a move beyond the threshold from the last pushed position must be accepted")
	}

	eventually(t, func() bool { return b.pushCount() == 2 }, "expected a second push, got %d", b.pushCount())
	b.mu.Lock()
	got := b.pushes[1]
	b.mu.Unlock()
	if got.Lat != 1.00024 {
		t.Errorf("expected the backend to receive the latest position, got %+v", got)
	}
}

func TestPositionSync_Reset(t *testing.T) {
	c := NewPositionSyncClient("DLV-1", &stubBackend{}, SyncConfig{}, zerolog.Nop())
	c.OnSample(context.Background(), sample(1, 2))

	c.Reset()

	if _, ok := c.Last(); ok {
		t.Error("expected no last position after reset")
	}
	if !c.OnSample(context.Background(), sample(1.00001, 2)) {
		t.Error("first sample after reset must be accepted")
	}
}

func TestClassifyPushError(t *testing.T) {
	cases := []struct {
		err  error
		want PushOutcome
	}{
		{nil, PushOK},
		{domain.ErrTrackingSessionRace, PushIgnored},
		{fmt.Errorf("push: %w", domain.ErrTrackingSessionRace), PushIgnored},
		{domain.ErrSyncTransport, PushFailed},
		{errors.New("connection refused"), PushFailed},
	}
	for _, tc := range cases {
		if got := ClassifyPushError(tc.err); got != tc.want {
			t.Errorf("%v: got %s, want %s", tc.err, got, tc.want)
		}
	}
}
