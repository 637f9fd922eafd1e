package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

type stubSessionService struct {
	startFn  func(ctx context.Context, id string) (*domain.TrackingSession, error)
	recordFn func(ctx context.Context, in ports.PositionInput) error
	closeFn  func(ctx context.Context, id string) error
}

func (s *stubSessionService) Start(ctx context.Context, id string) (*domain.TrackingSession, error) {
	return s.startFn(ctx, id)
}

func (s *stubSessionService) RecordPosition(ctx context.Context, in ports.PositionInput) error {
	return s.recordFn(ctx, in)
}

func (s *stubSessionService) Close(ctx context.Context, id string) error {
	return s.closeFn(ctx, id)
}

func TestTrackingStoreHandler_Start(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stub := &stubSessionService{
		startFn: func(ctx context.Context, id string) (*domain.TrackingSession, error) {
			return &domain.TrackingSession{DeliveryID: id, Status: domain.SessionActive, StartedAt: started}, nil
		},
	}
	h := NewTrackingStoreHandler(stub)

	c, rec := newContext(http.MethodPost, "", "service", "", "DLV-1")
	if err := h.Start(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "active" || resp.StartedAt != "2026-03-01T10:00:00Z" {
		t.Errorf("unexpected session: %+v", resp)
	}
}

func TestTrackingStoreHandler_Position(t *testing.T) {
	var got ports.PositionInput
	stub := &stubSessionService{
		recordFn: func(ctx context.Context, in ports.PositionInput) error {
			got = in
			return nil
		},
	}
	h := NewTrackingStoreHandler(stub)

	c, rec := newContext(http.MethodPut, `{"latitude":19.43,"longitude":-99.13,"timestamp":"2026-03-01T10:00:05Z"}`, "service", "", "DLV-1")
	if err := h.Position(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got.DeliveryID != "DLV-1" || got.Latitude != 19.43 || got.Timestamp.IsZero() {
		t.Errorf("unexpected position input: %+v", got)
	}
}

func TestTrackingStoreHandler_Position_NotStarted(t *testing.T) {
	stub := &stubSessionService{
		recordFn: func(ctx context.Context, in ports.PositionInput) error {
			return domain.ErrSessionNotStarted
		},
	}
	h := NewTrackingStoreHandler(stub)

	c, _ := newContext(http.MethodPut, `{"latitude":1,"longitude":2}`, "service", "", "DLV-1")
	if err := h.Position(c); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected ErrSessionNotStarted, got %v", err)
	}
}

func TestTrackingStoreHandler_Delivered(t *testing.T) {
	closed := ""
	stub := &stubSessionService{
		closeFn: func(ctx context.Context, id string) error {
			closed = id
			return nil
		},
	}
	h := NewTrackingStoreHandler(stub)

	c, rec := newContext(http.MethodPost, "", "service", "", "DLV-1")
	if err := h.Delivered(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || closed != "DLV-1" {
		t.Fatalf("expected 204 closing DLV-1, got %d %q", rec.Code, closed)
	}
}
