package ports

import (
	"context"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

// PositionInput is the DTO for a position push received by the tracking store.
type PositionInput struct {
	DeliveryID string
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time
}

// SessionService is the tracking store: the remote record the engine
// synchronizes courier positions into.
type SessionService interface {
	Start(ctx context.Context, deliveryID string) (*domain.TrackingSession, error)
	RecordPosition(ctx context.Context, in PositionInput) error
	Close(ctx context.Context, deliveryID string) error
}
