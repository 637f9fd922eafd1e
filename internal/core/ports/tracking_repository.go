package ports

import (
	"context"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

// TrackingRepository persists DeliveryTracking records. It is the
// externally observed copy of the state; the live session is authoritative.
type TrackingRepository interface {
	Create(ctx context.Context, t *domain.DeliveryTracking) error
	FindByDeliveryID(ctx context.Context, deliveryID string) (*domain.DeliveryTracking, error)
	// SaveTransition writes status and timestamps of t, but only when the
	// stored status precedes t.Status, so writes landing out of order never
	// regress the record.
	SaveTransition(ctx context.Context, t *domain.DeliveryTracking) error
	SaveCourierPosition(ctx context.Context, deliveryID string, pos domain.Coordinates, ts time.Time) error
	SaveDestination(ctx context.Context, deliveryID string, pos domain.Coordinates) error
}

// OrderDirectory reads order data owned by the order service.
type OrderDirectory interface {
	FindOrder(ctx context.Context, orderID string) (*domain.DeliveryOrder, error)
}
