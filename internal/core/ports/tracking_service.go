package ports

import (
	"context"
	"time"
)

// CoordinatesInput holds geographic coordinates.
type CoordinatesInput struct {
	Lat float64
	Lng float64
}

// Actor identifies the caller so couriers only touch their own deliveries.
type Actor struct {
	Role      string
	CourierID string
}

// RegisterDeliveryInput creates a Pending tracking record.
type RegisterDeliveryInput struct {
	DeliveryID string
	OrderID    string
	CourierID  string
}

// StartDeliveryInput carries the data needed for Pending → InTransit.
type StartDeliveryInput struct {
	DeliveryID string
	Actor      Actor
	// LastKnown is an optional position supplied by the caller.
	LastKnown *CoordinatesInput
}

// SampleInput is a device sample posted by the courier app.
type SampleInput struct {
	DeliveryID     string
	Lat            float64
	Lng            float64
	AccuracyMeters float64
	CapturedAt     time.Time
}

// TrackingView is the externally visible state of a delivery.
type TrackingView struct {
	DeliveryID          string
	OrderID             string
	CourierID           string
	Status              string
	CourierPosition     *CoordinatesInput
	DestinationPosition *CoordinatesInput
	StartedAt           *time.Time
	DeliveredAt         *time.Time
	MapHandle           string
	// Notices are non-blocking warnings (route missing, sync failures,
	// destination unresolved, device errors).
	Notices []string
}

// TrackingService is the driving port of the tracking engine.
type TrackingService interface {
	RegisterDelivery(ctx context.Context, in RegisterDeliveryInput) (*TrackingView, error)
	StartDelivery(ctx context.Context, in StartDeliveryInput) (*TrackingView, error)
	ConfirmStart(ctx context.Context, deliveryID string, actor Actor) error
	MarkDelivered(ctx context.Context, deliveryID string, actor Actor) (*TrackingView, error)
	RetryDestination(ctx context.Context, deliveryID string, actor Actor) (*TrackingView, error)
	ResumeLocation(ctx context.Context, deliveryID string, actor Actor) (*TrackingView, error)
	Get(ctx context.Context, deliveryID string, actor Actor) (*TrackingView, error)
	Authorize(ctx context.Context, deliveryID string, actor Actor) error
	IngestSample(ctx context.Context, in SampleInput) error
	ReportLocationError(ctx context.Context, deliveryID, code string) error
}
