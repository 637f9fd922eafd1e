package ports

import (
	"context"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

// LocationWatcher is the device location capability. It is callback based:
// onSample fires for every sample meeting the policy and onError fires on
// failures (domain.ErrGeolocationTimeout, ErrGeolocationDenied,
// ErrGeolocationUnavailable). The returned stop function releases the watch.
type LocationWatcher interface {
	Watch(deliveryID string, policy domain.SamplePolicy, onSample func(domain.PositionSample), onError func(error)) (stop func(), err error)
	// CurrentPosition returns the freshest known sample no older than
	// policy.MaxSampleAge, or domain.ErrPositionUnavailable.
	CurrentPosition(deliveryID string, policy domain.SamplePolicy) (domain.PositionSample, error)
}

// Geocoder turns free text into candidate coordinates, best match first.
// An empty slice with a nil error means no match.
type Geocoder interface {
	Lookup(ctx context.Context, query string, limit int) ([]domain.Coordinates, error)
}

// GeocodeCache memoizes resolved destinations per delivery.
type GeocodeCache interface {
	Get(ctx context.Context, deliveryID string) (domain.Coordinates, bool, error)
	Set(ctx context.Context, deliveryID string, pos domain.Coordinates) error
}

// Router computes a path between two points.
type Router interface {
	Route(ctx context.Context, from, to domain.Coordinates) (*domain.Route, error)
}

// TrackingBackend is the remote tracking record. Implementations return
// errors matching domain.ErrTrackingSessionRace when the backend reports the
// session as not started, and domain.ErrSyncTransport for anything else.
type TrackingBackend interface {
	Start(ctx context.Context, deliveryID string) error
	PushPosition(ctx context.Context, deliveryID string, pos domain.Coordinates) error
	Delivered(ctx context.Context, deliveryID string) error
}

// MapSurface is the rendering side of the live map. Create is called once per
// delivery; Send is fire-and-forget; Release frees the surface.
type MapSurface interface {
	Create(deliveryID string, init domain.MapInit) (handle string, err error)
	Send(handle string, msg domain.PositionUpdate)
	Release(handle string)
}

// SampleFeed receives what the courier device reports: samples and
// location failures. Samples are delivered to active watches in order.
type SampleFeed interface {
	Publish(deliveryID string, sample domain.PositionSample) error
	Fail(deliveryID string, err error)
}
