package ports

import (
	"context"
	"time"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

// SessionRepository persists backend tracking sessions and their audit trail.
type SessionRepository interface {
	// Start creates the session for deliveryID or leaves an existing one
	// untouched. It returns the stored session.
	Start(ctx context.Context, deliveryID string, ts time.Time) (*domain.TrackingSession, error)

	// UpdatePosition sets the latest courier position of an active session.
	// It returns domain.ErrSessionNotStarted when no session exists and
	// domain.ErrSessionClosed when it was already closed.
	UpdatePosition(ctx context.Context, deliveryID string, pos domain.Coordinates, ts time.Time) error

	// Close marks the session closed. Closing twice is not an error.
	Close(ctx context.Context, deliveryID string, ts time.Time) error

	// InsertEvent persists an entry to the tracking_events audit collection.
	InsertEvent(ctx context.Context, event *domain.SessionEvent) error
}
