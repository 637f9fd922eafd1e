package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionUnavailable means no courier fix is known yet.
	ErrPositionUnavailable = errors.New("courier position unavailable")
	// ErrGeolocationDenied means the device refused location access.
	ErrGeolocationDenied = errors.New("geolocation permission denied")
	// ErrGeolocationUnavailable means the device could not produce a fix.
	ErrGeolocationUnavailable = errors.New("geolocation position unavailable")
	// ErrGeolocationTimeout means no acceptable sample arrived within the policy timeout.
	ErrGeolocationTimeout = errors.New("geolocation timeout")

	ErrResolutionFailed = errors.New("address resolution failed")
	ErrRouteUnavailable = errors.New("route unavailable")

	// ErrTrackingSessionRace is the backend answering "session not started"
	// while the local machine is already InTransit.
	ErrTrackingSessionRace = errors.New("tracking session not started yet")
	ErrSyncTransport       = errors.New("position sync transport failure")

	ErrAlreadyInState    = errors.New("already in requested or terminal state")
	ErrNotInTransit      = errors.New("delivery is not in transit")
	ErrTrackingNotFound  = errors.New("delivery tracking not found")
	ErrDuplicateTracking = errors.New("delivery tracking already exists")
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("access forbidden")
	ErrInvalidSample     = errors.New("invalid position sample")
	ErrMapInitialized    = errors.New("live map already initialized")

	// Tracking store (backend side).
	ErrSessionNotStarted = errors.New("tracking session not started")
	ErrSessionClosed     = errors.New("tracking session closed")
)

// TransitionError reports an illegal state machine request. It matches
// ErrAlreadyInState so callers can treat it as a no-op.
type TransitionError struct {
	From TrackingStatus
	To   TrackingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s (from %s to %s)", ErrAlreadyInState, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrAlreadyInState
}

// ResolutionError carries diagnostics for a failed geocode. Every instance
// matches ErrResolutionFailed.
type ResolutionError struct {
	Query    string
	TimedOut bool
	Err      error
}

func (e *ResolutionError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s: lookup %q aborted by timeout", ErrResolutionFailed, e.Query)
	case e.Err != nil:
		return fmt.Sprintf("%s: lookup %q: %v", ErrResolutionFailed, e.Query, e.Err)
	default:
		return fmt.Sprintf("%s: no match for %q", ErrResolutionFailed, e.Query)
	}
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// LocationErrorFromCode maps a device error code to the taxonomy.
func LocationErrorFromCode(code string) (error, bool) {
	switch code {
	case "permission_denied":
		return ErrGeolocationDenied, true
	case "position_unavailable":
		return ErrGeolocationUnavailable, true
	case "timeout":
		return ErrGeolocationTimeout, true
	}
	return nil, false
}
