package domain

import "time"

const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleCourier    = "courier"
	RoleService    = "service"
)

// SessionStatus is the lifecycle of a backend tracking session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// TrackingSession is the backend-side record paired 1:1 with a
// DeliveryTracking, created when the delivery goes InTransit.
type TrackingSession struct {
	DeliveryID        string        `json:"delivery_id" bson:"_id"`
	Status            SessionStatus `json:"status" bson:"status"`
	Position          *Coordinates  `json:"position,omitempty" bson:"position,omitempty"`
	PositionUpdatedAt *time.Time    `json:"position_updated_at,omitempty" bson:"position_updated_at,omitempty"`
	StartedAt         time.Time     `json:"started_at" bson:"started_at"`
	ClosedAt          *time.Time    `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// SessionEvent is an audit entry for an accepted tracking store call.
type SessionEvent struct {
	DeliveryID string       `json:"delivery_id"`
	Kind       string       `json:"kind"`
	Timestamp  time.Time    `json:"timestamp"`
	Position   *Coordinates `json:"position,omitempty"`
}

const (
	EventSessionStarted  = "started"
	EventPositionUpdated = "position"
	EventSessionClosed   = "delivered"
)
