package domain

import "time"

// TrackingStatus represents the lifecycle state of a delivery being tracked.
type TrackingStatus string

const (
	StatusPending   TrackingStatus = "pending"
	StatusInTransit TrackingStatus = "in_transit"
	StatusDelivered TrackingStatus = "delivered"
)

// validTransitions defines the allowed state machine transitions.
var validTransitions = map[TrackingStatus][]TrackingStatus{
	StatusPending:   {StatusInTransit},
	StatusInTransit: {StatusDelivered},
}

// statusRank orders the statuses; a record never moves to a lower rank.
var statusRank = map[TrackingStatus]int{
	StatusPending:   0,
	StatusInTransit: 1,
	StatusDelivered: 2,
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s TrackingStatus) CanTransitionTo(next TrackingStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s TrackingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Valid reports whether s is one of the known statuses.
func (s TrackingStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, or -1 when unknown.
func (s TrackingStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Before returns the statuses that precede s.
func (s TrackingStatus) Before() []TrackingStatus {
	var out []TrackingStatus
	for _, st := range []TrackingStatus{StatusPending, StatusInTransit, StatusDelivered} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// DeliveryTracking is the aggregate advanced by the tracking engine. Records
// are created in Pending by the order side and only ever move forward.
type DeliveryTracking struct {
	DeliveryID          string         `json:"delivery_id" bson:"_id"`
	OrderID             string         `json:"order_id" bson:"order_id"`
	CourierID           string         `json:"courier_id" bson:"courier_id"`
	Status              TrackingStatus `json:"status" bson:"status"`
	CourierPosition     *Coordinates   `json:"courier_position,omitempty" bson:"courier_position,omitempty"`
	DestinationPosition *Coordinates   `json:"destination_position,omitempty" bson:"destination_position,omitempty"`
	StartedAt           *time.Time     `json:"started_at,omitempty" bson:"started_at,omitempty"`
	DeliveredAt         *time.Time     `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at" bson:"created_at"`
}

// Start moves the record from Pending to InTransit. A courier position is
// required; when the record has none, at must carry one.
func (t *DeliveryTracking) Start(now time.Time, at *Coordinates) error {
	if t.Status != StatusPending {
		return &TransitionError{From: t.Status, To: StatusInTransit}
	}
	if at != nil {
		c := *at
		t.CourierPosition = &c
	}
	if t.CourierPosition == nil {
		return ErrPositionUnavailable
	}
	ts := now.UTC()
	t.Status = StatusInTransit
	t.StartedAt = &ts
	return nil
}

// Deliver moves the record from InTransit to Delivered.
func (t *DeliveryTracking) Deliver(now time.Time) error {
	if t.Status != StatusInTransit {
		return &TransitionError{From: t.Status, To: StatusDelivered}
	}
	ts := now.UTC()
	t.Status = StatusDelivered
	t.DeliveredAt = &ts
	return nil
}

// AcceptsSamples reports whether position samples may still flow to sync and
// the live map.
func (t *DeliveryTracking) AcceptsSamples() bool {
	return t.Status == StatusInTransit
}

// Clone returns a deep copy safe to hand outside the owning goroutine.
func (t DeliveryTracking) Clone() DeliveryTracking {
	out := t
	if t.CourierPosition != nil {
		c := *t.CourierPosition
		out.CourierPosition = &c
	}
	if t.DestinationPosition != nil {
		c := *t.DestinationPosition
		out.DestinationPosition = &c
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.DeliveredAt != nil {
		ts := *t.DeliveredAt
		out.DeliveredAt = &ts
	}
	return out
}

// DeliveryOrder is the read-only order data the tracking engine needs.
type DeliveryOrder struct {
	OrderID         string `json:"order_id" bson:"_id"`
	DeliveryAddress string `json:"delivery_address" bson:"delivery_address"`
	CustomerName    string `json:"customer_name" bson:"customer_name"`
	CustomerPhone   string `json:"customer_phone" bson:"customer_phone"`
}
