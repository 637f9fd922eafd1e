package handler

import (
	"time"

	"github.com/99minutos/courier-tracking/internal/core/ports"
)

type registerDeliveryRequest struct {
	DeliveryID string `json:"delivery_id" validate:"required"`
	OrderID    string `json:"order_id"    validate:"required"`
	CourierID  string `json:"courier_id"  validate:"required"`
}

// startDeliveryRequest optionally carries the courier's last known fix.
type startDeliveryRequest struct {
	Latitude  *float64 `json:"latitude"  validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type coordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type deliveryLinks struct {
	Self      string `json:"self"`
	MapStream string `json:"map_stream"`
}

type trackingResponse struct {
	DeliveryID          string               `json:"delivery_id"`
	OrderID             string               `json:"order_id"`
	CourierID           string               `json:"courier_id"`
	Status              string               `json:"status"`
	CourierPosition     *coordinatesResponse `json:"courier_position,omitempty"`
	DestinationPosition *coordinatesResponse `json:"destination_position,omitempty"`
	StartedAt           *string              `json:"started_at,omitempty"`
	DeliveredAt         *string              `json:"delivered_at,omitempty"`
	MapHandle           string               `json:"map_handle,omitempty"`
	Notices             []string             `json:"notices,omitempty"`
	Links               deliveryLinks        `json:"_links"`
}

func toTrackingResponse(v *ports.TrackingView) trackingResponse {
	return trackingResponse{
		DeliveryID:          v.DeliveryID,
		OrderID:             v.OrderID,
		CourierID:           v.CourierID,
		Status:              v.Status,
		CourierPosition:     toCoordinatesResponse(v.CourierPosition),
		DestinationPosition: toCoordinatesResponse(v.DestinationPosition),
		StartedAt:           formatTime(v.StartedAt),
		DeliveredAt:         formatTime(v.DeliveredAt),
		MapHandle:           v.MapHandle,
		Notices:             v.Notices,
		Links: deliveryLinks{
			Self:      "/v1/deliveries/" + v.DeliveryID,
			MapStream: "/v1/deliveries/" + v.DeliveryID + "/map/stream",
		},
	}
}

func toCoordinatesResponse(c *ports.CoordinatesInput) *coordinatesResponse {
	if c == nil {
		return nil
	}
	return &coordinatesResponse{Lat: c.Lat, Lng: c.Lng}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
