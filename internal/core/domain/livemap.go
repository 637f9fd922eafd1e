package domain

import "math"

const (
	MessageTypeInit           = "init"
	MessageTypeUpdatePosition = "updatePosition"

	minZoom = 3
	maxZoom = 18
)

// Framing is the camera placement computed once when a surface is created.
type Framing struct {
	Bounds Bounds      `json:"bounds"`
	Center Coordinates `json:"center"`
	Zoom   int         `json:"zoom"`
}

// FrameRoute computes the camera framing from the route geometry, or from
// the two endpoints when there is no route.
func FrameRoute(courier, destination Coordinates, route *Route) Framing {
	points := []Coordinates{courier, destination}
	if route != nil && len(route.Points) >= 2 {
		points = route.Points
	}
	b, _ := BoundsOf(points...)
	b = b.Pad(0.1)
	return Framing{Bounds: b, Center: b.Center(), Zoom: zoomFor(b)}
}

// zoomFor picks the web-mercator zoom whose 360/2^z degree tile width
// covers the larger span of b.
func zoomFor(b Bounds) int {
	span := math.Max(b.NorthEast.Lat-b.SouthWest.Lat, b.NorthEast.Lng-b.SouthWest.Lng)
	if span <= 0 {
		return maxZoom
	}
	z := int(math.Floor(math.Log2(360 / span)))
	if z < minZoom {
		return minZoom
	}
	if z > maxZoom {
		return maxZoom
	}
	return z
}

// MapInit is the one-time payload used to create a live map surface.
type MapInit struct {
	Type        string        `json:"type"`
	DeliveryID  string        `json:"delivery_id"`
	Courier     Coordinates   `json:"courier"`
	Destination Coordinates   `json:"destination"`
	Route       []Coordinates `json:"route,omitempty"`
	Framing     Framing       `json:"framing"`
}

// PositionUpdate is the incremental message that moves the courier marker
// without touching the camera.
type PositionUpdate struct {
	Type string  `json:"type"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// NewPositionUpdate builds an updatePosition message for c.
func NewPositionUpdate(c Coordinates) PositionUpdate {
	return PositionUpdate{Type: MessageTypeUpdatePosition, Lat: c.Lat, Lng: c.Lng}
}
