package domain

import (
	"math"
	"time"
)

// EarthRadius is the WGS84 semi-major axis in meters.
const EarthRadius = 6378137.0

// Coordinates represents a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether c is a finite point inside the WGS84 ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DiffersFrom reports whether c moved by more than threshold degrees on
// either axis relative to prev.
func (c Coordinates) DiffersFrom(prev Coordinates, threshold float64) bool {
	return math.Abs(c.Lat-prev.Lat) > threshold || math.Abs(c.Lng-prev.Lng) > threshold
}

// DistanceTo returns the haversine distance to other in meters.
func (c Coordinates) DistanceTo(other Coordinates) float64 {
	lat1 := degreesToRadians(c.Lat)
	lat2 := degreesToRadians(other.Lat)
	dLat := lat2 - lat1
	dLng := degreesToRadians(other.Lng - c.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

// PositionSample is a single device fix. It is never persisted as such.
type PositionSample struct {
	Coordinates
	CapturedAt     time.Time `json:"captured_at"`
	AccuracyMeters float64   `json:"accuracy_meters"`
}

// SamplePolicy controls how the device is asked for samples.
type SamplePolicy struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxSampleAge time.Duration
}

// Fallback returns the relaxed policy used after a timeout: low accuracy,
// at least twice the timeout and a max sample age of at least fallbackAge.
func (p SamplePolicy) Fallback(fallbackAge time.Duration) SamplePolicy {
	age := p.MaxSampleAge
	if fallbackAge > age {
		age = fallbackAge
	}
	return SamplePolicy{
		HighAccuracy: false,
		Timeout:      2 * p.Timeout,
		MaxSampleAge: age,
	}
}

// Route is a path geometry between the courier and the destination.
type Route struct {
	Points          []Coordinates `json:"points"`
	DistanceMeters  float64       `json:"distance_meters"`
	DurationSeconds float64       `json:"duration_seconds"`
}

// Bounds is an axis-aligned box of coordinates.
type Bounds struct {
	SouthWest Coordinates `json:"south_west"`
	NorthEast Coordinates `json:"north_east"`
}

// BoundsOf returns the smallest box that contains every point. It returns
// false for an empty input.
func BoundsOf(points ...Coordinates) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := Bounds{SouthWest: points[0], NorthEast: points[0]}
	for _, p := range points[1:] {
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
	}
	return b, true
}

// Pad grows the box by ratio of its span on each side.
func (b Bounds) Pad(ratio float64) Bounds {
	dLat := (b.NorthEast.Lat - b.SouthWest.Lat) * ratio
	dLng := (b.NorthEast.Lng - b.SouthWest.Lng) * ratio
	return Bounds{
		SouthWest: Coordinates{Lat: b.SouthWest.Lat - dLat, Lng: b.SouthWest.Lng - dLng},
		NorthEast: Coordinates{Lat: b.NorthEast.Lat + dLat, Lng: b.NorthEast.Lng + dLng},
	}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Coordinates {
	return Coordinates{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}
