package service

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

// LiveMapChannel owns the map surface of one delivery. The surface is
// created at most once; afterwards only position messages are sent.
// Not safe for concurrent use: it lives on the session goroutine.
type LiveMapChannel struct {
	deliveryID string
	surface    ports.MapSurface
	log        zerolog.Logger

	handle      string
	initialized bool
	disposed    bool
	framing     domain.Framing
}

// NewLiveMapChannel returns an uninitialized channel for deliveryID.
func NewLiveMapChannel(deliveryID string, surface ports.MapSurface, log zerolog.Logger) *LiveMapChannel {
	return &LiveMapChannel{
		deliveryID: deliveryID,
		surface:    surface,
		log:        log.With().Str("component", "live_map").Str("delivery_id", deliveryID).Logger(),
	}
}

// Initialize creates the surface and computes the camera framing from route
// (or from both endpoints when route is nil). A second call returns
// domain.ErrMapInitialized and leaves the existing surface alone.
func (m *LiveMapChannel) Initialize(courier, destination domain.Coordinates, route *domain.Route) (string, error) {
	if m.initialized {
		return m.handle, domain.ErrMapInitialized
	}

	framing := domain.FrameRoute(courier, destination, route)
	init := domain.MapInit{
		Type:        domain.MessageTypeInit,
		DeliveryID:  m.deliveryID,
		Courier:     courier,
		Destination: destination,
		Framing:     framing,
	}
	if route != nil {
		init.Route = route.Points
	}

	handle, err := m.surface.Create(m.deliveryID, init)
	if err != nil {
		return "", fmt.Errorf("create map surface: %w", err)
	}

	m.handle = handle
	m.initialized = true
	m.framing = framing
	m.log.Info().Str("handle", handle).Bool("route", route != nil).Int("zoom", framing.Zoom).Msg("live map initialized")
	return handle, nil
}

// Initialized reports whether the surface exists.
func (m *LiveMapChannel) Initialized() bool { return m.initialized && !m.disposed }

// Handle returns the surface handle, empty before initialization.
func (m *LiveMapChannel) Handle() string { return m.handle }

// Framing returns the camera framing fixed at initialization.
func (m *LiveMapChannel) Framing() domain.Framing { return m.framing }

// UpdatePosition moves the courier marker. It never reframes the camera and
// is a no-op before initialization or after disposal.
func (m *LiveMapChannel) UpdatePosition(pos domain.Coordinates) {
	if !m.Initialized() {
		return
	}
	m.surface.Send(m.handle, domain.NewPositionUpdate(pos))
}

// Dispose releases the surface. Safe to call more than once.
func (m *LiveMapChannel) Dispose() {
	if !m.initialized || m.disposed {
		return
	}
	m.disposed = true
	m.surface.Release(m.handle)
	m.log.Debug().Str("handle", m.handle).Msg("live map disposed")
}
