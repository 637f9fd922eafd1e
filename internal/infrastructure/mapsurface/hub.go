// Package mapsurface keeps the live map surfaces and fans their messages out
// to subscribed browsers.
package mapsurface

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
	"github.com/99minutos/courier-tracking/internal/pkg/metrics"
)

var _ ports.MapSurface = (*Hub)(nil)

const (
	EventInit           = domain.MessageTypeInit
	EventUpdatePosition = domain.MessageTypeUpdatePosition
	EventDispose        = "dispose"

	subscriberBuffer = 16
)

// Event is one message of a surface stream.
type Event struct {
	Name string
	Data any
}

type surface struct {
	handle     string
	deliveryID string
	init       domain.MapInit
	last       *domain.PositionUpdate
}

type subscriber struct {
	ch chan Event
}

// Hub implements ports.MapSurface. Subscribers attach per delivery and may
// connect before or after the surface is created.
type Hub struct {
	log zerolog.Logger

	mu          sync.Mutex
	surfaces    map[string]*surface // by handle
	byDelivery  map[string]string   // deliveryID -> handle
	subscribers map[string]map[*subscriber]struct{}
}

// NewHub returns an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:         log.With().Str("component", "map_hub").Logger(),
		surfaces:    make(map[string]*surface),
		byDelivery:  make(map[string]string),
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

// Create allocates a surface for deliveryID and sends init to its subscribers.
func (h *Hub) Create(deliveryID string, init domain.MapInit) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.byDelivery[deliveryID]; ok {
		h.release(old)
	}

	s := &surface{handle: uuid.NewString(), deliveryID: deliveryID, init: init}
	h.surfaces[s.handle] = s
	h.byDelivery[deliveryID] = s.handle
	metrics.LiveSurfaces.Inc()

	h.broadcast(deliveryID, Event{Name: EventInit, Data: init})
	h.log.Debug().Str("delivery_id", deliveryID).Str("handle", s.handle).Msg("surface created")
	return s.handle, nil
}

// Send forwards a position update. Slow subscribers miss updates.
func (h *Hub) Send(handle string, msg domain.PositionUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.surfaces[handle]
	if !ok {
		return
	}
	s.last = &msg
	h.broadcast(s.deliveryID, Event{Name: EventUpdatePosition, Data: msg})
}

// Release frees the surface and ends every subscription of its delivery.
func (h *Hub) Release(handle string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.release(handle)
}

// Subscribe attaches to the surface stream of deliveryID. When the surface
// already exists the stream starts with init and the last known position.
// cancel detaches; the channel is closed after dispose or cancel.
func (h *Hub) Subscribe(deliveryID string) (events <-chan Event, cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if h.subscribers[deliveryID] == nil {
		h.subscribers[deliveryID] = make(map[*subscriber]struct{})
	}
	h.subscribers[deliveryID][sub] = struct{}{}

	if handle, ok := h.byDelivery[deliveryID]; ok {
		s := h.surfaces[handle]
		sub.ch <- Event{Name: EventInit, Data: s.init}
		if s.last != nil {
			sub.ch <- Event{Name: EventUpdatePosition, Data: *s.last}
		}
	}

	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[deliveryID][sub]; ok {
			delete(h.subscribers[deliveryID], sub)
			if len(h.subscribers[deliveryID]) == 0 {
				delete(h.subscribers, deliveryID)
			}
			close(sub.ch)
		}
	}
}

// Close releases every surface and ends every subscription, including
// those still waiting for a surface.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for handle := range h.surfaces {
		h.release(handle)
	}
	for deliveryID, subs := range h.subscribers {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.subscribers, deliveryID)
	}
}

// Surfaces returns the number of live surfaces.
func (h *Hub) Surfaces() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

func (h *Hub) release(handle string) {
	s, ok := h.surfaces[handle]
	if !ok {
		return
	}
	delete(h.surfaces, handle)
	if h.byDelivery[s.deliveryID] == handle {
		delete(h.byDelivery, s.deliveryID)
	}
	metrics.LiveSurfaces.Dec()

	for sub := range h.subscribers[s.deliveryID] {
		select {
		case sub.ch <- Event{Name: EventDispose, Data: map[string]string{"handle": handle}}:
		default:
		}
		close(sub.ch)
	}
	delete(h.subscribers, s.deliveryID)
	h.log.Debug().Str("delivery_id", s.deliveryID).Str("handle", handle).Msg("surface released")
}

func (h *Hub) broadcast(deliveryID string, ev Event) {
	for sub := range h.subscribers[deliveryID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Debug().Str("delivery_id", deliveryID).Str("event", ev.Name).Msg("slow map subscriber, event dropped")
		}
	}
}
