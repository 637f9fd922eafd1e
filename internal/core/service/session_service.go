package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

type sessionService struct {
	repo ports.SessionRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewSessionService returns the tracking store implementation.
func NewSessionService(repo ports.SessionRepository, log zerolog.Logger) ports.SessionService {
	return &sessionService{
		repo: repo,
		log:  log.With().Str("component", "tracking_store").Logger(),
		now:  time.Now,
	}
}

// Start creates the tracking session, or confirms an existing one.
func (s *sessionService) Start(ctx context.Context, deliveryID string) (*domain.TrackingSession, error) {
	ts := s.now().UTC()
	session, err := s.repo.Start(ctx, deliveryID, ts)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	s.audit(ctx, &domain.SessionEvent{DeliveryID: deliveryID, Kind: domain.EventSessionStarted, Timestamp: ts})
	s.log.Info().Str("delivery_id", deliveryID).Str("status", string(session.Status)).Msg("tracking session started")
	return session, nil
}

// RecordPosition stores the latest courier position of an active session.
func (s *sessionService) RecordPosition(ctx context.Context, in ports.PositionInput) error {
	pos := domain.Coordinates{Lat: in.Latitude, Lng: in.Longitude}
	if !pos.Valid() {
		return fmt.Errorf("record position: %w", domain.ErrInvalidSample)
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	if err := s.repo.UpdatePosition(ctx, in.DeliveryID, pos, ts.UTC()); err != nil {
		return fmt.Errorf("record position: %w", err)
	}

	// Audit trail failures never fail the push.
	s.audit(ctx, &domain.SessionEvent{DeliveryID: in.DeliveryID, Kind: domain.EventPositionUpdated, Timestamp: ts.UTC(), Position: &pos})
	s.log.Debug().Str("delivery_id", in.DeliveryID).Msg("position recorded")
	return nil
}

// Close ends the session once the delivery is done.
func (s *sessionService) Close(ctx context.Context, deliveryID string) error {
	ts := s.now().UTC()
	if err := s.repo.Close(ctx, deliveryID, ts); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	s.audit(ctx, &domain.SessionEvent{DeliveryID: deliveryID, Kind: domain.EventSessionClosed, Timestamp: ts})
	s.log.Info().Str("delivery_id", deliveryID).Msg("tracking session closed")
	return nil
}

func (s *sessionService) audit(ctx context.Context, ev *domain.SessionEvent) {
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", ev.DeliveryID).Str("kind", ev.Kind).Msg("failed to insert audit event")
	}
}
