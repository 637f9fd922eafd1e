package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

const (
	collectionSessions = "tracking_sessions"
	collectionEvents   = "tracking_events"
)

// SessionRepository implements ports.SessionRepository using MongoDB.
type SessionRepository struct {
	db *mongo.Database
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{db: db}
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) sessions() *mongo.Collection { return r.db.Collection(collectionSessions) }

// Start upserts the session with $setOnInsert so a repeated start keeps the
// original document.
func (r *SessionRepository) Start(ctx context.Context, deliveryID string, ts time.Time) (*domain.TrackingSession, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$setOnInsert": bson.M{
		"status":     domain.SessionActive,
		"started_at": ts.UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var s domain.TrackingSession
	if err := r.sessions().FindOneAndUpdate(ctx, bson.M{"_id": deliveryID}, update, opts).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdatePosition sets the position of an active session.
func (r *SessionRepository) UpdatePosition(ctx context.Context, deliveryID string, pos domain.Coordinates, ts time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": deliveryID, "status": domain.SessionActive}
	update := bson.M{"$set": bson.M{
		"position":            pos,
		"position_updated_at": ts.UTC(),
	}}
	res, err := r.sessions().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return r.missing(ctx, deliveryID)
}

// Close marks the session closed. Closing an already closed session is a no-op.
func (r *SessionRepository) Close(ctx context.Context, deliveryID string, ts time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": deliveryID, "status": domain.SessionActive}
	update := bson.M{"$set": bson.M{"status": domain.SessionClosed, "closed_at": ts.UTC()}}
	res, err := r.sessions().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if err := r.missing(ctx, deliveryID); !errors.Is(err, domain.ErrSessionClosed) {
		return err
	}
	return nil
}

// missing explains why a filtered update on deliveryID matched nothing.
func (r *SessionRepository) missing(ctx context.Context, deliveryID string) error {
	var s domain.TrackingSession
	err := r.sessions().FindOne(ctx, bson.M{"_id": deliveryID}).Decode(&s)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrSessionNotStarted
	case err != nil:
		return err
	case s.Status == domain.SessionClosed:
		return domain.ErrSessionClosed
	default:
		return nil
	}
}

// InsertEvent persists an entry to the tracking_events audit collection.
func (r *SessionRepository) InsertEvent(ctx context.Context, event *domain.SessionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"delivery_id":  event.DeliveryID,
		"kind":         event.Kind,
		"timestamp":    event.Timestamp.UTC(),
		"processed_at": time.Now().UTC(),
	}
	if event.Position != nil {
		doc["position"] = bson.M{
			"lat": event.Position.Lat,
			"lng": event.Position.Lng,
		}
	}

	_, err := r.db.Collection(collectionEvents).InsertOne(ctx, doc)
	return err
}

// EnsureIndexes creates necessary indexes on the tracking_events collection.
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(collectionEvents).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "delivery_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return err
}
