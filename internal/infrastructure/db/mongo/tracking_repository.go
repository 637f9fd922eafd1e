package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/ports"
)

const (
	collectionTracking = "delivery_tracking"
	collectionOrders   = "orders"
)

// TrackingRepository implements ports.TrackingRepository using MongoDB.
type TrackingRepository struct {
	col *mongo.Collection
}

func NewTrackingRepository(db *mongo.Database) *TrackingRepository {
	return &TrackingRepository{col: db.Collection(collectionTracking)}
}

var _ ports.TrackingRepository = (*TrackingRepository)(nil)

// Create inserts a new tracking record keyed by delivery ID.
func (r *TrackingRepository) Create(ctx context.Context, t *domain.DeliveryTracking) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateTracking
		}
		return err
	}
	return nil
}

// FindByDeliveryID retrieves a tracking record.
func (r *TrackingRepository) FindByDeliveryID(ctx context.Context, deliveryID string) (*domain.DeliveryTracking, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var t domain.DeliveryTracking
	err := r.col.FindOne(ctx, bson.M{"_id": deliveryID}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTrackingNotFound
		}
		return nil, err
	}
	return &t, nil
}

// SaveTransition writes the status and timestamps of t. The filter only
// matches documents whose stored status precedes t.Status; a miss on an
// existing document is a stale write and is ignored.
func (r *TrackingRepository) SaveTransition(ctx context.Context, t *domain.DeliveryTracking) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"status": t.Status}
	if t.StartedAt != nil {
		set["started_at"] = t.StartedAt.UTC()
	}
	if t.DeliveredAt != nil {
		set["delivered_at"] = t.DeliveredAt.UTC()
	}
	if t.CourierPosition != nil {
		set["courier_position"] = t.CourierPosition
	}

	filter := bson.M{
		"_id":    t.DeliveryID,
		"status": bson.M{"$in": t.Status.Before()},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": t.DeliveryID})
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrTrackingNotFound
		}
	}
	return nil
}

// SaveCourierPosition stores the latest courier position of a live delivery.
func (r *TrackingRepository) SaveCourierPosition(ctx context.Context, deliveryID string, pos domain.Coordinates, ts time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": deliveryID, "status": domain.StatusInTransit}
	update := bson.M{"$set": bson.M{
		"courier_position":    pos,
		"position_updated_at": ts.UTC(),
	}}
	_, err := r.col.UpdateOne(ctx, filter, update)
	return err
}

// SaveDestination stores the resolved destination.
func (r *TrackingRepository) SaveDestination(ctx context.Context, deliveryID string, pos domain.Coordinates) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": deliveryID}, bson.M{"$set": bson.M{"destination_position": pos}})
	return err
}

// EnsureIndexes creates necessary indexes on the delivery_tracking collection.
func (r *TrackingRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
		{Keys: bson.D{{Key: "courier_id", Value: 1}, {Key: "status", Value: 1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// OrderDirectory reads orders written by the order service.
type OrderDirectory struct {
	col *mongo.Collection
}

func NewOrderDirectory(db *mongo.Database) *OrderDirectory {
	return &OrderDirectory{col: db.Collection(collectionOrders)}
}

var _ ports.OrderDirectory = (*OrderDirectory)(nil)

// FindOrder retrieves an order by ID.
func (d *OrderDirectory) FindOrder(ctx context.Context, orderID string) (*domain.DeliveryOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var o domain.DeliveryOrder
	err := d.col.FindOne(ctx, bson.M{"_id": orderID}).Decode(&o)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}
