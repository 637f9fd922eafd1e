package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout = 10 * time.Second
	defaultAppName = "courier-tracking"
	indexTimeout   = 30 * time.Second
)

// Config selects the cluster holding delivery_tracking, orders,
// tracking_sessions and tracking_events.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
	// AppName is reported to the server and shows up in its logs.
	AppName string
}

// Connect opens the tracking database and pings the primary, since every
// transition write goes there.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AppName == "" {
		cfg.AppName = defaultAppName
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetServerSelectionTimeout(cfg.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect %s: %w", cfg.Database, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo ping %s: %w", cfg.Database, err)
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the secondary indexes of delivery_tracking and
// tracking_events. Both are keyed by delivery ID through _id.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	steps := []struct {
		name   string
		ensure func(context.Context) error
	}{
		{collectionTracking, NewTrackingRepository(db).EnsureIndexes},
		{collectionEvents, NewSessionRepository(db).EnsureIndexes},
	}
	for _, step := range steps {
		if err := step.ensure(ctx); err != nil {
			return fmt.Errorf("%s indexes: %w", step.name, err)
		}
	}
	return nil
}
