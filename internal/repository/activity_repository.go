package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ActivityRepository records which behavior events were already applied.
type ActivityRepository struct {
	collection *mongo.Collection
}

func NewActivityRepository(db *mongo.Database) *ActivityRepository {
	return &ActivityRepository{
		collection: db.Collection("processed_events"),
	}
}

// Seen reports whether the event id was processed before.
func (r *ActivityRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	err := r.collection.FindOne(ctx, bson.M{"event_id": eventID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up event: %v", err)
	}
	return true, nil
}

// MarkProcessed inserts the event id. A duplicate is not an error.
func (r *ActivityRepository) MarkProcessed(ctx context.Context, ev *models.ProcessedEvent) error {
	_, err := r.collection.InsertOne(ctx, ev)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to insert processed event")
		return fmt.Errorf("failed to insert processed event: %v", err)
	}
	return nil
}

func (r *ActivityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		// Processed ids only need to outlive any realistic redelivery window.
		{Keys: bson.D{{Key: "processed_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(30 * 24 * 3600)},
	})
	return err
}
