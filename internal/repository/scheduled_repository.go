package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ScheduledRepository persists deferred sends. Status transitions are
// conditional updates so concurrent sweeps never process a row twice.
type ScheduledRepository struct {
	collection *mongo.Collection
}

func NewScheduledRepository(db *mongo.Database) *ScheduledRepository {
	return &ScheduledRepository{
		collection: db.Collection("scheduled_notifications"),
	}
}

func (r *ScheduledRepository) CreateScheduled(ctx context.Context, n *models.ScheduledNotification) error {
	result, err := r.collection.InsertOne(ctx, n)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert scheduled notification")
		return fmt.Errorf("failed to insert scheduled notification: %v", err)
	}
	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("failed to cast inserted ID")
	}
	n.ID = id
	return nil
}

func (r *ScheduledRepository) GetScheduled(ctx context.Context, id primitive.ObjectID) (*models.ScheduledNotification, error) {
	var n models.ScheduledNotification
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled notification: %v", err)
	}
	return &n, nil
}

func (r *ScheduledRepository) CancelScheduled(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusPending},
		bson.M{"$set": bson.M{"status": models.StatusCancelled, "updated_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel scheduled notification: %v", err)
	}
	return res.ModifiedCount == 1, nil
}

// ClaimDue moves the oldest due PENDING row not yet seen by this sweep to
// PROCESSING under claimID.
func (r *ScheduledRepository) ClaimDue(ctx context.Context, now time.Time, claimID string) (*models.ScheduledNotification, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "scheduled_for", Value: 1}}).
		SetReturnDocument(options.After)

	var n models.ScheduledNotification
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{
			"status":        models.StatusPending,
			"scheduled_for": bson.M{"$lte": now},
			"last_sweep_id": bson.M{"$ne": claimID},
		},
		bson.M{"$set": bson.M{
			"status":        models.StatusProcessing,
			"claim_id":      claimID,
			"last_sweep_id": claimID,
			"claimed_at":    now,
			"updated_at":    now,
		}},
		opts,
	).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim scheduled notification: %v", err)
	}
	return &n, nil
}

// ResolveClaim applies the sweep outcome if the row is still held by claimID.
func (r *ScheduledRepository) ResolveClaim(ctx context.Context, id primitive.ObjectID, claimID string, res services.ScheduledResolution, at time.Time) error {
	set := bson.M{
		"status":        res.Status,
		"attempt_count": res.AttemptCount,
		"updated_at":    at,
	}
	if res.LastAttemptAt != nil {
		set["last_attempt_at"] = *res.LastAttemptAt
	}
	if res.ErrorMessage != "" {
		set["error_message"] = res.ErrorMessage
	}
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusProcessing, "claim_id": claimID},
		bson.M{
			"$set":   set,
			"$unset": bson.M{"claim_id": "", "claimed_at": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to resolve scheduled notification: %v", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("scheduled notification %s no longer held by claim %s", id.Hex(), claimID)
	}
	return nil
}

// ReleaseStaleClaims returns rows claimed before cutoff to PENDING.
func (r *ScheduledRepository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"status": models.StatusProcessing, "claimed_at": bson.M{"$lt": cutoff}},
		bson.M{
			"$set":   bson.M{"status": models.StatusPending, "updated_at": time.Now()},
			"$unset": bson.M{"claim_id": "", "claimed_at": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %v", err)
	}
	if res.ModifiedCount > 0 {
		logrus.Warnf("Released %d stale scheduled notification claims", res.ModifiedCount)
	}
	return res.ModifiedCount, nil
}

func (r *ScheduledRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"status":     bson.M{"$in": bson.A{models.StatusSent, models.StatusFailed, models.StatusCancelled}},
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scheduled notifications: %v", err)
	}
	logrus.Infof("Deleted %d old scheduled notifications", result.DeletedCount)
	return result.DeletedCount, nil
}

func (r *ScheduledRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_for", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "claimed_at", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	return err
}
