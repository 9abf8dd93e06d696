package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepository is the append-only log of device delivery attempts.
type NotificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection("sent_notifications"),
	}
}

// InsertSent logs one delivery attempt.
func (r *NotificationRepository) InsertSent(ctx context.Context, n *models.SentNotification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	result, err := r.collection.InsertOne(ctx, n)
	if err != nil {
		logrus.WithError(err).Error("Failed to insert sent notification")
		return fmt.Errorf("failed to create notification: %v", err)
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		n.ID = id
	}
	return nil
}

// CountDispatchesSince counts distinct dispatches with a delivered device since t.
func (r *NotificationRepository) CountDispatchesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	ids, err := r.collection.Distinct(ctx, "dispatch_id", bson.M{
		"user_id":   userID,
		"delivered": true,
		"sent_at":   bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %v", err)
	}
	return len(ids), nil
}

// LastSent returns the newest row for the user and template, nil if there is none.
func (r *NotificationRepository) LastSent(ctx context.Context, userID, templateID string) (*models.SentNotification, error) {
	filter := bson.M{
		"user_id":     userID,
		"template_id": templateID,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "sent_at", Value: -1}})

	var n models.SentNotification
	err := r.collection.FindOne(ctx, filter, opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListForUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.SentNotification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}}).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %v", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.SentNotification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %v", err)
	}
	return notifications, nil
}

// MarkOpened records that the user opened the notification.
func (r *NotificationRepository) MarkOpened(ctx context.Context, userID string, id primitive.ObjectID, action string, at time.Time) error {
	set := bson.M{"opened": true, "opened_at": at}
	if action != "" {
		set["action_taken"] = action
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to mark notification opened: %v", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes log rows sent before cutoff.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"sent_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %v", err)
	}
	logrus.Infof("Deleted %d old sent notifications", result.DeletedCount)
	return result.DeletedCount, nil
}

func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "sent_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "template_id", Value: 1}, {Key: "sent_at", Value: -1}}},
		{Keys: bson.D{{Key: "sent_at", Value: 1}}},
	})
	return err
}
