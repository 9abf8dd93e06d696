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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository reads user profiles. Only points, tier and last activity are written here.
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"userID": id,
			"error":  err,
		}).Warn("Failed to find user by ID")
		return nil, fmt.Errorf("failed to find user by id: %v", err)
	}
	return &user, nil
}

// FindUsers returns the users matching every set field of q.
func (r *UserRepository) FindUsers(ctx context.Context, q services.UserQuery) ([]models.User, error) {
	filter := bson.M{}
	if len(q.IDs) > 0 {
		filter["_id"] = bson.M{"$in": q.IDs}
	}
	if len(q.Tiers) > 0 {
		filter["tier"] = bson.M{"$in": q.Tiers}
	}
	if len(q.SkinTypes) > 0 {
		filter["skin_type"] = bson.M{"$in": q.SkinTypes}
	}
	if len(q.SkinConcerns) > 0 {
		filter["skin_concerns"] = bson.M{"$in": q.SkinConcerns}
	}
	if q.ActiveSince != nil {
		filter["last_active_at"] = bson.M{"$gte": *q.ActiveSince}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %v", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %v", err)
	}
	return users, nil
}

// AddPoints increments total_points and returns the updated user.
func (r *UserRepository) AddPoints(ctx context.Context, id string, points int) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"total_points": points}},
		opts,
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add points: %v", err)
	}
	return &user, nil
}

// UpdateTier sets the tier only if it still equals from.
func (r *UserRepository) UpdateTier(ctx context.Context, id, from, to string) (bool, error) {
	filter := bson.M{"_id": id, "tier": from}
	if from == "" {
		filter["tier"] = bson.M{"$in": bson.A{"", nil}}
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"tier": to}})
	if err != nil {
		return false, fmt.Errorf("failed to update tier: %v", err)
	}
	if res.ModifiedCount == 1 {
		logrus.WithFields(logrus.Fields{"userID": id, "from": from, "to": to}).Info("User tier changed")
	}
	return res.ModifiedCount == 1, nil
}

// TouchLastActive records the time of the user's latest authenticated request.
func (r *UserRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_active_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update last active: %v", err)
	}
	return nil
}

func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tier", Value: 1}}},
		{Keys: bson.D{{Key: "skin_type", Value: 1}}},
		{Keys: bson.D{{Key: "last_active_at", Value: -1}}},
	})
	return err
}
