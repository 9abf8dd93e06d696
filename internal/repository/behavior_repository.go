package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BehaviorRepository stores one UserBehaviorRecord per user. Every write
// upserts so the first event for a user creates the record.
type BehaviorRepository struct {
	collection *mongo.Collection
}

func NewBehaviorRepository(db *mongo.Database) *BehaviorRepository {
	return &BehaviorRepository{
		collection: db.Collection("user_behaviors"),
	}
}

func (r *BehaviorRepository) GetBehavior(ctx context.Context, userID string) (*models.UserBehaviorRecord, error) {
	var rec models.UserBehaviorRecord
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find behavior record: %v", err)
	}
	return &rec, nil
}

func (r *BehaviorRepository) GetBehaviors(ctx context.Context, userIDs []string) (map[string]*models.UserBehaviorRecord, error) {
	out := make(map[string]*models.UserBehaviorRecord, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	recs, err := r.find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	for i := range recs {
		out[recs[i].UserID] = &recs[i]
	}
	return out, nil
}

func (r *BehaviorRepository) FindBehaviors(ctx context.Context, q services.BehaviorQuery) ([]models.UserBehaviorRecord, error) {
	filter := bson.M{}
	if len(q.UserIDs) > 0 {
		filter["user_id"] = bson.M{"$in": q.UserIDs}
	}
	if q.LastLoginBefore != nil {
		filter["last_login_at"] = bson.M{"$lt": *q.LastLoginBefore}
	}
	if q.LastBookingBefore != nil {
		filter["last_booking_at"] = bson.M{"$lt": *q.LastBookingBefore}
	}
	if q.MinStreak > 0 {
		filter["$or"] = bson.A{
			bson.M{"morning_routine_streak": bson.M{"$gte": q.MinStreak}},
			bson.M{"evening_routine_streak": bson.M{"$gte": q.MinStreak}},
		}
	}
	return r.find(ctx, filter)
}

func (r *BehaviorRepository) find(ctx context.Context, filter bson.M) ([]models.UserBehaviorRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch behavior records: %v", err)
	}
	defer cursor.Close(ctx)

	var recs []models.UserBehaviorRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode behavior records: %v", err)
	}
	return recs, nil
}

// insertDefaults are the fields a new record starts with. Fields that an
// update also writes must not appear here.
func insertDefaults(at time.Time, skip ...string) bson.M {
	m := bson.M{
		"created_at":                at,
		"morning_routine_streak":    0,
		"evening_routine_streak":    0,
		"total_routines_completed":  0,
		"notification_opt_out":      false,
		"avg_notification_response": 0.0,
	}
	for _, k := range skip {
		delete(m, k)
	}
	return m
}

func (r *BehaviorRepository) upsert(ctx context.Context, userID string, update bson.M, skip ...string) error {
	now := time.Now()
	update["$setOnInsert"] = insertDefaults(now, skip...)
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = now
	update["$set"] = set

	_, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update, options.Update().SetUpsert(true))
	return err
}

// SwapLastLogin advances last_login_at to at and returns the value it held
// before. An older at leaves the stored value in place.
func (r *BehaviorRepository) SwapLastLogin(ctx context.Context, userID string, at time.Time, deviceType string) (*time.Time, error) {
	set := bson.M{"updated_at": time.Now()}
	if deviceType != "" {
		set["device_type"] = deviceType
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before)

	var prev models.UserBehaviorRecord
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         set,
			"$max":         bson.M{"last_login_at": at},
			"$setOnInsert": insertDefaults(time.Now()),
		},
		opts,
	).Decode(&prev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %v", err)
	}
	return prev.LastLoginAt, nil
}

// IncrementRoutine bumps (or restarts) the routine streak and the total count.
func (r *BehaviorRepository) IncrementRoutine(ctx context.Context, userID string, rt models.RoutineType, at time.Time, reset bool) (*models.UserBehaviorRecord, error) {
	streak := rt.StreakField()
	set := bson.M{"updated_at": time.Now()}
	latest := bson.M{
		"last_routine_at":       at,
		rt.LastCompletedField(): at,
	}
	inc := bson.M{"total_routines_completed": 1}
	if reset {
		set[streak] = 1
	} else {
		inc[streak] = 1
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var rec models.UserBehaviorRecord
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         set,
			"$max":         latest,
			"$inc":         inc,
			"$setOnInsert": insertDefaults(time.Now(), streak, "total_routines_completed"),
		},
		opts,
	).Decode(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record routine: %v", err)
	}
	return &rec, nil
}

func (r *BehaviorRepository) MarkActivity(ctx context.Context, userID string, activity services.Activity, at time.Time) error {
	var field string
	switch activity {
	case services.ActivityBooking:
		field = "last_booking_at"
	case services.ActivityPurchase:
		field = "last_purchase_at"
	case services.ActivityPost:
		field = "last_post_at"
	default:
		return fmt.Errorf("unknown activity %d", activity)
	}
	if err := r.upsert(ctx, userID, bson.M{"$max": bson.M{field: at}}); err != nil {
		return fmt.Errorf("failed to set %s: %v", field, err)
	}
	return nil
}

func (r *BehaviorRepository) AddPreferredCategories(ctx context.Context, userID string, categories []string) error {
	update := bson.M{"$addToSet": bson.M{"preferred_categories": bson.M{"$each": categories}}}
	if err := r.upsert(ctx, userID, update); err != nil {
		return fmt.Errorf("failed to add preferred categories: %v", err)
	}
	return nil
}

// BlendResponse updates the exponential moving average in a single pipeline update.
func (r *BehaviorRepository) BlendResponse(ctx context.Context, userID string, sample, alpha float64) error {
	now := time.Now()
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"avg_notification_response": bson.M{"$add": bson.A{
				bson.M{"$multiply": bson.A{bson.M{"$ifNull": bson.A{"$avg_notification_response", 0.0}}, 1 - alpha}},
				sample * alpha,
			}},
			"created_at":               bson.M{"$ifNull": bson.A{"$created_at", now}},
			"morning_routine_streak":   bson.M{"$ifNull": bson.A{"$morning_routine_streak", 0}},
			"evening_routine_streak":   bson.M{"$ifNull": bson.A{"$evening_routine_streak", 0}},
			"total_routines_completed": bson.M{"$ifNull": bson.A{"$total_routines_completed", 0}},
			"notification_opt_out":     bson.M{"$ifNull": bson.A{"$notification_opt_out", false}},
			"updated_at":               now,
		}}},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, pipeline, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update response rate: %v", err)
	}
	return nil
}

func (r *BehaviorRepository) SetOptOut(ctx context.Context, userID string, optOut bool) error {
	if err := r.upsert(ctx, userID, bson.M{"$set": bson.M{"notification_opt_out": optOut}}, "notification_opt_out"); err != nil {
		return fmt.Errorf("failed to set opt-out: %v", err)
	}
	return nil
}

func (r *BehaviorRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "last_login_at", Value: 1}}},
		{Keys: bson.D{{Key: "last_booking_at", Value: 1}}},
	})
	return err
}
