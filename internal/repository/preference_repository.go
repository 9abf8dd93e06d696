package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PreferenceRepository struct {
	collection *mongo.Collection
}

func NewPreferenceRepository(db *mongo.Database) *PreferenceRepository {
	return &PreferenceRepository{
		collection: db.Collection("notification_preferences"),
	}
}

func (r *PreferenceRepository) GetPreferences(ctx context.Context, userIDs []string) (map[string]*models.NotificationPreference, error) {
	out := make(map[string]*models.NotificationPreference, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	prefs, err := r.find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	for i := range prefs {
		out[prefs[i].UserID] = &prefs[i]
	}
	return out, nil
}

// GetOrCreate inserts defaults when the user has no document and returns the stored one.
func (r *PreferenceRepository) GetOrCreate(ctx context.Context, defaults *models.NotificationPreference) (*models.NotificationPreference, error) {
	doc, err := bson.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to encode default preferences: %v", err)
	}
	var insert bson.M
	if err := bson.Unmarshal(doc, &insert); err != nil {
		return nil, fmt.Errorf("failed to encode default preferences: %v", err)
	}
	delete(insert, "_id")
	delete(insert, "user_id")

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var pref models.NotificationPreference
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": defaults.UserID},
		bson.M{"$setOnInsert": insert},
		opts,
	).Decode(&pref)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %v", err)
	}
	return &pref, nil
}

// SavePreference writes the user-editable fields. Token lists are left alone.
func (r *PreferenceRepository) SavePreference(ctx context.Context, pref *models.NotificationPreference) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"user_id": pref.UserID}, bson.M{"$set": bson.M{
		"categories":        pref.Categories,
		"morning_time":      pref.MorningTime,
		"evening_time":      pref.EveningTime,
		"quiet_hours_start": pref.QuietHoursStart,
		"quiet_hours_end":   pref.QuietHoursEnd,
		"timezone":          pref.Timezone,
		"max_per_day":       pref.MaxPerDay,
		"max_per_week":      pref.MaxPerWeek,
		"updated_at":        pref.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to update preferences: %v", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AddToken appends the token with $addToSet so registering twice is a no-op.
func (r *PreferenceRepository) AddToken(ctx context.Context, userID string, platform models.Platform, token string) (*models.NotificationPreference, error) {
	field := "fcm_tokens"
	if platform == models.PlatformIOS {
		field = "apns_tokens"
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var pref models.NotificationPreference
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$addToSet": bson.M{field: token},
			"$set":      bson.M{"updated_at": time.Now()},
		},
		opts,
	).Decode(&pref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add device token: %v", err)
	}
	return &pref, nil
}

// Timezones lists the distinct timezones users have configured.
func (r *PreferenceRepository) Timezones(ctx context.Context) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "timezone", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list timezones: %v", err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *PreferenceRepository) FindByReminderTime(ctx context.Context, timezone string, rt models.RoutineType, hhmm string) ([]models.NotificationPreference, error) {
	field := "morning_time"
	if rt == models.RoutineEvening {
		field = "evening_time"
	}
	return r.find(ctx, bson.M{"timezone": timezone, field: hhmm})
}

func (r *PreferenceRepository) FindByTimezone(ctx context.Context, timezone string) ([]models.NotificationPreference, error) {
	return r.find(ctx, bson.M{"timezone": timezone})
}

func (r *PreferenceRepository) find(ctx context.Context, filter bson.M) ([]models.NotificationPreference, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preferences: %v", err)
	}
	defer cursor.Close(ctx)

	var prefs []models.NotificationPreference
	if err := cursor.All(ctx, &prefs); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %v", err)
	}
	return prefs, nil
}

func (r *PreferenceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "timezone", Value: 1}, {Key: "morning_time", Value: 1}}},
		{Keys: bson.D{{Key: "timezone", Value: 1}, {Key: "evening_time", Value: 1}}},
	})
	return err
}
