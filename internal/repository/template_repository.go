package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TemplateRepository mirrors the built-in template catalog into the database
// so other tools can list it.
type TemplateRepository struct {
	collection *mongo.Collection
}

func NewTemplateRepository(db *mongo.Database) *TemplateRepository {
	return &TemplateRepository{
		collection: db.Collection("notification_templates"),
	}
}

// UpsertTemplates writes every template keyed by id. Running it twice is harmless.
func (r *TemplateRepository) UpsertTemplates(ctx context.Context, list []*models.NotificationTemplate) error {
	if len(list) == 0 {
		return nil
	}
	now := time.Now()
	writes := make([]mongo.WriteModel, 0, len(list))
	for _, t := range list {
		doc := *t
		doc.UpdatedAt = now
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": t.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	res, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to seed templates: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"upserted": res.UpsertedCount,
		"modified": res.ModifiedCount,
	}).Info("Notification templates seeded")
	return nil
}

func (r *TemplateRepository) GetAllTemplates(ctx context.Context) ([]models.NotificationTemplate, error) {
	var templates []models.NotificationTemplate

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %v", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var template models.NotificationTemplate
		if err := cursor.Decode(&template); err != nil {
			return nil, fmt.Errorf("failed to decode template: %v", err)
		}
		templates = append(templates, template)
	}

	return templates, nil
}
