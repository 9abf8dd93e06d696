package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProductRepository reads the product catalog owned by the shop.
type ProductRepository struct {
	collection *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{
		collection: db.Collection("products"),
	}
}

// FeaturedInCategories returns a featured product in one of the categories, nil if none.
func (r *ProductRepository) FeaturedInCategories(ctx context.Context, categories, excludeIDs []string) (*models.Product, error) {
	filter := bson.M{
		"featured": true,
		"category": bson.M{"$in": categories},
	}
	if len(excludeIDs) > 0 {
		filter["_id"] = bson.M{"$nin": excludeIDs}
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var p models.Product
	err := r.collection.FindOne(ctx, filter, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find featured product: %v", err)
	}
	return &p, nil
}
