package models

// Product is a catalog entry used for purchase-driven recommendations.
type Product struct {
	ID       string  `bson:"_id" json:"id"`
	Name     string  `bson:"name" json:"name"`
	Category string  `bson:"category" json:"category"`
	Featured bool    `bson:"featured" json:"featured"`
	DeepLink string  `bson:"deep_link,omitempty" json:"deep_link,omitempty"`
	Price    float64 `bson:"price" json:"price"`
}
