package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Platform identifies a push transport.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// SentNotification is the append-only audit row written for every device attempt.
type SentNotification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DispatchID  string             `bson:"dispatch_id" json:"dispatch_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	TemplateID  string             `bson:"template_id" json:"template_id"`
	Title       string             `bson:"title" json:"title"`
	Body        string             `bson:"body" json:"body"`
	DeepLink    string             `bson:"deep_link,omitempty" json:"deep_link,omitempty"`
	Actions     []ActionButton     `bson:"actions,omitempty" json:"actions,omitempty"`
	Platform    Platform           `bson:"platform" json:"platform"`
	DeviceToken string             `bson:"device_token" json:"-"`
	Delivered   bool               `bson:"delivered" json:"delivered"`
	DeliveryID  string             `bson:"delivery_id,omitempty" json:"delivery_id,omitempty"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
	Opened      bool               `bson:"opened" json:"opened"`
	OpenedAt    *time.Time         `bson:"opened_at,omitempty" json:"opened_at,omitempty"`
	ActionTaken string             `bson:"action_taken,omitempty" json:"action_taken,omitempty"`
	SentAt      time.Time          `bson:"sent_at" json:"sent_at"`
}
