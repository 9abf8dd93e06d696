package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduledStatus is the delivery state of a deferred send.
type ScheduledStatus string

const (
	StatusPending ScheduledStatus = "PENDING"
	// StatusProcessing marks a row claimed by a delivery sweep. It always
	// resolves to SENT, PENDING or FAILED.
	StatusProcessing ScheduledStatus = "PROCESSING"
	StatusSent       ScheduledStatus = "SENT"
	StatusFailed     ScheduledStatus = "FAILED"
	StatusCancelled  ScheduledStatus = "CANCELLED"
)

// MaxDeliveryAttempts is the number of failed sweeps after which a row is FAILED.
const MaxDeliveryAttempts = 3

// Terminal reports whether no sweep will touch the row again.
func (s ScheduledStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// ScheduledNotification is a persisted send request processed by the delivery sweep.
type ScheduledNotification struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          string             `bson:"user_id" json:"user_id"`
	TemplateID      string             `bson:"template_id" json:"template_id"`
	ScheduledFor    time.Time          `bson:"scheduled_for" json:"scheduled_for"`
	Timezone        string             `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Personalization map[string]string  `bson:"personalization,omitempty" json:"personalization,omitempty"`
	Priority        Priority           `bson:"priority,omitempty" json:"priority,omitempty"`
	Status          ScheduledStatus    `bson:"status" json:"status"`
	AttemptCount    int                `bson:"attempt_count" json:"attempt_count"`
	LastAttemptAt   *time.Time         `bson:"last_attempt_at,omitempty" json:"last_attempt_at,omitempty"`
	ErrorMessage    string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ClaimID         string             `bson:"claim_id,omitempty" json:"-"`
	ClaimedAt       *time.Time         `bson:"claimed_at,omitempty" json:"-"`
	// LastSweepID is the claim id of the last sweep that picked the row up.
	// A sweep never claims the same row twice.
	LastSweepID     string             `bson:"last_sweep_id,omitempty" json:"-"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}
