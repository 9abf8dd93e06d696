package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoutineType distinguishes the two tracked skincare routines.
type RoutineType string

const (
	RoutineMorning RoutineType = "morning"
	RoutineEvening RoutineType = "evening"
)

// ParseRoutineType validates a routine type coming from an event payload.
func ParseRoutineType(s string) (RoutineType, error) {
	switch RoutineType(s) {
	case RoutineMorning, RoutineEvening:
		return RoutineType(s), nil
	}
	return "", fmt.Errorf("unknown routine type %q", s)
}

// StreakField is the document field holding the streak counter for this routine.
func (rt RoutineType) StreakField() string {
	if rt == RoutineEvening {
		return "evening_routine_streak"
	}
	return "morning_routine_streak"
}

// LastCompletedField is the document field holding the last completion time for this routine.
func (rt RoutineType) LastCompletedField() string {
	if rt == RoutineEvening {
		return "last_evening_routine_at"
	}
	return "last_morning_routine_at"
}

// UserBehaviorRecord is the rolling per-user state the behavior tracker maintains.
type UserBehaviorRecord struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID                  string             `bson:"user_id" json:"user_id"`
	LastLoginAt             *time.Time         `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	LastRoutineAt           *time.Time         `bson:"last_routine_at,omitempty" json:"last_routine_at,omitempty"`
	LastMorningRoutineAt    *time.Time         `bson:"last_morning_routine_at,omitempty" json:"last_morning_routine_at,omitempty"`
	LastEveningRoutineAt    *time.Time         `bson:"last_evening_routine_at,omitempty" json:"last_evening_routine_at,omitempty"`
	MorningRoutineStreak    int                `bson:"morning_routine_streak" json:"morning_routine_streak"`
	EveningRoutineStreak    int                `bson:"evening_routine_streak" json:"evening_routine_streak"`
	LastBookingAt           *time.Time         `bson:"last_booking_at,omitempty" json:"last_booking_at,omitempty"`
	LastPurchaseAt          *time.Time         `bson:"last_purchase_at,omitempty" json:"last_purchase_at,omitempty"`
	PreferredCategories     []string           `bson:"preferred_categories,omitempty" json:"preferred_categories,omitempty"`
	LastPostAt              *time.Time         `bson:"last_post_at,omitempty" json:"last_post_at,omitempty"`
	TotalRoutinesCompleted  int                `bson:"total_routines_completed" json:"total_routines_completed"`
	NotificationOptOut      bool               `bson:"notification_opt_out" json:"notification_opt_out"`
	AvgNotificationResponse float64            `bson:"avg_notification_response" json:"avg_notification_response"`
	DeviceType              string             `bson:"device_type,omitempty" json:"device_type,omitempty"`
	CreatedAt               time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time          `bson:"updated_at" json:"updated_at"`
}

// Streak returns the counter for the given routine.
func (r *UserBehaviorRecord) Streak(rt RoutineType) int {
	if r == nil {
		return 0
	}
	if rt == RoutineEvening {
		return r.EveningRoutineStreak
	}
	return r.MorningRoutineStreak
}

// LastCompleted returns the last completion time of the given routine, nil if never.
func (r *UserBehaviorRecord) LastCompleted(rt RoutineType) *time.Time {
	if r == nil {
		return nil
	}
	if rt == RoutineEvening {
		return r.LastEveningRoutineAt
	}
	return r.LastMorningRoutineAt
}

// BestStreak is the larger of the two routine streaks.
func (r *UserBehaviorRecord) BestStreak() int {
	if r == nil {
		return 0
	}
	if r.EveningRoutineStreak > r.MorningRoutineStreak {
		return r.EveningRoutineStreak
	}
	return r.MorningRoutineStreak
}

// RoutineDoneSince reports whether any routine was logged at or after t.
func (r *UserBehaviorRecord) RoutineDoneSince(t time.Time) bool {
	return r != nil && r.LastRoutineAt != nil && !r.LastRoutineAt.Before(t)
}
