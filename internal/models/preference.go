package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Default preference values applied on first access.
const (
	DefaultMorningTime = "08:00"
	DefaultEveningTime = "21:00"
	DefaultMaxPerDay   = 5
	DefaultMaxPerWeek  = 20
)

// CategoryToggles holds the six per-category switches a user controls.
type CategoryToggles struct {
	RoutineReminders       bool `bson:"routine_reminders" json:"routine_reminders"`
	ProductRecommendations bool `bson:"product_recommendations" json:"product_recommendations"`
	Achievements           bool `bson:"achievements" json:"achievements"`
	BookingReminders       bool `bson:"booking_reminders" json:"booking_reminders"`
	SkincareTips           bool `bson:"skincare_tips" json:"skincare_tips"`
	SocialActivity         bool `bson:"social_activity" json:"social_activity"`
}

// NotificationPreference is the per-user delivery configuration.
type NotificationPreference struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          string             `bson:"user_id" json:"user_id"`
	Categories      CategoryToggles    `bson:"categories" json:"categories"`
	MorningTime     string             `bson:"morning_time" json:"morning_time"`
	EveningTime     string             `bson:"evening_time" json:"evening_time"`
	QuietHoursStart string             `bson:"quiet_hours_start,omitempty" json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string             `bson:"quiet_hours_end,omitempty" json:"quiet_hours_end,omitempty"`
	Timezone        string             `bson:"timezone" json:"timezone"`
	MaxPerDay       int                `bson:"max_per_day" json:"max_per_day"`
	MaxPerWeek      int                `bson:"max_per_week" json:"max_per_week"`
	FCMTokens       []string           `bson:"fcm_tokens" json:"fcm_tokens"`
	APNSTokens      []string           `bson:"apns_tokens" json:"apns_tokens"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// DefaultPreference builds the preference document a user gets before changing anything.
func DefaultPreference(userID, timezone string) *NotificationPreference {
	return &NotificationPreference{
		UserID: userID,
		Categories: CategoryToggles{
			RoutineReminders:       true,
			ProductRecommendations: true,
			Achievements:           true,
			BookingReminders:       true,
			SkincareTips:           true,
			SocialActivity:         true,
		},
		MorningTime: DefaultMorningTime,
		EveningTime: DefaultEveningTime,
		Timezone:    timezone,
		MaxPerDay:   DefaultMaxPerDay,
		MaxPerWeek:  DefaultMaxPerWeek,
		FCMTokens:   []string{},
		APNSTokens:  []string{},
	}
}

// HasQuietHours reports whether a complete quiet-hour window is configured.
func (p *NotificationPreference) HasQuietHours() bool {
	return p.QuietHoursStart != "" && p.QuietHoursEnd != ""
}

// CategoryEnabled maps a template category onto its toggle.
func (p *NotificationPreference) CategoryEnabled(c Category) bool {
	switch c {
	case CategoryRoutine:
		return p.Categories.RoutineReminders
	case CategoryBehavioral:
		return p.Categories.ProductRecommendations
	case CategoryGamification:
		return p.Categories.Achievements
	case CategoryBooking:
		return p.Categories.BookingReminders
	case CategoryEducational:
		return p.Categories.SkincareTips
	case CategorySocial:
		return p.Categories.SocialActivity
	}
	return true
}

// Location resolves the user's timezone, falling back when unset or unknown.
func (p *NotificationPreference) Location(fallback *time.Location) *time.Location {
	if p != nil && p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// Tokens returns the registered tokens for a platform in registration order.
func (p *NotificationPreference) Tokens(platform Platform) []string {
	if platform == PlatformIOS {
		return p.APNSTokens
	}
	return p.FCMTokens
}

// PreferencePatch is a partial update; nil fields are left untouched.
// An empty string for a quiet-hour bound clears the window.
type PreferencePatch struct {
	Categories      *CategoryToggles `json:"categories,omitempty"`
	MorningTime     *string          `json:"morning_time,omitempty"`
	EveningTime     *string          `json:"evening_time,omitempty"`
	QuietHoursStart *string          `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *string          `json:"quiet_hours_end,omitempty"`
	Timezone        *string          `json:"timezone,omitempty"`
	MaxPerDay       *int             `json:"max_per_day,omitempty"`
	MaxPerWeek      *int             `json:"max_per_week,omitempty"`
}

// Apply validates the patch and copies the set fields onto p.
func (p *NotificationPreference) Apply(patch PreferencePatch) error {
	if patch.MorningTime != nil {
		if _, err := ParseClock(*patch.MorningTime); err != nil {
			return err
		}
	}
	if patch.EveningTime != nil {
		if _, err := ParseClock(*patch.EveningTime); err != nil {
			return err
		}
	}
	for _, v := range []*string{patch.QuietHoursStart, patch.QuietHoursEnd} {
		if v != nil && *v != "" {
			if _, err := ParseClock(*v); err != nil {
				return err
			}
		}
	}
	if patch.Timezone != nil {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q", *patch.Timezone)
		}
	}
	if patch.MaxPerDay != nil && *patch.MaxPerDay < 0 {
		return fmt.Errorf("max_per_day must not be negative")
	}
	if patch.MaxPerWeek != nil && *patch.MaxPerWeek < 0 {
		return fmt.Errorf("max_per_week must not be negative")
	}

	if patch.Categories != nil {
		p.Categories = *patch.Categories
	}
	if patch.MorningTime != nil {
		p.MorningTime = *patch.MorningTime
	}
	if patch.EveningTime != nil {
		p.EveningTime = *patch.EveningTime
	}
	if patch.QuietHoursStart != nil {
		p.QuietHoursStart = *patch.QuietHoursStart
	}
	if patch.QuietHoursEnd != nil {
		p.QuietHoursEnd = *patch.QuietHoursEnd
	}
	if patch.Timezone != nil {
		p.Timezone = *patch.Timezone
	}
	if patch.MaxPerDay != nil {
		p.MaxPerDay = *patch.MaxPerDay
	}
	if patch.MaxPerWeek != nil {
		p.MaxPerWeek = *patch.MaxPerWeek
	}
	return nil
}

// ParseClock turns "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
