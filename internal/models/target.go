package models

import "errors"

var ErrInvalidTarget = errors.New("invalid target")

// Target is a declarative audience: one identity mode ANDed with optional filters.
// With neither UserID nor UserIDs set, the filters alone select the audience.
type Target struct {
	UserID                      string   `json:"user_id,omitempty"`
	UserIDs                     []string `json:"user_ids,omitempty"`
	Tiers                       []string `json:"tiers,omitempty"`
	SkinTypes                   []string `json:"skin_types,omitempty"`
	SkinConcerns                []string `json:"skin_concerns,omitempty"`
	LastActiveWithinHours       int      `json:"last_active_within_hours,omitempty"`
	HasNotCompletedRoutineToday bool     `json:"has_not_completed_routine_today,omitempty"`
}

// TargetMode is the identity mode of a Target.
type TargetMode int

const (
	TargetSingle TargetMode = iota
	TargetList
	TargetAttributes
)

// Mode returns the identity mode or ErrInvalidTarget when both id forms are set.
func (t Target) Mode() (TargetMode, error) {
	if t.LastActiveWithinHours < 0 {
		return 0, errors.Join(ErrInvalidTarget, errors.New("last_active_within_hours must not be negative"))
	}
	switch {
	case t.UserID != "" && len(t.UserIDs) > 0:
		return 0, errors.Join(ErrInvalidTarget, errors.New("user_id and user_ids are mutually exclusive"))
	case t.UserID != "":
		return TargetSingle, nil
	case len(t.UserIDs) > 0:
		return TargetList, nil
	}
	return TargetAttributes, nil
}

// Recipient is a resolved user joined with the data downstream components need.
// Behavior and Preference are nil when the user has no stored record yet.
type Recipient struct {
	User       User
	Behavior   *UserBehaviorRecord
	Preference *NotificationPreference
}
