package services

import (
	"context"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserQuery selects user profiles. Empty fields do not filter.
type UserQuery struct {
	IDs          []string
	Tiers        []string
	SkinTypes    []string
	SkinConcerns []string
	ActiveSince  *time.Time
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUsers(ctx context.Context, q UserQuery) ([]models.User, error)
	// AddPoints atomically increments the points total and returns the updated user.
	AddPoints(ctx context.Context, id string, points int) (*models.User, error)
	// UpdateTier moves the stored tier from -> to and reports whether this call did it.
	UpdateTier(ctx context.Context, id, from, to string) (bool, error)
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

// Activity is a timestamp field on the behavior record set by a domain event.
type Activity int

const (
	ActivityBooking Activity = iota
	ActivityPurchase
	ActivityPost
)

// BehaviorQuery selects behavior records for population sweeps. Empty fields do not filter.
type BehaviorQuery struct {
	UserIDs           []string
	LastLoginBefore   *time.Time
	LastBookingBefore *time.Time
	MinStreak         int
}

// BehaviorStore persists UserBehaviorRecord. Every mutation upserts the record.
type BehaviorStore interface {
	GetBehavior(ctx context.Context, userID string) (*models.UserBehaviorRecord, error)
	GetBehaviors(ctx context.Context, userIDs []string) (map[string]*models.UserBehaviorRecord, error)
	FindBehaviors(ctx context.Context, q BehaviorQuery) ([]models.UserBehaviorRecord, error)
	// SwapLastLogin advances last_login_at to at, never moving it backwards,
	// and returns the previous value.
	SwapLastLogin(ctx context.Context, userID string, at time.Time, deviceType string) (*time.Time, error)
	// IncrementRoutine bumps the routine's streak (or restarts it at 1 when reset)
	// and total count, and returns the updated record. Completion timestamps
	// only move forward.
	IncrementRoutine(ctx context.Context, userID string, rt models.RoutineType, at time.Time, reset bool) (*models.UserBehaviorRecord, error)
	MarkActivity(ctx context.Context, userID string, activity Activity, at time.Time) error
	AddPreferredCategories(ctx context.Context, userID string, categories []string) error
	// BlendResponse moves avg_notification_response toward sample by weight alpha.
	BlendResponse(ctx context.Context, userID string, sample, alpha float64) error
	SetOptOut(ctx context.Context, userID string, optOut bool) error
}

type PreferenceStore interface {
	GetPreferences(ctx context.Context, userIDs []string) (map[string]*models.NotificationPreference, error)
	// GetOrCreate returns the stored preference, inserting defaults on first access.
	GetOrCreate(ctx context.Context, defaults *models.NotificationPreference) (*models.NotificationPreference, error)
	SavePreference(ctx context.Context, pref *models.NotificationPreference) error
	// AddToken appends a token to the platform's set unless already present.
	AddToken(ctx context.Context, userID string, platform models.Platform, token string) (*models.NotificationPreference, error)
	Timezones(ctx context.Context) ([]string, error)
	FindByReminderTime(ctx context.Context, timezone string, rt models.RoutineType, hhmm string) ([]models.NotificationPreference, error)
	FindByTimezone(ctx context.Context, timezone string) ([]models.NotificationPreference, error)
}

type SentStore interface {
	InsertSent(ctx context.Context, n *models.SentNotification) error
	// CountDispatchesSince counts user-level sends with at least one delivered device since t.
	CountDispatchesSince(ctx context.Context, userID string, since time.Time) (int, error)
	// LastSent returns the newest row for the user and template, nil when none exists.
	LastSent(ctx context.Context, userID, templateID string) (*models.SentNotification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.SentNotification, error)
	MarkOpened(ctx context.Context, userID string, id primitive.ObjectID, action string, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScheduledResolution is how a claimed row leaves PROCESSING.
type ScheduledResolution struct {
	Status        models.ScheduledStatus
	AttemptCount  int
	LastAttemptAt *time.Time
	ErrorMessage  string
}

type ScheduledStore interface {
	CreateScheduled(ctx context.Context, n *models.ScheduledNotification) error
	GetScheduled(ctx context.Context, id primitive.ObjectID) (*models.ScheduledNotification, error)
	// CancelScheduled moves a PENDING row to CANCELLED; it reports false when the row was not PENDING.
	CancelScheduled(ctx context.Context, id primitive.ObjectID, at time.Time) (bool, error)
	// ClaimDue atomically moves the oldest due PENDING row to PROCESSING under claimID,
	// skipping rows this claimID already picked up. It returns nil when nothing is due.
	ClaimDue(ctx context.Context, now time.Time, claimID string) (*models.ScheduledNotification, error)
	ResolveClaim(ctx context.Context, id primitive.ObjectID, claimID string, res ScheduledResolution, at time.Time) error
	// ReleaseStaleClaims returns rows stuck in PROCESSING since before cutoff to PENDING.
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventLog remembers applied event ids.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, ev *models.ProcessedEvent) error
}

type ProductStore interface {
	// FeaturedInCategories returns one featured product in any of the categories,
	// skipping excluded ids. It returns nil when none matches.
	FeaturedInCategories(ctx context.Context, categories, excludeIDs []string) (*models.Product, error)
}
