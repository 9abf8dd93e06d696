package services

import (
	"context"
	"fmt"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
)

// DenyReason explains why the gate refused a send.
type DenyReason string

const (
	ReasonOptedOut         DenyReason = "opted_out"
	ReasonQuietHours       DenyReason = "quiet_hours"
	ReasonCategoryDisabled DenyReason = "category_disabled"
	ReasonDailyCap         DenyReason = "daily_cap"
	ReasonWeeklyCap        DenyReason = "weekly_cap"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var allow = Decision{Allowed: true}

func deny(r DenyReason) Decision { return Decision{Reason: r} }

// DispatchCounter is the part of the sent log the gate needs for frequency caps.
type DispatchCounter interface {
	CountDispatchesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// PolicyGate decides whether a user may receive a notification right now.
// Rules apply in order: URGENT always passes, then opt-out, quiet hours,
// category toggle and the daily and weekly caps.
type PolicyGate struct {
	counter  DispatchCounter
	clock    Clock
	fallback *time.Location
}

func NewPolicyGate(counter DispatchCounter, clock Clock, fallback *time.Location) *PolicyGate {
	return &PolicyGate{counter: counter, clock: clock, fallback: fallback}
}

// CanSend applies the gate without a category check.
func (g *PolicyGate) CanSend(ctx context.Context, behavior *models.UserBehaviorRecord, pref *models.NotificationPreference, priority models.Priority) (Decision, error) {
	return g.evaluate(ctx, behavior, pref, priority, "")
}

// Evaluate applies the gate including the category toggle for category.
func (g *PolicyGate) Evaluate(ctx context.Context, behavior *models.UserBehaviorRecord, pref *models.NotificationPreference, priority models.Priority, category models.Category) (Decision, error) {
	return g.evaluate(ctx, behavior, pref, priority, category)
}

func (g *PolicyGate) evaluate(ctx context.Context, behavior *models.UserBehaviorRecord, pref *models.NotificationPreference, priority models.Priority, category models.Category) (Decision, error) {
	if priority == models.PriorityUrgent {
		return allow, nil
	}
	if behavior != nil && behavior.NotificationOptOut {
		return deny(ReasonOptedOut), nil
	}
	if pref == nil {
		return allow, nil
	}

	now := g.clock.Now()
	loc := pref.Location(g.fallback)
	if InQuietHours(pref, now.In(loc)) {
		return deny(ReasonQuietHours), nil
	}
	if category != "" && !pref.CategoryEnabled(category) {
		return deny(ReasonCategoryDisabled), nil
	}

	if pref.MaxPerDay > 0 {
		n, err := g.counter.CountDispatchesSince(ctx, pref.UserID, StartOfDay(now, loc))
		if err != nil {
			return Decision{}, fmt.Errorf("failed to count daily sends: %w", err)
		}
		if n >= pref.MaxPerDay {
			return deny(ReasonDailyCap), nil
		}
	}
	if pref.MaxPerWeek > 0 {
		n, err := g.counter.CountDispatchesSince(ctx, pref.UserID, StartOfWeek(now, loc))
		if err != nil {
			return Decision{}, fmt.Errorf("failed to count weekly sends: %w", err)
		}
		if n >= pref.MaxPerWeek {
			return deny(ReasonWeeklyCap), nil
		}
	}
	return allow, nil
}

// InQuietHours reports whether the local wall clock falls inside the user's
// quiet window. Both bounds are inclusive and a window whose start is after
// its end wraps midnight. Malformed bounds disable the window.
func InQuietHours(pref *models.NotificationPreference, local time.Time) bool {
	if pref == nil || !pref.HasQuietHours() {
		return false
	}
	start, err := models.ParseClock(pref.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := models.ParseClock(pref.QuietHoursEnd)
	if err != nil {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	if start <= end {
		return m >= start && m <= end
	}
	return m >= start || m <= end
}
