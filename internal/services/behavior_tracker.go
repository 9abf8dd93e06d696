package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/lock"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/templates"
)

// StreakResetPolicy decides what a routine completion does after a missed day.
type StreakResetPolicy string

const (
	// StreakResetGap restarts the streak at 1 when the previous completion of
	// the same routine is older than the start of yesterday, user-local.
	StreakResetGap StreakResetPolicy = "gap"
	// StreakResetNone never resets; every completion increments.
	StreakResetNone StreakResetPolicy = "none"
)

const (
	StreakMilestoneDays   = 7
	ReengagementAfter     = 7 * 24 * time.Hour
	AppointmentLeadTime   = 2 * time.Hour
	responseRateAlpha     = 0.1
	behaviorLockTTL       = 30 * time.Second
	behaviorLockKeyPrefix = "behavior:"
)

// NotificationScheduler persists a deferred send.
type NotificationScheduler interface {
	Schedule(ctx context.Context, req ScheduleRequest) (*models.ScheduledNotification, error)
}

// BehaviorTracker applies domain events to the user's behavior record and
// fires the notifications those changes trigger. Store errors are returned;
// notification failures are logged and never undo the update.
type BehaviorTracker struct {
	behaviors BehaviorStore
	users     UserStore
	prefs     PreferenceStore
	products  ProductStore
	events    EventLog
	notifier  Notifier
	scheduler NotificationScheduler
	locker    lock.Locker
	clock     Clock
	policy    StreakResetPolicy
	fallback  *time.Location
}

type TrackerDeps struct {
	Behaviors BehaviorStore
	Users     UserStore
	Prefs     PreferenceStore
	Products  ProductStore
	Events    EventLog
	Notifier  Notifier
	Scheduler NotificationScheduler
	Locker    lock.Locker
	Clock     Clock
	Policy    StreakResetPolicy
	Fallback  *time.Location
}

func NewBehaviorTracker(d TrackerDeps) *BehaviorTracker {
	if d.Policy == "" {
		d.Policy = StreakResetGap
	}
	if d.Fallback == nil {
		d.Fallback = time.UTC
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	return &BehaviorTracker{
		behaviors: d.Behaviors,
		users:     d.Users,
		prefs:     d.Prefs,
		products:  d.Products,
		events:    d.Events,
		notifier:  d.Notifier,
		scheduler: d.Scheduler,
		locker:    d.Locker,
		clock:     d.Clock,
		policy:    d.Policy,
		fallback:  d.Fallback,
	}
}

// Record applies one event. Events are serialized per user; an event whose
// EventID was already applied is a no-op.
func (t *BehaviorTracker) Record(ctx context.Context, ev models.BehaviorEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	unlock, err := t.locker.Lock(ctx, behaviorLockKeyPrefix+ev.UserID, behaviorLockTTL)
	if err != nil {
		return fmt.Errorf("failed to lock behavior record: %w", err)
	}
	defer unlock()

	if ev.EventID != "" {
		seen, err := t.events.Seen(ctx, ev.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event %s: %w", ev.EventID, err)
		}
		if seen {
			logrus.WithField("event_id", ev.EventID).Debug("Skipping already processed event")
			return nil
		}
	}

	now := t.clock.Now()
	at := now
	if !ev.OccurredAt.IsZero() && ev.OccurredAt.Before(now) {
		at = ev.OccurredAt
	}

	if err := t.apply(ctx, ev, at, now); err != nil {
		return err
	}

	if ev.EventID != "" {
		if err := t.events.MarkProcessed(ctx, &models.ProcessedEvent{
			EventID:     ev.EventID,
			UserID:      ev.UserID,
			Kind:        ev.Kind,
			ProcessedAt: now,
		}); err != nil {
			return fmt.Errorf("failed to mark event %s processed: %w", ev.EventID, err)
		}
	}
	return nil
}

func (t *BehaviorTracker) apply(ctx context.Context, ev models.BehaviorEvent, at, now time.Time) error {
	switch ev.Kind {
	case models.EventLogin:
		return t.login(ctx, ev, at)
	case models.EventRoutineCompleted:
		return t.routineCompleted(ctx, ev, at)
	case models.EventBookingCreated:
		return t.bookingCreated(ctx, ev, at, now)
	case models.EventPurchase:
		return t.purchase(ctx, ev, at)
	case models.EventPostCreated:
		if err := t.behaviors.MarkActivity(ctx, ev.UserID, ActivityPost, at); err != nil {
			return fmt.Errorf("failed to record post: %w", err)
		}
	case models.EventPointsEarned:
		return t.addPoints(ctx, ev.UserID, ev.Payload.Points)
	case models.EventNotificationOpened:
		if err := t.behaviors.BlendResponse(ctx, ev.UserID, 1, responseRateAlpha); err != nil {
			return fmt.Errorf("failed to update response rate: %w", err)
		}
	case models.EventOptOutChanged:
		if err := t.behaviors.SetOptOut(ctx, ev.UserID, *ev.Payload.OptOut); err != nil {
			return fmt.Errorf("failed to update opt-out: %w", err)
		}
	}
	return nil
}

func (t *BehaviorTracker) login(ctx context.Context, ev models.BehaviorEvent, at time.Time) error {
	prev, err := t.behaviors.SwapLastLogin(ctx, ev.UserID, at, ev.Payload.DeviceType)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	if prev == nil || at.Sub(*prev) < ReengagementAfter {
		return nil
	}
	days := int(at.Sub(*prev) / (24 * time.Hour))
	t.notify(ctx, ev.UserID, templates.Reengagement, map[string]string{"daysAway": strconv.Itoa(days)})
	return nil
}

func (t *BehaviorTracker) routineCompleted(ctx context.Context, ev models.BehaviorEvent, at time.Time) error {
	rt := ev.Payload.RoutineType

	reset := false
	if t.policy == StreakResetGap {
		before, err := t.behaviors.GetBehavior(ctx, ev.UserID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to load behavior record: %w", err)
		}
		if last := before.LastCompleted(rt); last != nil {
			loc, err := t.location(ctx, ev.UserID)
			if err != nil {
				return err
			}
			yesterday := StartOfDay(at, loc).AddDate(0, 0, -1)
			reset = last.Before(yesterday)
		}
	}

	after, err := t.behaviors.IncrementRoutine(ctx, ev.UserID, rt, at, reset)
	if err != nil {
		return fmt.Errorf("failed to record routine: %w", err)
	}
	if after.Streak(rt) == StreakMilestoneDays {
		t.notify(ctx, ev.UserID, templates.StreakMilestone, map[string]string{
			"streak":      strconv.Itoa(StreakMilestoneDays),
			"routineType": string(rt),
		})
	}
	return nil
}

func (t *BehaviorTracker) bookingCreated(ctx context.Context, ev models.BehaviorEvent, at, now time.Time) error {
	if err := t.behaviors.MarkActivity(ctx, ev.UserID, ActivityBooking, at); err != nil {
		return fmt.Errorf("failed to record booking: %w", err)
	}

	appt := ev.Payload.AppointmentAt
	if appt == nil || !appt.After(now) || t.scheduler == nil {
		return nil
	}
	loc, err := t.location(ctx, ev.UserID)
	if err != nil {
		return err
	}
	sendAt := appt.Add(-AppointmentLeadTime)
	if sendAt.Before(now) {
		sendAt = now
	}
	_, err = t.scheduler.Schedule(ctx, ScheduleRequest{
		UserID:       ev.UserID,
		TemplateID:   templates.AppointmentReminder,
		ScheduledFor: sendAt,
		Timezone:     loc.String(),
		Priority:     models.PriorityUrgent,
		Personalization: map[string]string{
			"salonName":       ev.Payload.SalonName,
			"serviceName":     ev.Payload.ServiceName,
			"appointmentTime": appt.In(loc).Format("15:04"),
		},
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", ev.UserID).Error("Failed to schedule appointment reminder")
	}
	return nil
}

func (t *BehaviorTracker) purchase(ctx context.Context, ev models.BehaviorEvent, at time.Time) error {
	if err := t.behaviors.MarkActivity(ctx, ev.UserID, ActivityPurchase, at); err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	if len(ev.Payload.Categories) > 0 {
		if err := t.behaviors.AddPreferredCategories(ctx, ev.UserID, ev.Payload.Categories); err != nil {
			return fmt.Errorf("failed to record preferred categories: %w", err)
		}
	}
	if ev.Payload.Points > 0 {
		if err := t.addPoints(ctx, ev.UserID, ev.Payload.Points); err != nil {
			return err
		}
	}
	t.recommend(ctx, ev)
	return nil
}

func (t *BehaviorTracker) recommend(ctx context.Context, ev models.BehaviorEvent) {
	if t.products == nil || len(ev.Payload.Categories) == 0 {
		return
	}
	p, err := t.products.FeaturedInCategories(ctx, ev.Payload.Categories, ev.Payload.ProductIDs)
	if err != nil {
		logrus.WithError(err).WithField("user_id", ev.UserID).Warn("Failed to pick product recommendation")
		return
	}
	if p == nil {
		return
	}
	t.notify(ctx, ev.UserID, templates.ProductRecommendation, map[string]string{
		"productName": p.Name,
		"category":    p.Category,
		"productLink": p.DeepLink,
	})
}

// addPoints increments the total and moves the tier. Only the caller whose
// conditional tier update wins sends the upgrade notification.
func (t *BehaviorTracker) addPoints(ctx context.Context, userID string, points int) error {
	user, err := t.users.AddPoints(ctx, userID, points)
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}
	next := models.TierForPoints(user.TotalPoints)
	if next == user.Tier {
		return nil
	}
	swapped, err := t.users.UpdateTier(ctx, userID, user.Tier, next)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if swapped && models.TierRank(next) > models.TierRank(user.Tier) {
		t.notify(ctx, userID, templates.TierUpgrade, map[string]string{
			"tierName":    next,
			"totalPoints": strconv.Itoa(user.TotalPoints),
		})
	}
	return nil
}

func (t *BehaviorTracker) location(ctx context.Context, userID string) (*time.Location, error) {
	prefs, err := t.prefs.GetPreferences(ctx, []string{userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return prefs[userID].Location(t.fallback), nil
}

func (t *BehaviorTracker) notify(ctx context.Context, userID, templateID string, vars map[string]string) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(ctx, NotifyRequest{UserID: userID, TemplateID: templateID, Vars: vars})
}
