package jobs

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/templates"
)

const (
	InactiveAfter         = 3 * 24 * time.Hour
	BookingLapse          = 6 * 7 * 24 * time.Hour
	StreakProtectionMin   = 3
	RetentionPeriod       = 30 * 24 * time.Hour
	dispatchBatchSize     = 500
	bookingReminderRepeat = 7 * 24 * time.Hour
	dailyRepeat           = 20 * time.Hour
)

// ReminderJobs holds the population sweeps run by the scheduler.
type ReminderJobs struct {
	behaviors   services.BehaviorStore
	prefs       services.PreferenceStore
	sent        services.SentStore
	scheduled   services.ScheduledStore
	resolver    *services.Resolver
	sender      services.Sender
	registry    *templates.Registry
	clock       services.Clock
	fallback    *time.Location
	streakHours []int
}

type Deps struct {
	Behaviors   services.BehaviorStore
	Prefs       services.PreferenceStore
	Sent        services.SentStore
	Scheduled   services.ScheduledStore
	Resolver    *services.Resolver
	Sender      services.Sender
	Registry    *templates.Registry
	Clock       services.Clock
	Fallback    *time.Location
	StreakHours []int
}

// NewReminderJobs creates a new instance of ReminderJobs
func NewReminderJobs(d Deps) *ReminderJobs {
	if d.Fallback == nil {
		d.Fallback = time.UTC
	}
	return &ReminderJobs{
		behaviors:   d.Behaviors,
		prefs:       d.Prefs,
		sent:        d.Sent,
		scheduled:   d.Scheduled,
		resolver:    d.Resolver,
		sender:      d.Sender,
		registry:    d.Registry,
		clock:       d.Clock,
		fallback:    d.Fallback,
		streakHours: d.StreakHours,
	}
}

func (j *ReminderJobs) location(tz string) *time.Location {
	if tz == "" {
		return j.fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return j.fallback
	}
	return loc
}

// RoutineReminders sends the morning or evening reminder to users whose
// configured time equals the current local minute and who have not done
// that routine today.
func (j *ReminderJobs) RoutineReminders(ctx context.Context) error {
	tzs, err := j.prefs.Timezones(ctx)
	if err != nil {
		return fmt.Errorf("failed to list timezones: %v", err)
	}

	now := j.clock.Now()
	for _, tz := range tzs {
		loc := j.location(tz)
		hhmm := now.In(loc).Format("15:04")
		today := services.StartOfDay(now, loc)

		for _, rt := range []models.RoutineType{models.RoutineMorning, models.RoutineEvening} {
			prefs, err := j.prefs.FindByReminderTime(ctx, tz, rt, hhmm)
			if err != nil {
				return fmt.Errorf("failed to find %s reminders: %v", rt, err)
			}
			if len(prefs) == 0 {
				continue
			}
			ids := make([]string, len(prefs))
			for i, p := range prefs {
				ids[i] = p.UserID
			}
			behaviors, err := j.behaviors.GetBehaviors(ctx, ids)
			if err != nil {
				return fmt.Errorf("failed to load behavior records: %v", err)
			}
			due := ids[:0]
			for _, id := range ids {
				if last := behaviors[id].LastCompleted(rt); last != nil && !last.Before(today) {
					continue
				}
				due = append(due, id)
			}

			templateID := templates.MorningRoutineReminder
			if rt == models.RoutineEvening {
				templateID = templates.EveningRoutineReminder
			}
			j.send(ctx, templateID, due, "")
		}
	}
	return nil
}

// InactivitySweep is the daily re-engagement sweep: it reminds users who have
// not logged in for InactiveAfter, at most once per InactiveAfter. The
// "welcome back" reengagement template is sent by the behavior tracker when
// such a user logs in again after ReengagementAfter.
func (j *ReminderJobs) InactivitySweep(ctx context.Context) error {
	now := j.clock.Now()
	cutoff := now.Add(-InactiveAfter)
	recs, err := j.behaviors.FindBehaviors(ctx, services.BehaviorQuery{LastLoginBefore: &cutoff})
	if err != nil {
		return fmt.Errorf("failed to fetch inactive users: %v", err)
	}
	ids := j.notRecentlySent(ctx, userIDs(recs), templates.InactiveReminder, now.Add(-InactiveAfter))
	j.send(ctx, templates.InactiveReminder, ids, "")
	logrus.Infof("Inactivity sweep completed: %d candidates, %d notified", len(recs), len(ids))
	return nil
}

// BookingReminders nudges users whose last salon booking is older than BookingLapse.
func (j *ReminderJobs) BookingReminders(ctx context.Context) error {
	now := j.clock.Now()
	cutoff := now.Add(-BookingLapse)
	recs, err := j.behaviors.FindBehaviors(ctx, services.BehaviorQuery{LastBookingBefore: &cutoff})
	if err != nil {
		return fmt.Errorf("failed to fetch lapsed bookers: %v", err)
	}
	ids := j.notRecentlySent(ctx, userIDs(recs), templates.BookingReminder, now.Add(-bookingReminderRepeat))
	j.send(ctx, templates.BookingReminder, ids, "")
	logrus.Infof("Booking reminder sweep completed: %d candidates, %d notified", len(recs), len(ids))
	return nil
}

// StreakProtection warns users in timezones currently at one of the configured
// local hours who hold a streak of at least StreakProtectionMin and have not
// logged a routine today. Each user gets at most one warning per local day.
func (j *ReminderJobs) StreakProtection(ctx context.Context) error {
	tzs, err := j.prefs.Timezones(ctx)
	if err != nil {
		return fmt.Errorf("failed to list timezones: %v", err)
	}

	now := j.clock.Now()
	for _, tz := range tzs {
		loc := j.location(tz)
		if !slices.Contains(j.streakHours, now.In(loc).Hour()) {
			continue
		}
		today := services.StartOfDay(now, loc)

		prefs, err := j.prefs.FindByTimezone(ctx, tz)
		if err != nil {
			return fmt.Errorf("failed to fetch preferences for %s: %v", tz, err)
		}
		ids := make([]string, len(prefs))
		for i, p := range prefs {
			ids[i] = p.UserID
		}
		behaviors, err := j.behaviors.GetBehaviors(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load behavior records: %v", err)
		}

		var atRisk []string
		for _, id := range ids {
			b := behaviors[id]
			if b.BestStreak() < StreakProtectionMin || b.RoutineDoneSince(today) {
				continue
			}
			atRisk = append(atRisk, id)
		}
		atRisk = j.notRecentlySent(ctx, atRisk, templates.StreakProtection, today)
		j.send(ctx, templates.StreakProtection, atRisk, models.PriorityHigh)
	}
	return nil
}

// PersonalizedTips sends each user the tip matching their skin profile.
func (j *ReminderJobs) PersonalizedTips(ctx context.Context) error {
	return j.sendMatched(ctx, templates.TipPrefix)
}

// WeatherAdvice sends each user the seasonal advice for their local month.
func (j *ReminderJobs) WeatherAdvice(ctx context.Context) error {
	return j.sendMatched(ctx, templates.WeatherPrefix)
}

func (j *ReminderJobs) sendMatched(ctx context.Context, prefix string) error {
	recipients, err := j.resolver.Resolve(ctx, models.Target{})
	if err != nil {
		return fmt.Errorf("failed to resolve audience: %v", err)
	}

	now := j.clock.Now()
	groups := map[string][]string{}
	for i := range recipients {
		rc := &recipients[i]
		tpl, ok := j.registry.FirstMatch(prefix, models.TriggerContext{
			User:     &rc.User,
			Behavior: rc.Behavior,
			LocalNow: now.In(rc.Preference.Location(j.fallback)),
		})
		if !ok {
			continue
		}
		groups[tpl.ID] = append(groups[tpl.ID], rc.User.ID)
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, templateID := range ids {
		users := j.notRecentlySent(ctx, groups[templateID], templateID, now.Add(-dailyRepeat))
		j.send(ctx, templateID, users, "")
	}
	return nil
}

// Cleanup deletes sent rows and terminal scheduled rows older than RetentionPeriod.
func (j *ReminderJobs) Cleanup(ctx context.Context) error {
	cutoff := j.clock.Now().Add(-RetentionPeriod)
	if _, err := j.sent.DeleteOlderThan(ctx, cutoff); err != nil {
		return err
	}
	if _, err := j.scheduled.DeleteTerminalOlderThan(ctx, cutoff); err != nil {
		return err
	}
	return nil
}

// notRecentlySent drops users who already received templateID at or after since.
func (j *ReminderJobs) notRecentlySent(ctx context.Context, ids []string, templateID string, since time.Time) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		existing, err := j.sent.LastSent(ctx, id, templateID)
		if err != nil {
			logrus.WithError(err).Warnf("Failed to check previous %s for user %s", templateID, id)
			continue
		}
		if existing != nil && !existing.SentAt.Before(since) {
			continue // skip duplicate notification
		}
		out = append(out, id)
	}
	return out
}

func (j *ReminderJobs) send(ctx context.Context, templateID string, ids []string, priority models.Priority) {
	for start := 0; start < len(ids); start += dispatchBatchSize {
		end := min(start+dispatchBatchSize, len(ids))
		results, err := j.sender.Send(ctx, services.DispatchRequest{
			Target:     models.Target{UserIDs: ids[start:end]},
			TemplateID: templateID,
			Priority:   priority,
		})
		if err != nil {
			logrus.WithError(err).Warnf("Failed to send %s batch", templateID)
			continue
		}
		delivered := 0
		for _, r := range results {
			if r.Delivered {
				delivered++
			}
		}
		logrus.WithFields(logrus.Fields{
			"template_id": templateID,
			"recipients":  end - start,
			"delivered":   delivered,
		}).Info("Sweep batch dispatched")
	}
}

func userIDs(recs []models.UserBehaviorRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.UserID
	}
	return out
}
