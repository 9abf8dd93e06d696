package jobs

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/services/servicestest"
	"github.com/skinsociete/notification-engine/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	reqs []services.DispatchRequest
}

func (s *captureSender) Send(_ context.Context, req services.DispatchRequest) ([]services.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil, nil
}

// recipients maps template id to the user ids it was sent to.
func (s *captureSender) recipients() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]string{}
	for _, r := range s.reqs {
		out[r.TemplateID] = append(out[r.TemplateID], r.Target.UserIDs...)
	}
	for k := range out {
		slices.Sort(out[k])
	}
	return out
}

type fixture struct {
	clock     *servicestest.Clock
	users     *servicestest.Users
	behaviors *servicestest.Behaviors
	prefs     *servicestest.Preferences
	sent      *servicestest.Sent
	scheduled *servicestest.Scheduled
	sender    *captureSender
	jobs      *ReminderJobs
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		clock:     servicestest.NewClock(now),
		users:     servicestest.NewUsers(),
		behaviors: servicestest.NewBehaviors(),
		prefs:     servicestest.NewPreferences(),
		sent:      servicestest.NewSent(),
		scheduled: servicestest.NewScheduled(),
		sender:    &captureSender{},
	}
	f.jobs = NewReminderJobs(Deps{
		Behaviors:   f.behaviors,
		Prefs:       f.prefs,
		Sent:        f.sent,
		Scheduled:   f.scheduled,
		Resolver:    services.NewResolver(f.users, f.behaviors, f.prefs, f.clock, time.UTC),
		Sender:      f.sender,
		Registry:    templates.Default(),
		Clock:       f.clock,
		Fallback:    time.UTC,
		StreakHours: []int{18, 21},
	})
	return f
}

func (f *fixture) user(id, tz string) *models.NotificationPreference {
	f.users.Put(models.User{ID: id, FirstName: id})
	p := models.DefaultPreference(id, tz)
	f.prefs.Put(*p)
	return p
}

func ptr(t time.Time) *time.Time { return &t }

func TestRoutineRemindersMatchLocalTime(t *testing.T) {
	// 07:00 UTC is 08:00 in Paris and 03:00 in New York.
	f := newFixture(time.Date(2026, 1, 14, 7, 0, 0, 0, time.UTC))
	f.user("paris", "Europe/Paris")
	f.user("nyc", "America/New_York")
	f.user("paris-done", "Europe/Paris")
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "paris-done", LastMorningRoutineAt: ptr(time.Date(2026, 1, 14, 6, 30, 0, 0, time.UTC))})
	late := f.user("paris-late", "Europe/Paris")
	late.MorningTime = "09:30"
	f.prefs.Put(*late)

	require.NoError(t, f.jobs.RoutineReminders(t.Context()))
	assert.Equal(t, map[string][]string{templates.MorningRoutineReminder: {"paris"}}, f.sender.recipients())
}

func TestEveningReminder(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 14, 21, 0, 0, 0, time.UTC))
	f.user("ana", "UTC")
	require.NoError(t, f.jobs.RoutineReminders(t.Context()))
	assert.Equal(t, map[string][]string{templates.EveningRoutineReminder: {"ana"}}, f.sender.recipients())
}

func TestInactivitySweepDeduplicates(t *testing.T) {
	now := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "gone", LastLoginAt: ptr(now.Add(-5 * 24 * time.Hour))})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "reminded", LastLoginAt: ptr(now.Add(-5 * 24 * time.Hour))})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "active", LastLoginAt: ptr(now.Add(-time.Hour))})
	require.NoError(t, f.sent.InsertSent(t.Context(), &models.SentNotification{UserID: "reminded", TemplateID: templates.InactiveReminder, SentAt: now.Add(-24 * time.Hour)}))

	require.NoError(t, f.jobs.InactivitySweep(t.Context()))
	assert.Equal(t, map[string][]string{templates.InactiveReminder: {"gone"}}, f.sender.recipients())
}

func TestBookingReminders(t *testing.T) {
	now := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "lapsed", LastBookingAt: ptr(now.Add(-50 * 24 * time.Hour))})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "recent", LastBookingAt: ptr(now.Add(-10 * 24 * time.Hour))})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "never"})

	require.NoError(t, f.jobs.BookingReminders(t.Context()))
	assert.Equal(t, map[string][]string{templates.BookingReminder: {"lapsed"}}, f.sender.recipients())
}

func TestStreakProtection(t *testing.T) {
	// 17:00 UTC is 18:00 in Paris.
	now := time.Date(2026, 1, 14, 17, 0, 0, 0, time.UTC)
	f := newFixture(now)
	for _, id := range []string{"risk", "safe", "short", "warned"} {
		f.user(id, "Europe/Paris")
	}
	f.user("utc", "UTC")
	yesterday := ptr(now.Add(-24 * time.Hour))
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "risk", MorningRoutineStreak: 5, LastRoutineAt: yesterday})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "safe", MorningRoutineStreak: 5, LastRoutineAt: ptr(now.Add(-time.Hour))})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "short", EveningRoutineStreak: 2, LastRoutineAt: yesterday})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "warned", EveningRoutineStreak: 9, LastRoutineAt: yesterday})
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "utc", EveningRoutineStreak: 9, LastRoutineAt: yesterday})
	require.NoError(t, f.sent.InsertSent(t.Context(), &models.SentNotification{UserID: "warned", TemplateID: templates.StreakProtection, SentAt: now.Add(-time.Minute)}))

	require.NoError(t, f.jobs.StreakProtection(t.Context()))
	assert.Equal(t, map[string][]string{templates.StreakProtection: {"risk"}}, f.sender.recipients())
	require.Len(t, f.sender.reqs, 1)
	assert.Equal(t, models.PriorityHigh, f.sender.reqs[0].Priority)
}

func TestPersonalizedTipsGroupByProfile(t *testing.T) {
	f := newFixture(time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC))
	f.users.Put(models.User{ID: "a", SkinType: "oily"})
	f.users.Put(models.User{ID: "b", SkinType: "normal", SkinConcerns: []string{"acne"}})
	f.users.Put(models.User{ID: "c", SkinType: "normal"})
	f.users.Put(models.User{ID: "d", SkinType: "dry"})

	require.NoError(t, f.jobs.PersonalizedTips(t.Context()))
	assert.Equal(t, map[string][]string{
		templates.TipPrefix + "oily":    {"a"},
		templates.TipPrefix + "acne":    {"b"},
		templates.TipPrefix + "general": {"c"},
		templates.TipPrefix + "dry":     {"d"},
	}, f.sender.recipients())
}

func TestWeatherAdviceUsesLocalSeason(t *testing.T) {
	// 31 May 23:30 UTC is already 1 June in Paris.
	f := newFixture(time.Date(2026, 5, 31, 23, 30, 0, 0, time.UTC))
	f.user("paris", "Europe/Paris")
	f.user("utc", "UTC")

	require.NoError(t, f.jobs.WeatherAdvice(t.Context()))
	assert.Equal(t, map[string][]string{
		templates.WeatherPrefix + "summer":  {"paris"},
		templates.WeatherPrefix + "general": {"utc"},
	}, f.sender.recipients())
}

func TestCleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(now)
	ctx := t.Context()
	old := now.Add(-40 * 24 * time.Hour)
	require.NoError(t, f.sent.InsertSent(ctx, &models.SentNotification{UserID: "a", SentAt: old}))
	require.NoError(t, f.sent.InsertSent(ctx, &models.SentNotification{UserID: "a", SentAt: now}))
	require.NoError(t, f.scheduled.CreateScheduled(ctx, &models.ScheduledNotification{UserID: "a", Status: models.StatusSent, UpdatedAt: old}))
	require.NoError(t, f.scheduled.CreateScheduled(ctx, &models.ScheduledNotification{UserID: "a", Status: models.StatusPending, UpdatedAt: old}))

	require.NoError(t, f.jobs.Cleanup(ctx))
	assert.Len(t, f.sent.Rows(), 1)
	rows := f.scheduled.All()
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusPending, rows[0].Status)
}
