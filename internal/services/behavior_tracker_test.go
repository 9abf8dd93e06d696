package services_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skinsociete/notification-engine/internal/lock"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/services/servicestest"
	"github.com/skinsociete/notification-engine/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackerFixture struct {
	*harness
	events   *servicestest.Events
	products *servicestest.Products
	notifier *servicestest.Notifier
	tracker  *services.BehaviorTracker
}

func newTracker(t *testing.T, policy services.StreakResetPolicy) *trackerFixture {
	t.Helper()
	f := &trackerFixture{
		harness:  newHarness(t),
		events:   servicestest.NewEvents(),
		products: &servicestest.Products{},
		notifier: &servicestest.Notifier{},
	}
	f.tracker = services.NewBehaviorTracker(services.TrackerDeps{
		Behaviors: f.behaviors,
		Users:     f.users,
		Prefs:     f.prefs,
		Products:  f.products,
		Events:    f.events,
		Notifier:  f.notifier,
		Scheduler: f.delivery,
		Locker:    lock.NewLocal(),
		Clock:     f.clock,
		Policy:    policy,
		Fallback:  time.UTC,
	})
	return f
}

func routine(userID string, rt models.RoutineType) models.BehaviorEvent {
	return models.BehaviorEvent{UserID: userID, Kind: models.EventRoutineCompleted, Payload: models.EventPayload{RoutineType: rt}}
}

func TestRecordRejectsInvalidEvent(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	err := f.tracker.Record(t.Context(), models.BehaviorEvent{UserID: "ana", Kind: "dance"})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
}

func TestRoutineSameDayIncrementsEveryTime(t *testing.T) {
	for _, policy := range []services.StreakResetPolicy{services.StreakResetGap, services.StreakResetNone} {
		t.Run(string(policy), func(t *testing.T) {
			f := newTracker(t, policy)
			const n = 5
			for i := 0; i < n; i++ {
				require.NoError(t, f.tracker.Record(t.Context(), routine("ana", models.RoutineMorning)))
				f.clock.Advance(time.Minute)
			}
			rec, err := f.behaviors.GetBehavior(t.Context(), "ana")
			require.NoError(t, err)
			assert.Equal(t, n, rec.MorningRoutineStreak)
			assert.Equal(t, 0, rec.EveningRoutineStreak)
			assert.Equal(t, n, rec.TotalRoutinesCompleted)
			require.NotNil(t, rec.LastRoutineAt)
		})
	}
}

func TestRoutineConcurrentEventsAllCount(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.tracker.Record(t.Context(), routine("ana", models.RoutineEvening)))
		}()
	}
	wg.Wait()
	rec, err := f.behaviors.GetBehavior(t.Context(), "ana")
	require.NoError(t, err)
	assert.Equal(t, n, rec.EveningRoutineStreak)
}

func TestRoutineStreakGapPolicy(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	ctx := t.Context()

	// Consecutive days keep the streak.
	for day := 0; day < 3; day++ {
		require.NoError(t, f.tracker.Record(ctx, routine("ana", models.RoutineMorning)))
		f.clock.Advance(24 * time.Hour)
	}
	rec, _ := f.behaviors.GetBehavior(ctx, "ana")
	assert.Equal(t, 3, rec.MorningRoutineStreak)

	// Skipping a full day restarts at 1.
	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.tracker.Record(ctx, routine("ana", models.RoutineMorning)))
	rec, _ = f.behaviors.GetBehavior(ctx, "ana")
	assert.Equal(t, 1, rec.MorningRoutineStreak)
}

func TestRoutineStreakNonePolicyNeverResets(t *testing.T) {
	f := newTracker(t, services.StreakResetNone)
	require.NoError(t, f.tracker.Record(t.Context(), routine("ana", models.RoutineMorning)))
	f.clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, f.tracker.Record(t.Context(), routine("ana", models.RoutineMorning)))
	rec, _ := f.behaviors.GetBehavior(t.Context(), "ana")
	assert.Equal(t, 2, rec.MorningRoutineStreak)
}

func TestStreakMilestoneFiresOnceAtSeven(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	for i := 0; i < 9; i++ {
		require.NoError(t, f.tracker.Record(t.Context(), routine("ana", models.RoutineMorning)))
		f.clock.Advance(24 * time.Hour)
	}
	got := f.notifier.ByTemplate(templates.StreakMilestone)
	require.Len(t, got, 1)
	assert.Equal(t, "ana", got[0].UserID)
	assert.Equal(t, "morning", got[0].Vars["routineType"])
}

func TestLoginReengagementFiresOnce(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	ctx := t.Context()
	longAgo := baseNow.Add(-10 * 24 * time.Hour)
	f.behaviors.Put(models.UserBehaviorRecord{UserID: "ana", LastLoginAt: &longAgo})

	login := models.BehaviorEvent{UserID: "ana", Kind: models.EventLogin, Payload: models.EventPayload{DeviceType: "ios"}}
	require.NoError(t, f.tracker.Record(ctx, login))
	require.NoError(t, f.tracker.Record(ctx, login))

	got := f.notifier.ByTemplate(templates.Reengagement)
	require.Len(t, got, 1)
	assert.Equal(t, "10", got[0].Vars["daysAway"])

	rec, _ := f.behaviors.GetBehavior(ctx, "ana")
	assert.Equal(t, baseNow, *rec.LastLoginAt)
	assert.Equal(t, "ios", rec.DeviceType)
}

func TestFirstLoginDoesNotReengage(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{UserID: "ana", Kind: models.EventLogin}))
	assert.Empty(t, f.notifier.Requests)
}

func TestLateLoginEventDoesNotRewindLastLogin(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	ctx := t.Context()
	login := models.BehaviorEvent{UserID: "ana", Kind: models.EventLogin}

	require.NoError(t, f.tracker.Record(ctx, login))
	late := login
	late.OccurredAt = baseNow.Add(-10 * 24 * time.Hour)
	require.NoError(t, f.tracker.Record(ctx, late))

	rec, _ := f.behaviors.GetBehavior(ctx, "ana")
	assert.Equal(t, baseNow, *rec.LastLoginAt)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.tracker.Record(ctx, login))
	assert.Empty(t, f.notifier.ByTemplate(templates.Reengagement))
}

func TestLateRoutineEventDoesNotRewindLastRoutine(t *testing.T) {
	f := newTracker(t, services.StreakResetNone)
	ctx := t.Context()

	require.NoError(t, f.tracker.Record(ctx, routine("ana", models.RoutineMorning)))
	late := routine("ana", models.RoutineMorning)
	late.OccurredAt = baseNow.Add(-3 * 24 * time.Hour)
	require.NoError(t, f.tracker.Record(ctx, late))

	rec, _ := f.behaviors.GetBehavior(ctx, "ana")
	assert.Equal(t, baseNow, *rec.LastRoutineAt)
	assert.Equal(t, baseNow, *rec.LastMorningRoutineAt)
	assert.Equal(t, 2, rec.TotalRoutinesCompleted)
}

func TestTierUpgradeOncePerCrossing(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	f.users.Put(models.User{ID: "ana", TotalPoints: 950, Tier: models.TierBeautyEnthusiast})

	ev := models.BehaviorEvent{UserID: "ana", Kind: models.EventPointsEarned, Payload: models.EventPayload{Points: 100}}
	require.NoError(t, f.tracker.Record(t.Context(), ev))
	require.NoError(t, f.tracker.Record(t.Context(), ev))

	got := f.notifier.ByTemplate(templates.TierUpgrade)
	require.Len(t, got, 1)
	assert.Equal(t, models.TierSkincareGuru, got[0].Vars["tierName"])
	assert.Equal(t, "1050", got[0].Vars["totalPoints"])

	u, err := f.users.GetUser(t.Context(), "ana")
	require.NoError(t, err)
	assert.Equal(t, 1150, u.TotalPoints)
	assert.Equal(t, models.TierSkincareGuru, u.Tier)
}

func TestInitialTierAssignmentIsSilent(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	f.users.Put(models.User{ID: "ana"})
	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{UserID: "ana", Kind: models.EventPointsEarned, Payload: models.EventPayload{Points: 10}}))
	assert.Empty(t, f.notifier.Requests)
	u, _ := f.users.GetUser(t.Context(), "ana")
	assert.Equal(t, models.TierGlowGetter, u.Tier)
}

func TestDuplicateEventIDIsNoop(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	ev := routine("ana", models.RoutineMorning)
	ev.EventID = "evt-1"
	require.NoError(t, f.tracker.Record(t.Context(), ev))
	require.NoError(t, f.tracker.Record(t.Context(), ev))
	rec, _ := f.behaviors.GetBehavior(t.Context(), "ana")
	assert.Equal(t, 1, rec.MorningRoutineStreak)
}

func TestStoreErrorPropagates(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	boom := errors.New("mongo down")
	f.behaviors.Err = boom

	ev := routine("ana", models.RoutineMorning)
	ev.EventID = "evt-1"
	err := f.tracker.Record(t.Context(), ev)
	assert.ErrorIs(t, err, boom)

	seen, _ := f.events.Seen(t.Context(), "evt-1")
	assert.False(t, seen, "failed events stay replayable")
}

func TestBookingSchedulesAppointmentReminder(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	f.addUser("ana", "Ana", "Europe/Paris", "tok")
	appt := baseNow.Add(26 * time.Hour)

	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{
		UserID: "ana",
		Kind:   models.EventBookingCreated,
		Payload: models.EventPayload{
			AppointmentAt: &appt,
			SalonName:     "Glow Studio",
			ServiceName:   "Hydrafacial",
		},
	}))

	rows := f.scheduled.All()
	require.Len(t, rows, 1)
	assert.Equal(t, templates.AppointmentReminder, rows[0].TemplateID)
	assert.Equal(t, appt.Add(-2*time.Hour), rows[0].ScheduledFor)
	assert.Equal(t, models.PriorityUrgent, rows[0].Priority)
	assert.Equal(t, "Glow Studio", rows[0].Personalization["salonName"])
	// 14:00 UTC is 15:00 in Paris in March.
	assert.Equal(t, "15:00", rows[0].Personalization["appointmentTime"])

	rec, _ := f.behaviors.GetBehavior(t.Context(), "ana")
	require.NotNil(t, rec.LastBookingAt)
}

func TestPurchaseRecommendsAndAwardsPoints(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	f.users.Put(models.User{ID: "ana", Tier: models.TierGlowGetter})
	f.products.List = []models.Product{
		{ID: "p1", Name: "Barrier Cream", Category: "moisturizers", Featured: true, DeepLink: "skinsociete://products/p1"},
		{ID: "p2", Name: "Silk Serum", Category: "serums", Featured: true, DeepLink: "skinsociete://products/p2"},
	}

	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{
		UserID:  "ana",
		Kind:    models.EventPurchase,
		Payload: models.EventPayload{Categories: []string{"moisturizers"}, ProductIDs: []string{"p1"}, Points: 20},
	}))
	assert.Empty(t, f.notifier.ByTemplate(templates.ProductRecommendation), "already bought the only featured match")

	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{
		UserID:  "ana",
		Kind:    models.EventPurchase,
		Payload: models.EventPayload{Categories: []string{"serums"}},
	}))
	got := f.notifier.ByTemplate(templates.ProductRecommendation)
	require.Len(t, got, 1)
	assert.Equal(t, "Silk Serum", got[0].Vars["productName"])

	rec, _ := f.behaviors.GetBehavior(t.Context(), "ana")
	assert.Equal(t, []string{"moisturizers", "serums"}, rec.PreferredCategories)
	u, _ := f.users.GetUser(t.Context(), "ana")
	assert.Equal(t, 20, u.TotalPoints)
}

func TestOptOutAndResponseRate(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	optOut := true
	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{UserID: "ana", Kind: models.EventOptOutChanged, Payload: models.EventPayload{OptOut: &optOut}}))
	require.NoError(t, f.tracker.Record(t.Context(), models.BehaviorEvent{UserID: "ana", Kind: models.EventNotificationOpened}))

	rec, _ := f.behaviors.GetBehavior(t.Context(), "ana")
	assert.True(t, rec.NotificationOptOut)
	assert.InDelta(t, 0.1, rec.AvgNotificationResponse, 1e-9)
}
