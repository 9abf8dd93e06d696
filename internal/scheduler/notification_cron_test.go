package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skinsociete/notification-engine/internal/jobs"
	"github.com/skinsociete/notification-engine/internal/lock"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadSpecAndDuplicates(t *testing.T) {
	s := NewScheduler(lock.NewLocal(), time.Second)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add("bad", "every day", noop))
	require.NoError(t, s.Add("ok", "0 * * * *", noop))
	assert.Error(t, s.Add("ok", "0 * * * *", noop))
	assert.Equal(t, []string{"ok"}, s.Jobs())
}

func TestRunNow(t *testing.T) {
	s := NewScheduler(lock.NewLocal(), time.Second)
	var (
		calls       int
		hasDeadline bool
	)
	boom := errors.New("boom")
	require.NoError(t, s.Add("job", "@hourly", func(ctx context.Context) error {
		calls++
		_, hasDeadline = ctx.Deadline()
		return boom
	}))

	assert.ErrorIs(t, s.RunNow(t.Context(), "job"), boom)
	assert.Equal(t, 1, calls)
	assert.True(t, hasDeadline)

	assert.ErrorIs(t, s.RunNow(t.Context(), "missing"), ErrUnknownJob)
}

func TestRunNowSkipsWhenLeaseHeld(t *testing.T) {
	locker := lock.NewLocal()
	s := NewScheduler(locker, time.Second)
	calls := 0
	require.NoError(t, s.Add("job", "@hourly", func(context.Context) error {
		calls++
		return nil
	}))

	unlock, ok, err := locker.TryLock(t.Context(), "sweep:job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RunNow(t.Context(), "job"))
	assert.Zero(t, calls)

	unlock()
	require.NoError(t, s.RunNow(t.Context(), "job"))
	assert.Equal(t, 1, calls)
}

func TestRegisterWiresAllSweeps(t *testing.T) {
	s := NewScheduler(lock.NewLocal(), time.Second)
	reminders := jobs.NewReminderJobs(jobs.Deps{})
	delivery := services.NewDeliveryService(nil, nil, nil, nil)

	require.NoError(t, Register(s, reminders, delivery))
	assert.Equal(t, []string{
		"booking", "cleanup", "delivery-sweep", "reengagement",
		"routine-reminders", "streak-protection", "tips", "weather",
	}, s.Jobs())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(lock.NewLocal(), time.Second)
	s.Start()
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
