package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/jobs"
	"github.com/skinsociete/notification-engine/internal/lock"
	"github.com/skinsociete/notification-engine/internal/services"
)

var ErrUnknownJob = errors.New("unknown job")

// Job is one scheduled sweep.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron specs. Every run holds the lease
// "sweep:<name>" so that only one instance executes a sweep at a time.
type Scheduler struct {
	c       *cron.Cron
	locker  lock.Locker
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
}

func NewScheduler(locker lock.Locker, timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &Scheduler{
		c: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		locker:  locker,
		timeout: timeout,
		jobs:    map[string]Job{},
	}
}

// Add registers job under name with a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	if _, err := s.c.AddFunc(spec, func() {
		if err := s.run(context.Background(), name, job); err != nil {
			logrus.WithError(err).WithField("job", name).Error("Scheduled job failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid spec %q for job %s: %w", spec, name, err)
	}
	s.jobs[name] = job
	return nil
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start() {
	s.c.Start()
	logrus.WithField("jobs", s.Jobs()).Info("Scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a registered job immediately under the same lease.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, job)
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	unlock, ok, err := s.locker.TryLock(ctx, "sweep:"+name, s.timeout+time.Minute)
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		logrus.WithField("job", name).Debug("Job already running elsewhere, skipping")
		return nil
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err = job(ctx)
	logrus.WithFields(logrus.Fields{
		"job":      name,
		"duration": time.Since(start).String(),
	}).Debug("Job finished")
	return err
}

// Register wires the notification sweeps onto s.
func Register(s *Scheduler, reminders *jobs.ReminderJobs, delivery *services.DeliveryService) error {
	entries := []struct {
		name string
		spec string
		job  Job
	}{
		{"routine-reminders", "* * * * *", reminders.RoutineReminders},
		{"delivery-sweep", "*/5 * * * *", func(ctx context.Context) error {
			stats, err := delivery.RunSweep(ctx)
			if err != nil {
				return err
			}
			if stats.Claimed > 0 || stats.Released > 0 {
				logrus.WithFields(logrus.Fields{
					"claimed":   stats.Claimed,
					"sent":      stats.Sent,
					"retried":   stats.Retried,
					"deferred":  stats.Deferred,
					"failed":    stats.Failed,
					"cancelled": stats.Cancelled,
					"released":  stats.Released,
				}).Info("Delivery sweep completed")
			}
			return nil
		}},
		{"streak-protection", "0 * * * *", reminders.StreakProtection},
		{"weather", "0 8 * * *", reminders.WeatherAdvice},
		{"reengagement", "0 10 * * *", reminders.InactivitySweep},
		{"tips", "0 11 * * *", reminders.PersonalizedTips},
		{"booking", "0 12 * * 1", reminders.BookingReminders},
		{"cleanup", "30 3 * * *", reminders.Cleanup},
	}
	for _, e := range entries {
		if err := s.Add(e.name, e.spec, e.job); err != nil {
			return err
		}
	}
	return nil
}
