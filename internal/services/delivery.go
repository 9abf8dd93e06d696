package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/templates"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotCancellable is returned when cancelling a row that is no longer PENDING.
var ErrNotCancellable = errors.New("scheduled notification is not pending")

const (
	DeliveryBatchSize = 100
	StaleClaimAfter   = 15 * time.Minute
)

// ScheduleRequest is a deferred single-user send.
type ScheduleRequest struct {
	UserID          string            `json:"user_id"`
	TemplateID      string            `json:"template_id"`
	ScheduledFor    time.Time         `json:"scheduled_for"`
	Timezone        string            `json:"timezone,omitempty"`
	Personalization map[string]string `json:"personalization,omitempty"`
	Priority        models.Priority   `json:"priority,omitempty"`
}

// SweepStats summarizes one delivery sweep.
type SweepStats struct {
	Released  int64
	Claimed   int
	Sent      int
	Retried   int
	Deferred  int
	Failed    int
	Cancelled int
}

// DeliveryService owns the scheduled-notification lifecycle:
// PENDING -> PROCESSING -> SENT | PENDING (retry, deferral) | FAILED, and
// PENDING -> CANCELLED. Terminal rows are never touched again.
type DeliveryService struct {
	store    ScheduledStore
	sender   Sender
	registry *templates.Registry
	clock    Clock
}

func NewDeliveryService(store ScheduledStore, sender Sender, registry *templates.Registry, clock Clock) *DeliveryService {
	return &DeliveryService{store: store, sender: sender, registry: registry, clock: clock}
}

// Schedule validates and persists a PENDING row.
func (s *DeliveryService) Schedule(ctx context.Context, req ScheduleRequest) (*models.ScheduledNotification, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", models.ErrInvalidTarget)
	}
	if _, err := s.registry.Get(req.TemplateID); err != nil {
		return nil, err
	}
	if req.ScheduledFor.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_for is required", models.ErrInvalidRequest)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: invalid priority %q", models.ErrInvalidRequest, req.Priority)
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, fmt.Errorf("%w: invalid timezone %q", models.ErrInvalidRequest, req.Timezone)
		}
	}

	now := s.clock.Now()
	n := &models.ScheduledNotification{
		UserID:          req.UserID,
		TemplateID:      req.TemplateID,
		ScheduledFor:    req.ScheduledFor,
		Timezone:        req.Timezone,
		Personalization: req.Personalization,
		Priority:        req.Priority,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateScheduled(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create scheduled notification: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"user_id":       n.UserID,
		"template_id":   n.TemplateID,
		"scheduled_for": n.ScheduledFor,
	}).Info("Notification scheduled")
	return n, nil
}

// Cancel moves a PENDING row to CANCELLED.
func (s *DeliveryService) Cancel(ctx context.Context, id primitive.ObjectID) error {
	ok, err := s.store.CancelScheduled(ctx, id, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled notification: %w", err)
	}
	if !ok {
		if _, err := s.store.GetScheduled(ctx, id); err != nil {
			return err
		}
		return ErrNotCancellable
	}
	return nil
}

// RunSweep releases stale claims, then claims and delivers up to
// DeliveryBatchSize due rows. Each row is attempted at most once per sweep,
// so retries and quiet-hour deferrals wait for the next run.
func (s *DeliveryService) RunSweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.clock.Now()

	released, err := s.store.ReleaseStaleClaims(ctx, now.Add(-StaleClaimAfter))
	if err != nil {
		return stats, fmt.Errorf("failed to release stale claims: %w", err)
	}
	stats.Released = released

	claimID := uuid.NewString()
	for stats.Claimed < DeliveryBatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		row, err := s.store.ClaimDue(ctx, now, claimID)
		if err != nil {
			return stats, fmt.Errorf("failed to claim scheduled notification: %w", err)
		}
		if row == nil {
			break
		}
		stats.Claimed++

		res := s.deliver(ctx, row)
		if err := s.store.ResolveClaim(ctx, row.ID, claimID, res, s.clock.Now()); err != nil {
			logrus.WithError(err).WithField("scheduled_id", row.ID.Hex()).Error("Failed to resolve scheduled notification")
			continue
		}
		switch {
		case res.Status == models.StatusSent:
			stats.Sent++
		case res.Status == models.StatusFailed:
			stats.Failed++
		case res.Status == models.StatusCancelled:
			stats.Cancelled++
		case res.AttemptCount == row.AttemptCount:
			stats.Deferred++
		default:
			stats.Retried++
		}
	}
	return stats, nil
}

// deliver sends one claimed row and decides how it leaves PROCESSING.
func (s *DeliveryService) deliver(ctx context.Context, row *models.ScheduledNotification) ScheduledResolution {
	now := s.clock.Now()
	results, err := s.sender.Send(ctx, DispatchRequest{
		Target:     models.Target{UserID: row.UserID},
		TemplateID: row.TemplateID,
		Vars:       row.Personalization,
		Priority:   row.Priority,
	})
	if err != nil {
		return s.failure(row, now, err.Error())
	}
	if len(results) == 0 {
		return s.failure(row, now, "recipient not found")
	}

	var errs []string
	for _, r := range results {
		if r.Delivered {
			return ScheduledResolution{
				Status:        models.StatusSent,
				AttemptCount:  row.AttemptCount + 1,
				LastAttemptAt: &now,
			}
		}
		if !r.Allowed && r.Reason != "" {
			if r.Reason == ReasonQuietHours {
				// Left for the first sweep after the window closes.
				return ScheduledResolution{Status: models.StatusPending, AttemptCount: row.AttemptCount, LastAttemptAt: row.LastAttemptAt, ErrorMessage: row.ErrorMessage}
			}
			return ScheduledResolution{
				Status:        models.StatusCancelled,
				AttemptCount:  row.AttemptCount,
				LastAttemptAt: &now,
				ErrorMessage:  "suppressed: " + string(r.Reason),
			}
		}
		if r.Error != "" {
			errs = append(errs, r.Error)
		}
	}
	return s.failure(row, now, strings.Join(errs, "; "))
}

func (s *DeliveryService) failure(row *models.ScheduledNotification, now time.Time, msg string) ScheduledResolution {
	attempts := row.AttemptCount + 1
	status := models.StatusPending
	if attempts >= models.MaxDeliveryAttempts {
		status = models.StatusFailed
	}
	logrus.WithFields(logrus.Fields{
		"scheduled_id": row.ID.Hex(),
		"user_id":      row.UserID,
		"attempt":      attempts,
	}).Warnf("Scheduled delivery failed: %s", msg)
	return ScheduledResolution{
		Status:        status,
		AttemptCount:  attempts,
		LastAttemptAt: &now,
		ErrorMessage:  msg,
	}
}
