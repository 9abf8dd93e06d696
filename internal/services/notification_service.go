package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventRecorder is implemented by the behavior tracker.
type EventRecorder interface {
	Record(ctx context.Context, ev models.BehaviorEvent) error
}

const defaultHistoryLimit = 50

// NotificationService serves a user's notification history and open tracking.
type NotificationService struct {
	sent     SentStore
	recorder EventRecorder
	clock    Clock
}

func NewNotificationService(sent SentStore, recorder EventRecorder, clock Clock) *NotificationService {
	return &NotificationService{sent: sent, recorder: recorder, clock: clock}
}

// GetUserNotifications returns the newest sent rows for a user.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID string, limit int) ([]models.SentNotification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	return s.sent.ListForUser(ctx, userID, limit)
}

// MarkOpened flags the notification as opened and feeds the open into the
// user's response rate.
func (s *NotificationService) MarkOpened(ctx context.Context, userID string, id primitive.ObjectID, action string) error {
	now := s.clock.Now()
	if err := s.sent.MarkOpened(ctx, userID, id, action, now); err != nil {
		return err
	}
	err := s.recorder.Record(ctx, models.BehaviorEvent{
		EventID:    "opened:" + id.Hex(),
		UserID:     userID,
		Kind:       models.EventNotificationOpened,
		OccurredAt: now,
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to record notification open")
		return fmt.Errorf("failed to record notification open: %w", err)
	}
	return nil
}
