package services_test

import (
	"testing"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMarkOpenedFeedsResponseRate(t *testing.T) {
	f := newTracker(t, services.StreakResetGap)
	svc := services.NewNotificationService(f.sent, f.tracker, f.clock)
	ctx := t.Context()

	row := &models.SentNotification{UserID: "ana", DispatchID: "d", TemplateID: "t", Delivered: true, SentAt: baseNow.Add(-time.Hour)}
	require.NoError(t, f.sent.InsertSent(ctx, row))

	require.NoError(t, svc.MarkOpened(ctx, "ana", row.ID, "start"))
	require.NoError(t, svc.MarkOpened(ctx, "ana", row.ID, "start"))

	list, err := svc.GetUserNotifications(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Opened)
	assert.Equal(t, "start", list[0].ActionTaken)

	rec, err := f.behaviors.GetBehavior(ctx, "ana")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rec.AvgNotificationResponse, 1e-9, "repeat opens count once")

	assert.ErrorIs(t, svc.MarkOpened(ctx, "ben", row.ID, ""), models.ErrNotFound)
	assert.ErrorIs(t, svc.MarkOpened(ctx, "ana", primitive.NewObjectID(), ""), models.ErrNotFound)
}
