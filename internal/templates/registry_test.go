package templates

import (
	"testing"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	r := Default()
	for _, id := range []string{
		MorningRoutineReminder, EveningRoutineReminder, StreakProtection, StreakMilestone,
		TierUpgrade, Reengagement, InactiveReminder, ProductRecommendation,
		BookingReminder, AppointmentReminder,
	} {
		_, err := r.Get(id)
		assert.NoError(t, err, id)
	}

	appt, err := r.Get(AppointmentReminder)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgent, appt.Priority)
}

func TestGetUnknown(t *testing.T) {
	_, err := Default().Get("nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	tpl := models.NotificationTemplate{ID: "a", Title: "t", Body: "b", Priority: models.PriorityLow}
	_, err := NewRegistry([]models.NotificationTemplate{tpl, tpl})
	assert.Error(t, err)

	tpl.Priority = "LOUD"
	_, err = NewRegistry([]models.NotificationTemplate{tpl})
	assert.Error(t, err)
}

func TestFirstMatchTips(t *testing.T) {
	r := Default()
	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"oily", models.User{SkinType: "oily"}, "tip_oily"},
		{"acne wins by id order", models.User{SkinType: "oily", SkinConcerns: []string{"acne"}}, "tip_acne"},
		{"fallback", models.User{SkinType: "normal"}, "tip_general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			tpl, ok := r.FirstMatch(TipPrefix, models.TriggerContext{User: &u})
			require.True(t, ok)
			assert.Equal(t, tt.want, tpl.ID)
		})
	}
}

func TestFirstMatchWeather(t *testing.T) {
	r := Default()
	july := time.Date(2026, time.July, 3, 9, 0, 0, 0, time.UTC)
	tpl, ok := r.FirstMatch(WeatherPrefix, models.TriggerContext{LocalNow: july})
	require.True(t, ok)
	assert.Equal(t, "weather_summer", tpl.ID)

	april := time.Date(2026, time.April, 3, 9, 0, 0, 0, time.UTC)
	tpl, ok = r.FirstMatch(WeatherPrefix, models.TriggerContext{LocalNow: april})
	require.True(t, ok)
	assert.Equal(t, "weather_general", tpl.ID)
}
