package services_test

import (
	"testing"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recipientIDs(rs []models.Recipient) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.User.ID
	}
	return out
}

func seedAudience(h *harness) {
	h.users.Put(models.User{ID: "ana", Tier: models.TierGlowGetter, SkinType: "dry", SkinConcerns: []string{"acne"}, LastActiveAt: baseNow.Add(-2 * time.Hour)})
	h.users.Put(models.User{ID: "ben", Tier: models.TierSkincareGuru, SkinType: "oily", LastActiveAt: baseNow.Add(-72 * time.Hour)})
	h.users.Put(models.User{ID: "cleo", Tier: models.TierSkincareGuru, SkinType: "dry", SkinConcerns: []string{"redness", "acne"}, LastActiveAt: baseNow.Add(-time.Hour)})

	morning := baseNow.Add(-3 * time.Hour)
	h.behaviors.Put(models.UserBehaviorRecord{UserID: "cleo", LastRoutineAt: &morning})
	yesterday := baseNow.Add(-20 * time.Hour)
	h.behaviors.Put(models.UserBehaviorRecord{UserID: "ana", LastRoutineAt: &yesterday})
}

func TestResolveModes(t *testing.T) {
	h := newHarness(t)
	seedAudience(h)
	ctx := t.Context()

	rs, err := h.resolver.Resolve(ctx, models.Target{UserID: "ben"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ben"}, recipientIDs(rs))

	rs, err = h.resolver.Resolve(ctx, models.Target{UserIDs: []string{"ana", "cleo", "ghost"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "cleo"}, recipientIDs(rs))

	rs, err = h.resolver.Resolve(ctx, models.Target{})
	require.NoError(t, err)
	assert.Len(t, rs, 3)

	_, err = h.resolver.Resolve(ctx, models.Target{UserID: "ana", UserIDs: []string{"ben"}})
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
}

func TestResolveFiltersAreANDed(t *testing.T) {
	h := newHarness(t)
	seedAudience(h)
	ctx := t.Context()

	tests := []struct {
		name   string
		target models.Target
		want   []string
	}{
		{"tier", models.Target{Tiers: []string{models.TierSkincareGuru}}, []string{"ben", "cleo"}},
		{"tier and skin type", models.Target{Tiers: []string{models.TierSkincareGuru}, SkinTypes: []string{"dry"}}, []string{"cleo"}},
		{"concern", models.Target{SkinConcerns: []string{"acne"}}, []string{"ana", "cleo"}},
		{"recently active", models.Target{LastActiveWithinHours: 24}, []string{"ana", "cleo"}},
		{"no routine today", models.Target{HasNotCompletedRoutineToday: true}, []string{"ana", "ben"}},
		{"list with filter", models.Target{UserIDs: []string{"ana", "ben"}, SkinTypes: []string{"oily"}}, []string{"ben"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := h.resolver.Resolve(ctx, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, recipientIDs(rs))
		})
	}
}

func TestResolveJoinsBehaviorAndPreferences(t *testing.T) {
	h := newHarness(t)
	h.addUser("ana", "Ana", "UTC", "tok")
	h.behaviors.Put(models.UserBehaviorRecord{UserID: "ana", MorningRoutineStreak: 4})

	rs, err := h.resolver.Resolve(t.Context(), models.Target{UserID: "ana"})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.NotNil(t, rs[0].Behavior)
	require.NotNil(t, rs[0].Preference)
	assert.Equal(t, 4, rs[0].Behavior.MorningRoutineStreak)
	assert.Equal(t, []string{"tok"}, rs[0].Preference.FCMTokens)
}
