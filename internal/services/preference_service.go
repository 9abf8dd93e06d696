package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/skinsociete/notification-engine/internal/models"
)

type PreferenceService struct {
	store     PreferenceStore
	clock     Clock
	defaultTZ string
}

func NewPreferenceService(store PreferenceStore, clock Clock, defaultTZ string) *PreferenceService {
	return &PreferenceService{store: store, clock: clock, defaultTZ: defaultTZ}
}

// GetPreferences returns the user's preferences, creating defaults on first access.
func (s *PreferenceService) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	defaults := models.DefaultPreference(userID, s.defaultTZ)
	now := s.clock.Now()
	defaults.CreatedAt = now
	defaults.UpdatedAt = now
	pref, err := s.store.GetOrCreate(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return pref, nil
}

// UpdatePreferences applies a partial update. Device tokens are not editable here.
func (s *PreferenceService) UpdatePreferences(ctx context.Context, userID string, patch models.PreferencePatch) (*models.NotificationPreference, error) {
	pref, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := pref.Apply(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	if (pref.QuietHoursStart == "") != (pref.QuietHoursEnd == "") {
		return nil, fmt.Errorf("%w: quiet_hours_start and quiet_hours_end must be set together", models.ErrInvalidRequest)
	}
	pref.UpdatedAt = s.clock.Now()
	if err := s.store.SavePreference(ctx, pref); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}
	return pref, nil
}

// RegisterDevice adds a push token to the platform's list unless already present.
func (s *PreferenceService) RegisterDevice(ctx context.Context, userID, token string, platform models.Platform) (*models.NotificationPreference, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: device token is required", models.ErrInvalidRequest)
	}
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: unsupported platform %q", models.ErrInvalidRequest, platform)
	}
	if _, err := s.GetPreferences(ctx, userID); err != nil {
		return nil, err
	}
	pref, err := s.store.AddToken(ctx, userID, platform, token)
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	return pref, nil
}
