package services

import (
	"context"
	"fmt"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
)

// Resolver turns a declarative Target into concrete recipients joined with
// their behavior record and preferences.
type Resolver struct {
	users     UserStore
	behaviors BehaviorStore
	prefs     PreferenceStore
	clock     Clock
	fallback  *time.Location
}

func NewResolver(users UserStore, behaviors BehaviorStore, prefs PreferenceStore, clock Clock, fallback *time.Location) *Resolver {
	return &Resolver{users: users, behaviors: behaviors, prefs: prefs, clock: clock, fallback: fallback}
}

// Resolve returns every user matching the identity mode and all set filters.
// Unknown ids are skipped.
func (r *Resolver) Resolve(ctx context.Context, target models.Target) ([]models.Recipient, error) {
	mode, err := target.Mode()
	if err != nil {
		return nil, err
	}

	q := UserQuery{
		Tiers:        target.Tiers,
		SkinTypes:    target.SkinTypes,
		SkinConcerns: target.SkinConcerns,
	}
	switch mode {
	case models.TargetSingle:
		q.IDs = []string{target.UserID}
	case models.TargetList:
		q.IDs = target.UserIDs
	}
	now := r.clock.Now()
	if target.LastActiveWithinHours > 0 {
		since := now.Add(-time.Duration(target.LastActiveWithinHours) * time.Hour)
		q.ActiveSince = &since
	}

	users, err := r.users.FindUsers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	behaviors, err := r.behaviors.GetBehaviors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load behavior records: %w", err)
	}
	prefs, err := r.prefs.GetPreferences(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	out := make([]models.Recipient, 0, len(users))
	for _, u := range users {
		rc := models.Recipient{User: u, Behavior: behaviors[u.ID], Preference: prefs[u.ID]}
		if target.HasNotCompletedRoutineToday {
			today := StartOfDay(now, rc.Preference.Location(r.fallback))
			if rc.Behavior.RoutineDoneSince(today) {
				continue
			}
		}
		out = append(out, rc)
	}
	return out, nil
}
