// Package templates holds the static catalog of notification templates.
//
// The catalog is seeded into the store at startup with an idempotent
// upsert-by-id; at runtime templates are read-only and served from memory.
// Trigger matchers are code, so they never leave the process.
package templates

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/skinsociete/notification-engine/internal/models"
)

var ErrTemplateNotFound = errors.New("template not found")

// Registry is an immutable id -> template index.
type Registry struct {
	byID map[string]*models.NotificationTemplate
	ids  []string
}

// NewRegistry indexes the given templates. Duplicate or malformed entries are rejected.
func NewRegistry(list []models.NotificationTemplate) (*Registry, error) {
	r := &Registry{byID: make(map[string]*models.NotificationTemplate, len(list))}
	for i := range list {
		t := list[i]
		if t.ID == "" || t.Title == "" || t.Body == "" {
			return nil, fmt.Errorf("template #%d: id, title and body are required", i)
		}
		if !t.Priority.Valid() {
			return nil, fmt.Errorf("template %s: invalid priority %q", t.ID, t.Priority)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("template %s: duplicate id", t.ID)
		}
		r.byID[t.ID] = &t
		r.ids = append(r.ids, t.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Default returns the registry built from the built-in catalog.
func Default() *Registry {
	r, err := NewRegistry(Catalog())
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns a template by id.
func (r *Registry) Get(id string) (*models.NotificationTemplate, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// All returns every template ordered by id.
func (r *Registry) All() []*models.NotificationTemplate {
	out := make([]*models.NotificationTemplate, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// FirstMatch returns the first template, in id order, whose id has the prefix
// and whose trigger matches. Templates with a nil trigger act as fallbacks and
// are only returned when nothing more specific matched.
func (r *Registry) FirstMatch(prefix string, tc models.TriggerContext) (*models.NotificationTemplate, bool) {
	var fallback *models.NotificationTemplate
	for _, id := range r.ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		t := r.byID[id]
		if t.Trigger == nil {
			if fallback == nil {
				fallback = t
			}
			continue
		}
		if t.Matches(tc) {
			return t, true
		}
	}
	return fallback, fallback != nil
}
