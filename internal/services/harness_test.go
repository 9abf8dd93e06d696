package services_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/push"
	"github.com/skinsociete/notification-engine/internal/services"
	"github.com/skinsociete/notification-engine/internal/services/servicestest"
	"github.com/skinsociete/notification-engine/internal/templates"
)

// Tuesday 2026-03-10 12:00 UTC.
var baseNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	clock      *servicestest.Clock
	users      *servicestest.Users
	behaviors  *servicestest.Behaviors
	prefs      *servicestest.Preferences
	sent       *servicestest.Sent
	scheduled  *servicestest.Scheduled
	push       *servicestest.Push
	registry   *templates.Registry
	gate       *services.PolicyGate
	resolver   *services.Resolver
	dispatcher *services.Dispatcher
	delivery   *services.DeliveryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     servicestest.NewClock(baseNow),
		users:     servicestest.NewUsers(),
		behaviors: servicestest.NewBehaviors(),
		prefs:     servicestest.NewPreferences(),
		sent:      servicestest.NewSent(),
		scheduled: servicestest.NewScheduled(),
		push:      &servicestest.Push{},
		registry:  templates.Default(),
	}
	h.gate = services.NewPolicyGate(h.sent, h.clock, time.UTC)
	h.resolver = services.NewResolver(h.users, h.behaviors, h.prefs, h.clock, time.UTC)
	h.dispatcher = services.NewDispatcher(h.resolver, h.gate, h.registry, h.push, h.sent, h.clock,
		push.EnvelopeOptions{AndroidChannelID: "skinsociete", AndroidColor: "#E8B4B8"}, time.UTC)
	h.delivery = services.NewDeliveryService(h.scheduled, h.dispatcher, h.registry, h.clock)
	return h
}

// addUser stores a user with default preferences in tz and the given Android tokens.
func (h *harness) addUser(id, firstName, tz string, fcm ...string) *models.NotificationPreference {
	h.users.Put(models.User{ID: id, FirstName: firstName, Tier: models.TierGlowGetter})
	p := models.DefaultPreference(id, tz)
	p.FCMTokens = fcm
	h.prefs.Put(*p)
	return p
}

// deliveredAt logs a delivered dispatch for userID at t.
func (h *harness) deliveredAt(t *testing.T, userID, dispatchID string, at time.Time) {
	t.Helper()
	err := h.sent.InsertSent(t.Context(), &models.SentNotification{
		DispatchID: dispatchID,
		UserID:     userID,
		TemplateID: "any",
		Delivered:  true,
		SentAt:     at,
	})
	if err != nil {
		t.Fatal(err)
	}
}
