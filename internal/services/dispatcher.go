package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/push"
	"github.com/skinsociete/notification-engine/internal/templates"
)

// ErrNoDeviceTokens is reported for an allowed recipient with nothing to push to.
var ErrNoDeviceTokens = errors.New("no device tokens registered")

// CustomTemplateID names ad hoc messages sent without a catalog template.
const CustomTemplateID = "custom"

// DispatchRequest describes one send. Without TemplateID the message is built
// from Vars["title"], Vars["body"] and the optional Vars["deepLink"].
type DispatchRequest struct {
	Target     models.Target
	TemplateID string
	Vars       map[string]string
	Priority   models.Priority
	Category   models.Category
}

// DeliveryResult is the outcome for one recipient device, or for a recipient
// that never reached a device.
type DeliveryResult struct {
	UserID     string          `json:"user_id"`
	DispatchID string          `json:"dispatch_id,omitempty"`
	Allowed    bool            `json:"allowed"`
	Reason     DenyReason      `json:"reason,omitempty"`
	Platform   models.Platform `json:"platform,omitempty"`
	Token      string          `json:"token,omitempty"`
	Delivered  bool            `json:"delivered"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Dispatcher resolves targets, applies the policy gate, renders templates and
// pushes to every registered device of each allowed recipient.
type Dispatcher struct {
	resolver *Resolver
	gate     *PolicyGate
	registry *templates.Registry
	sender   push.Sender
	sent     SentStore
	clock    Clock
	envOpts  push.EnvelopeOptions
	fallback *time.Location
}

func NewDispatcher(resolver *Resolver, gate *PolicyGate, registry *templates.Registry, sender push.Sender, sent SentStore, clock Clock, envOpts push.EnvelopeOptions, fallback *time.Location) *Dispatcher {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Dispatcher{
		resolver: resolver,
		gate:     gate,
		registry: registry,
		sender:   sender,
		sent:     sent,
		clock:    clock,
		envOpts:  envOpts,
		fallback: fallback,
	}
}

// Send delivers the request and returns one result per attempted device plus
// one per recipient that was suppressed or had no devices. Failures for one
// recipient or device never abort the others and are not retried here.
func (d *Dispatcher) Send(ctx context.Context, req DispatchRequest) ([]DeliveryResult, error) {
	tpl, err := d.template(req)
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = tpl.Priority
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: invalid priority %q", models.ErrInvalidRequest, priority)
	}

	recipients, err := d.resolver.Resolve(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	var results []DeliveryResult
	for i := range recipients {
		results = append(results, d.sendOne(ctx, &recipients[i], tpl, req.Vars, priority)...)
	}
	return results, nil
}

func (d *Dispatcher) template(req DispatchRequest) (*models.NotificationTemplate, error) {
	if req.TemplateID != "" {
		return d.registry.Get(req.TemplateID)
	}
	if req.Vars["title"] == "" || req.Vars["body"] == "" {
		return nil, fmt.Errorf("%w: custom message needs title and body", templates.ErrTemplateNotFound)
	}
	category := req.Category
	if category == "" {
		category = models.CategoryBehavioral
	}
	return &models.NotificationTemplate{
		ID:       CustomTemplateID,
		Category: category,
		Priority: models.PriorityNormal,
		Title:    req.Vars["title"],
		Body:     req.Vars["body"],
		DeepLink: req.Vars["deepLink"],
	}, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, rc *models.Recipient, tpl *models.NotificationTemplate, extra map[string]string, priority models.Priority) []DeliveryResult {
	uid := rc.User.ID
	log := logrus.WithFields(logrus.Fields{"user_id": uid, "template_id": tpl.ID})

	pref := rc.Preference
	if pref == nil {
		pref = models.DefaultPreference(uid, d.fallback.String())
	}

	decision, err := d.gate.Evaluate(ctx, rc.Behavior, pref, priority, tpl.Category)
	if err != nil {
		log.WithError(err).Warn("Policy check failed")
		return []DeliveryResult{{UserID: uid, Error: err.Error()}}
	}
	if !decision.Allowed {
		log.WithField("reason", decision.Reason).Debug("Notification suppressed")
		return []DeliveryResult{{UserID: uid, Reason: decision.Reason}}
	}

	msg := Render(tpl, d.varsFor(rc, extra))
	msg.Priority = priority
	dispatchID := uuid.NewString()

	var results []DeliveryResult
	for _, platform := range []models.Platform{models.PlatformAndroid, models.PlatformIOS} {
		for _, token := range pref.Tokens(platform) {
			results = append(results, d.deliver(ctx, uid, dispatchID, platform, token, msg))
		}
	}
	if len(results) == 0 {
		return []DeliveryResult{{UserID: uid, DispatchID: dispatchID, Allowed: true, Error: ErrNoDeviceTokens.Error()}}
	}
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, uid, dispatchID string, platform models.Platform, token string, msg models.RenderedMessage) DeliveryResult {
	env := push.BuildEnvelope(platform, msg, d.envOpts)
	deliveryID, err := d.sender.Send(ctx, platform, token, env)

	row := &models.SentNotification{
		DispatchID:  dispatchID,
		UserID:      uid,
		TemplateID:  msg.TemplateID,
		Title:       msg.Title,
		Body:        msg.Body,
		DeepLink:    msg.DeepLink,
		Actions:     msg.Actions,
		Platform:    platform,
		DeviceToken: token,
		Delivered:   err == nil,
		DeliveryID:  deliveryID,
		SentAt:      d.clock.Now(),
	}
	res := DeliveryResult{
		UserID:     uid,
		DispatchID: dispatchID,
		Allowed:    true,
		Platform:   platform,
		Token:      push.Fingerprint(token),
		Delivered:  err == nil,
		DeliveryID: deliveryID,
	}
	if err != nil {
		row.Error = err.Error()
		res.Error = err.Error()
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":  uid,
			"platform": platform,
			"token":    push.Fingerprint(token),
		}).Warn("Push delivery failed")
	}
	if insErr := d.sent.InsertSent(ctx, row); insErr != nil {
		logrus.WithError(insErr).WithField("user_id", uid).Error("Failed to log sent notification")
	}
	return res
}

// varsFor derives per-recipient placeholders; request values take precedence.
func (d *Dispatcher) varsFor(rc *models.Recipient, extra map[string]string) map[string]string {
	vars := map[string]string{
		"firstName":   rc.User.DisplayName(),
		"totalPoints": strconv.Itoa(rc.User.TotalPoints),
		"tierName":    models.TierForPoints(rc.User.TotalPoints),
		"streak":      strconv.Itoa(rc.Behavior.BestStreak()),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}
