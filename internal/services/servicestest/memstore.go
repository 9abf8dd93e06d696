// Package servicestest provides in-memory stores and fakes for exercising
// services without MongoDB or push transports.
package servicestest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
	"github.com/skinsociete/notification-engine/internal/push"
	"github.com/skinsociete/notification-engine/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Clock is a settable services.Clock.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Users is an in-memory services.UserStore.
type Users struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewUsers(list ...models.User) *Users {
	s := &Users{users: map[string]*models.User{}}
	for i := range list {
		u := list[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *Users) Put(u models.User) {
	s.mu.Lock()
	s.users[u.ID] = &u
	s.mu.Unlock()
}

func (s *Users) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Users) FindUsers(_ context.Context, q services.UserQuery) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if len(q.IDs) > 0 && !slices.Contains(q.IDs, u.ID) {
			continue
		}
		if len(q.Tiers) > 0 && !slices.Contains(q.Tiers, u.Tier) {
			continue
		}
		if len(q.SkinTypes) > 0 && !slices.Contains(q.SkinTypes, u.SkinType) {
			continue
		}
		if len(q.SkinConcerns) > 0 && !slices.ContainsFunc(u.SkinConcerns, func(c string) bool { return slices.Contains(q.SkinConcerns, c) }) {
			continue
		}
		if q.ActiveSince != nil && u.LastActiveAt.Before(*q.ActiveSince) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Users) AddPoints(_ context.Context, id string, points int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	u.TotalPoints += points
	cp := *u
	return &cp, nil
}

func (s *Users) UpdateTier(_ context.Context, id, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Tier != from {
		return false, nil
	}
	u.Tier = to
	return true, nil
}

func (s *Users) TouchLastActive(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastActiveAt = at
	}
	return nil
}

// Behaviors is an in-memory services.BehaviorStore.
type Behaviors struct {
	mu   sync.Mutex
	recs map[string]*models.UserBehaviorRecord
	// Err, when set, is returned by every mutation.
	Err error
}

func NewBehaviors() *Behaviors {
	return &Behaviors{recs: map[string]*models.UserBehaviorRecord{}}
}

func (s *Behaviors) Put(r models.UserBehaviorRecord) {
	s.mu.Lock()
	s.recs[r.UserID] = &r
	s.mu.Unlock()
}

func (s *Behaviors) get(userID string) *models.UserBehaviorRecord {
	r, ok := s.recs[userID]
	if !ok {
		r = &models.UserBehaviorRecord{UserID: userID}
		s.recs[userID] = r
	}
	return r
}

func (s *Behaviors) GetBehavior(_ context.Context, userID string) (*models.UserBehaviorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Behaviors) GetBehaviors(_ context.Context, userIDs []string) (map[string]*models.UserBehaviorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*models.UserBehaviorRecord{}
	for _, id := range userIDs {
		if r, ok := s.recs[id]; ok {
			cp := *r
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *Behaviors) FindBehaviors(_ context.Context, q services.BehaviorQuery) ([]models.UserBehaviorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserBehaviorRecord
	for _, r := range s.recs {
		if len(q.UserIDs) > 0 && !slices.Contains(q.UserIDs, r.UserID) {
			continue
		}
		if q.LastLoginBefore != nil && (r.LastLoginAt == nil || !r.LastLoginAt.Before(*q.LastLoginBefore)) {
			continue
		}
		if q.LastBookingBefore != nil && (r.LastBookingAt == nil || !r.LastBookingAt.Before(*q.LastBookingBefore)) {
			continue
		}
		if q.MinStreak > 0 && r.BestStreak() < q.MinStreak {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Behaviors) SwapLastLogin(_ context.Context, userID string, at time.Time, deviceType string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r := s.get(userID)
	prev := r.LastLoginAt
	r.LastLoginAt = later(r.LastLoginAt, at)
	if deviceType != "" {
		r.DeviceType = deviceType
	}
	return prev, nil
}

func (s *Behaviors) IncrementRoutine(_ context.Context, userID string, rt models.RoutineType, at time.Time, reset bool) (*models.UserBehaviorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r := s.get(userID)
	streak := &r.MorningRoutineStreak
	if rt == models.RoutineEvening {
		streak = &r.EveningRoutineStreak
		r.LastEveningRoutineAt = later(r.LastEveningRoutineAt, at)
	} else {
		r.LastMorningRoutineAt = later(r.LastMorningRoutineAt, at)
	}
	if reset {
		*streak = 1
	} else {
		*streak++
	}
	r.LastRoutineAt = later(r.LastRoutineAt, at)
	r.TotalRoutinesCompleted++
	cp := *r
	return &cp, nil
}

func (s *Behaviors) MarkActivity(_ context.Context, userID string, activity services.Activity, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r := s.get(userID)
	switch activity {
	case services.ActivityBooking:
		r.LastBookingAt = later(r.LastBookingAt, at)
	case services.ActivityPurchase:
		r.LastPurchaseAt = later(r.LastPurchaseAt, at)
	case services.ActivityPost:
		r.LastPostAt = later(r.LastPostAt, at)
	}
	return nil
}

// later mirrors the stores' $max on timestamp fields.
func later(cur *time.Time, at time.Time) *time.Time {
	if cur != nil && !at.After(*cur) {
		return cur
	}
	return &at
}

func (s *Behaviors) AddPreferredCategories(_ context.Context, userID string, categories []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r := s.get(userID)
	for _, c := range categories {
		if !slices.Contains(r.PreferredCategories, c) {
			r.PreferredCategories = append(r.PreferredCategories, c)
		}
	}
	return nil
}

func (s *Behaviors) BlendResponse(_ context.Context, userID string, sample, alpha float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r := s.get(userID)
	r.AvgNotificationResponse = r.AvgNotificationResponse*(1-alpha) + sample*alpha
	return nil
}

func (s *Behaviors) SetOptOut(_ context.Context, userID string, optOut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.get(userID).NotificationOptOut = optOut
	return nil
}

// Preferences is an in-memory services.PreferenceStore.
type Preferences struct {
	mu    sync.Mutex
	prefs map[string]*models.NotificationPreference
}

func NewPreferences() *Preferences {
	return &Preferences{prefs: map[string]*models.NotificationPreference{}}
}

func clonePref(p *models.NotificationPreference) *models.NotificationPreference {
	cp := *p
	cp.FCMTokens = slices.Clone(p.FCMTokens)
	cp.APNSTokens = slices.Clone(p.APNSTokens)
	return &cp
}

func (s *Preferences) Put(p models.NotificationPreference) {
	s.mu.Lock()
	s.prefs[p.UserID] = clonePref(&p)
	s.mu.Unlock()
}

func (s *Preferences) GetPreferences(_ context.Context, userIDs []string) (map[string]*models.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*models.NotificationPreference{}
	for _, id := range userIDs {
		if p, ok := s.prefs[id]; ok {
			out[id] = clonePref(p)
		}
	}
	return out, nil
}

func (s *Preferences) GetOrCreate(_ context.Context, defaults *models.NotificationPreference) (*models.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[defaults.UserID]
	if !ok {
		p = clonePref(defaults)
		p.ID = primitive.NewObjectID()
		s.prefs[defaults.UserID] = p
	}
	return clonePref(p), nil
}

func (s *Preferences) SavePreference(_ context.Context, pref *models.NotificationPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.prefs[pref.UserID]
	if !ok {
		return models.ErrNotFound
	}
	next := clonePref(pref)
	next.FCMTokens = cur.FCMTokens
	next.APNSTokens = cur.APNSTokens
	s.prefs[pref.UserID] = next
	return nil
}

func (s *Preferences) AddToken(_ context.Context, userID string, platform models.Platform, token string) (*models.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if platform == models.PlatformIOS {
		if !slices.Contains(p.APNSTokens, token) {
			p.APNSTokens = append(p.APNSTokens, token)
		}
	} else if !slices.Contains(p.FCMTokens, token) {
		p.FCMTokens = append(p.FCMTokens, token)
	}
	return clonePref(p), nil
}

func (s *Preferences) Timezones(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.prefs {
		if !slices.Contains(out, p.Timezone) {
			out = append(out, p.Timezone)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Preferences) FindByReminderTime(_ context.Context, timezone string, rt models.RoutineType, hhmm string) ([]models.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NotificationPreference
	for _, p := range s.prefs {
		at := p.MorningTime
		if rt == models.RoutineEvening {
			at = p.EveningTime
		}
		if p.Timezone == timezone && at == hhmm {
			out = append(out, *clonePref(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Preferences) FindByTimezone(_ context.Context, timezone string) ([]models.NotificationPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NotificationPreference
	for _, p := range s.prefs {
		if p.Timezone == timezone {
			out = append(out, *clonePref(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Sent is an in-memory services.SentStore.
type Sent struct {
	mu   sync.Mutex
	rows []models.SentNotification
}

func NewSent() *Sent { return &Sent{} }

func (s *Sent) Rows() []models.SentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}

func (s *Sent) InsertSent(_ context.Context, n *models.SentNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	s.rows = append(s.rows, *n)
	return nil
}

func (s *Sent) CountDispatchesSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range s.rows {
		if r.UserID == userID && r.Delivered && !r.SentAt.Before(since) {
			seen[r.DispatchID] = true
		}
	}
	return len(seen), nil
}

func (s *Sent) LastSent(_ context.Context, userID, templateID string) (*models.SentNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *models.SentNotification
	for i := range s.rows {
		r := s.rows[i]
		if r.UserID == userID && r.TemplateID == templateID && (last == nil || r.SentAt.After(last.SentAt)) {
			last = &r
		}
	}
	return last, nil
}

func (s *Sent) ListForUser(_ context.Context, userID string, limit int) ([]models.SentNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SentNotification
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if s.rows[i].UserID == userID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

func (s *Sent) MarkOpened(_ context.Context, userID string, id primitive.ObjectID, action string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == userID {
			s.rows[i].Opened = true
			s.rows[i].OpenedAt = &at
			s.rows[i].ActionTaken = action
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *Sent) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.SentNotification
	var n int64
	for _, r := range s.rows {
		if r.SentAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}

// Scheduled is an in-memory services.ScheduledStore.
type Scheduled struct {
	mu   sync.Mutex
	rows map[primitive.ObjectID]*models.ScheduledNotification
}

func NewScheduled() *Scheduled {
	return &Scheduled{rows: map[primitive.ObjectID]*models.ScheduledNotification{}}
}

func (s *Scheduled) All() []models.ScheduledNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledNotification
	for _, r := range s.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out
}

func (s *Scheduled) CreateScheduled(_ context.Context, n *models.ScheduledNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	cp := *n
	s.rows[n.ID] = &cp
	return nil
}

func (s *Scheduled) GetScheduled(_ context.Context, id primitive.ObjectID) (*models.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Scheduled) CancelScheduled(_ context.Context, id primitive.ObjectID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	r.Status = models.StatusCancelled
	r.UpdatedAt = at
	return true, nil
}

func (s *Scheduled) ClaimDue(_ context.Context, now time.Time, claimID string) (*models.ScheduledNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due *models.ScheduledNotification
	for _, r := range s.rows {
		if r.Status != models.StatusPending || r.ScheduledFor.After(now) || r.LastSweepID == claimID {
			continue
		}
		if due == nil || r.ScheduledFor.Before(due.ScheduledFor) {
			due = r
		}
	}
	if due == nil {
		return nil, nil
	}
	due.Status = models.StatusProcessing
	due.ClaimID = claimID
	due.LastSweepID = claimID
	due.ClaimedAt = &now
	cp := *due
	return &cp, nil
}

func (s *Scheduled) ResolveClaim(_ context.Context, id primitive.ObjectID, claimID string, res services.ScheduledResolution, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != models.StatusProcessing || r.ClaimID != claimID {
		return models.ErrNotFound
	}
	r.Status = res.Status
	r.AttemptCount = res.AttemptCount
	r.LastAttemptAt = res.LastAttemptAt
	r.ErrorMessage = res.ErrorMessage
	r.ClaimID = ""
	r.ClaimedAt = nil
	r.UpdatedAt = at
	return nil
}

func (s *Scheduled) ReleaseStaleClaims(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if r.Status == models.StatusProcessing && r.ClaimedAt != nil && r.ClaimedAt.Before(cutoff) {
			r.Status = models.StatusPending
			r.ClaimID = ""
			r.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *Scheduled) DeleteTerminalOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.rows {
		if r.Status.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Events is an in-memory services.EventLog.
type Events struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewEvents() *Events { return &Events{seen: map[string]bool{}} }

func (s *Events) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[eventID], nil
}

func (s *Events) MarkProcessed(_ context.Context, ev *models.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[ev.EventID] = true
	return nil
}

// Products is an in-memory services.ProductStore.
type Products struct {
	List []models.Product
}

func (s *Products) FeaturedInCategories(_ context.Context, categories, excludeIDs []string) (*models.Product, error) {
	for i := range s.List {
		p := s.List[i]
		if p.Featured && slices.Contains(categories, p.Category) && !slices.Contains(excludeIDs, p.ID) {
			return &p, nil
		}
	}
	return nil, nil
}

// PushCall is one recorded push.Sender invocation.
type PushCall struct {
	Platform models.Platform
	Token    string
	Envelope push.Envelope
}

// Push records sends. Tokens listed in Fail return the mapped error.
type Push struct {
	mu    sync.Mutex
	Calls []PushCall
	Fail  map[string]error
}

func (p *Push) Send(_ context.Context, platform models.Platform, token string, env push.Envelope) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, PushCall{Platform: platform, Token: token, Envelope: env})
	if err, ok := p.Fail[token]; ok {
		return "", err
	}
	return "msg-" + token, nil
}

func (p *Push) Sent() []PushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.Calls)
}

// Notifier records notification requests.
type Notifier struct {
	mu       sync.Mutex
	Requests []services.NotifyRequest
}

func (n *Notifier) Notify(_ context.Context, req services.NotifyRequest) {
	n.mu.Lock()
	n.Requests = append(n.Requests, req)
	n.mu.Unlock()
}

// ByTemplate returns the recorded requests for one template.
func (n *Notifier) ByTemplate(templateID string) []services.NotifyRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []services.NotifyRequest
	for _, r := range n.Requests {
		if r.TemplateID == templateID {
			out = append(out, r)
		}
	}
	return out
}
