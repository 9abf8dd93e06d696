package models

import "time"

// Category groups templates; each category maps onto one preference toggle.
type Category string

const (
	CategoryRoutine      Category = "routine"
	CategoryBehavioral   Category = "behavioral"
	CategoryGamification Category = "gamification"
	CategoryBooking      Category = "booking"
	CategoryEducational  Category = "educational"
	CategorySocial       Category = "social"
)

// Priority orders sends; URGENT bypasses the policy gate entirely.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ActionButton struct {
	ID       string `bson:"id" json:"id"`
	Text     string `bson:"text" json:"text"`
	DeepLink string `bson:"deep_link,omitempty" json:"deep_link,omitempty"`
}

// TriggerContext is the state a template's trigger matcher is evaluated against.
type TriggerContext struct {
	User     *User
	Behavior *UserBehaviorRecord
	LocalNow time.Time
}

// TriggerMatcher decides whether a template applies to a user.
type TriggerMatcher func(TriggerContext) bool

// NotificationTemplate is a placeholder-parameterized message definition.
type NotificationTemplate struct {
	ID        string         `bson:"_id" json:"id"`
	Category  Category       `bson:"category" json:"category"`
	Priority  Priority       `bson:"priority" json:"priority"`
	Title     string         `bson:"title" json:"title"`
	Body      string         `bson:"body" json:"body"`
	DeepLink  string         `bson:"deep_link,omitempty" json:"deep_link,omitempty"`
	Actions   []ActionButton `bson:"actions,omitempty" json:"actions,omitempty"`
	Trigger   TriggerMatcher `bson:"-" json:"-"`
	UpdatedAt time.Time      `bson:"updated_at" json:"updated_at"`
}

// Matches evaluates the trigger condition; templates without one always match.
func (t *NotificationTemplate) Matches(tc TriggerContext) bool {
	if t.Trigger == nil {
		return true
	}
	return t.Trigger(tc)
}

// RenderedMessage is a template with every known placeholder substituted.
type RenderedMessage struct {
	TemplateID string         `json:"template_id"`
	Category   Category       `json:"category"`
	Priority   Priority       `json:"priority"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	DeepLink   string         `json:"deep_link,omitempty"`
	Actions    []ActionButton `json:"actions,omitempty"`
}
