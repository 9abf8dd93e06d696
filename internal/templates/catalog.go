package templates

import (
	"slices"
	"time"

	"github.com/skinsociete/notification-engine/internal/models"
)

// Template ids referenced from code.
const (
	MorningRoutineReminder = "morning_routine_reminder"
	EveningRoutineReminder = "evening_routine_reminder"
	StreakProtection       = "streak_protection"
	StreakMilestone        = "streak_milestone"
	TierUpgrade            = "tier_upgrade"
	Reengagement           = "reengagement"
	InactiveReminder       = "inactive_reminder"
	ProductRecommendation  = "product_recommendation"
	BookingReminder        = "booking_reminder"
	AppointmentReminder    = "appointment_reminder"

	// Prefixes of template families chosen by trigger matchers.
	TipPrefix     = "tip_"
	WeatherPrefix = "weather_"
)

// Catalog returns the static template list seeded at deploy time.
func Catalog() []models.NotificationTemplate {
	return []models.NotificationTemplate{
		{
			ID:       MorningRoutineReminder,
			Category: models.CategoryRoutine,
			Priority: models.PriorityNormal,
			Title:    "Good morning, {firstName}!",
			Body:     "Time for your morning routine. Your skin will thank you.",
			DeepLink: "skinsociete://routine/morning",
			Actions: []models.ActionButton{
				{ID: "start", Text: "Start routine", DeepLink: "skinsociete://routine/morning/start"},
				{ID: "snooze", Text: "Remind me later"},
			},
		},
		{
			ID:       EveningRoutineReminder,
			Category: models.CategoryRoutine,
			Priority: models.PriorityNormal,
			Title:    "Evening glow-down, {firstName}",
			Body:     "Hi {firstName}, time for your routine!",
			DeepLink: "skinsociete://routine/evening",
			Actions: []models.ActionButton{
				{ID: "start", Text: "Start routine", DeepLink: "skinsociete://routine/evening/start"},
			},
		},
		{
			ID:       StreakProtection,
			Category: models.CategoryRoutine,
			Priority: models.PriorityHigh,
			Title:    "Don't lose your {streak}-day streak!",
			Body:     "{firstName}, log a routine before midnight to keep your streak alive.",
			DeepLink: "skinsociete://routine",
			Actions: []models.ActionButton{
				{ID: "log", Text: "Log routine", DeepLink: "skinsociete://routine/log"},
			},
		},
		{
			ID:       StreakMilestone,
			Category: models.CategoryGamification,
			Priority: models.PriorityNormal,
			Title:    "7 days strong, {firstName}!",
			Body:     "You completed your {routineType} routine 7 days in a row. Keep glowing!",
			DeepLink: "skinsociete://achievements",
		},
		{
			ID:       TierUpgrade,
			Category: models.CategoryGamification,
			Priority: models.PriorityHigh,
			Title:    "Welcome to {tierName}!",
			Body:     "Congratulations {firstName}, you reached {tierName} with {totalPoints} points.",
			DeepLink: "skinsociete://rewards",
			Actions: []models.ActionButton{
				{ID: "perks", Text: "See my perks", DeepLink: "skinsociete://rewards/{tierName}"},
			},
		},
		{
			ID:       Reengagement,
			Category: models.CategoryBehavioral,
			Priority: models.PriorityNormal,
			Title:    "Welcome back, {firstName}!",
			Body:     "It's been {daysAway} days. Here's what's new for your skin.",
			DeepLink: "skinsociete://home",
		},
		{
			ID:       InactiveReminder,
			Category: models.CategoryBehavioral,
			Priority: models.PriorityLow,
			Title:    "We miss you, {firstName}",
			Body:     "Your skin journey is waiting. Check in and pick up where you left off.",
			DeepLink: "skinsociete://home",
		},
		{
			ID:       ProductRecommendation,
			Category: models.CategoryBehavioral,
			Priority: models.PriorityLow,
			Title:    "Picked for you: {productName}",
			Body:     "Since you love {category}, we think you'll like {productName}.",
			DeepLink: "{productLink}",
			Actions: []models.ActionButton{
				{ID: "view", Text: "View product", DeepLink: "{productLink}"},
			},
		},
		{
			ID:       BookingReminder,
			Category: models.CategoryBooking,
			Priority: models.PriorityNormal,
			Title:    "Time for a treat, {firstName}?",
			Body:     "It's been a while since your last salon visit. Book your next facial today.",
			DeepLink: "skinsociete://salons",
			Actions: []models.ActionButton{
				{ID: "book", Text: "Book now", DeepLink: "skinsociete://salons/book"},
			},
		},
		{
			ID:       AppointmentReminder,
			Category: models.CategoryBooking,
			Priority: models.PriorityUrgent,
			Title:    "Your appointment is coming up",
			Body:     "{firstName}, your {serviceName} at {salonName} starts at {appointmentTime}.",
			DeepLink: "skinsociete://bookings",
		},
		{
			ID:       TipPrefix + "acne",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Tip of the day",
			Body:     "{firstName}, cleanse gently twice a day and avoid picking. Salicylic acid helps keep pores clear.",
			DeepLink: "skinsociete://learn/acne",
			Trigger:  hasConcern("acne"),
		},
		{
			ID:       TipPrefix + "dry",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Tip of the day",
			Body:     "{firstName}, apply moisturizer on damp skin to lock in hydration.",
			DeepLink: "skinsociete://learn/dry-skin",
			Trigger:  hasSkinType("dry"),
		},
		{
			ID:       TipPrefix + "general",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Tip of the day",
			Body:     "{firstName}, sunscreen is the best anti-aging product there is. Wear it daily.",
			DeepLink: "skinsociete://learn",
		},
		{
			ID:       TipPrefix + "oily",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Tip of the day",
			Body:     "{firstName}, oily skin still needs moisture. Try a lightweight gel moisturizer.",
			DeepLink: "skinsociete://learn/oily-skin",
			Trigger:  hasSkinType("oily"),
		},
		{
			ID:       TipPrefix + "sensitive",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Tip of the day",
			Body:     "{firstName}, patch test new products for 48 hours before adding them to your routine.",
			DeepLink: "skinsociete://learn/sensitive-skin",
			Trigger:  hasSkinType("sensitive"),
		},
		{
			ID:       WeatherPrefix + "general",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Skin forecast",
			Body:     "Changing seasons? Adjust your routine as the weather shifts, {firstName}.",
			DeepLink: "skinsociete://learn/seasons",
		},
		{
			ID:       WeatherPrefix + "summer",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Sunny days ahead",
			Body:     "{firstName}, reapply SPF every two hours when you're outdoors.",
			DeepLink: "skinsociete://learn/sun",
			Trigger:  inMonths(time.June, time.July, time.August),
		},
		{
			ID:       WeatherPrefix + "winter",
			Category: models.CategoryEducational,
			Priority: models.PriorityLow,
			Title:    "Cold weather alert",
			Body:     "{firstName}, cold air dries skin out. Switch to a richer cream and a gentle cleanser.",
			DeepLink: "skinsociete://learn/winter",
			Trigger:  inMonths(time.December, time.January, time.February),
		},
	}
}

func hasSkinType(skinType string) models.TriggerMatcher {
	return func(tc models.TriggerContext) bool {
		return tc.User != nil && tc.User.SkinType == skinType
	}
}

func hasConcern(concern string) models.TriggerMatcher {
	return func(tc models.TriggerContext) bool {
		return tc.User != nil && slices.Contains(tc.User.SkinConcerns, concern)
	}
}

func inMonths(months ...time.Month) models.TriggerMatcher {
	return func(tc models.TriggerContext) bool {
		return slices.Contains(months, tc.LocalNow.Month())
	}
}
