package models

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventKind names a domain event the behavior tracker understands.
type EventKind string

const (
	EventLogin              EventKind = "login"
	EventRoutineCompleted   EventKind = "routine_completed"
	EventBookingCreated     EventKind = "booking_created"
	EventPurchase           EventKind = "purchase"
	EventPostCreated        EventKind = "post_created"
	EventPointsEarned       EventKind = "points_earned"
	EventNotificationOpened EventKind = "notification_opened"
	EventOptOutChanged      EventKind = "notification_opt_out"
)

var ErrInvalidEvent = errors.New("invalid event")

// BehaviorEvent is what upstream systems (checkout, booking, feed, auth) send to the tracker.
type BehaviorEvent struct {
	EventID    string       `json:"event_id,omitempty"`
	UserID     string       `json:"user_id"`
	Kind       EventKind    `json:"kind"`
	Payload    EventPayload `json:"payload"`
	OccurredAt time.Time    `json:"occurred_at,omitempty"`
}

// EventPayload carries the kind-specific fields. Unused fields stay zero.
type EventPayload struct {
	RoutineType   RoutineType `json:"routine_type,omitempty"`
	Categories    []string    `json:"categories,omitempty"`
	ProductIDs    []string    `json:"product_ids,omitempty"`
	Points        int         `json:"points,omitempty"`
	AppointmentAt *time.Time  `json:"appointment_at,omitempty"`
	SalonName     string      `json:"salon_name,omitempty"`
	ServiceName   string      `json:"service_name,omitempty"`
	DeviceType    string      `json:"device_type,omitempty"`
	OptOut        *bool       `json:"opt_out,omitempty"`
}

// Validate checks the fields each kind depends on.
func (e *BehaviorEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}
	switch e.Kind {
	case EventLogin, EventBookingCreated, EventPostCreated, EventNotificationOpened:
	case EventRoutineCompleted:
		if _, err := ParseRoutineType(string(e.Payload.RoutineType)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	case EventPurchase:
		if e.Payload.Points < 0 {
			return fmt.Errorf("%w: negative points", ErrInvalidEvent)
		}
	case EventPointsEarned:
		if e.Payload.Points <= 0 {
			return fmt.Errorf("%w: points must be positive", ErrInvalidEvent)
		}
	case EventOptOutChanged:
		if e.Payload.OptOut == nil {
			return fmt.Errorf("%w: missing opt_out", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// ProcessedEvent marks an event ID as applied so replays become no-ops.
type ProcessedEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID     string             `bson:"event_id" json:"event_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	Kind        EventKind          `bson:"kind" json:"kind"`
	ProcessedAt time.Time          `bson:"processed_at" json:"processed_at"`
}
