// Package push delivers rendered notifications to device tokens over FCM and APNs.
package push

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/skinsociete/notification-engine/internal/models"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrInvalidToken means the transport rejected the token as unknown or expired.
	ErrInvalidToken = errors.New("invalid device token")
	// ErrPlatformNotConfigured means no sender is registered for the platform.
	ErrPlatformNotConfigured = errors.New("push platform not configured")
)

// Sender delivers one envelope to one device token and returns the transport's delivery id.
type Sender interface {
	Send(ctx context.Context, platform models.Platform, token string, env Envelope) (string, error)
}

// Envelope is the platform-specific wire shape of a rendered message.
type Envelope struct {
	Title    string
	Body     string
	DeepLink string
	Data     map[string]string
	Actions  []models.ActionButton
	Android  *AndroidOptions
	IOS      *IOSOptions
}

type AndroidOptions struct {
	Priority  string
	ChannelID string
	Color     string
}

type IOSOptions struct {
	Badge          int
	Sound          string
	MutableContent bool
	Category       string
}

// EnvelopeOptions carries the brand settings applied to Android envelopes.
type EnvelopeOptions struct {
	AndroidChannelID string
	AndroidColor     string
}

// BuildEnvelope maps a rendered message onto the platform envelope.
// Android: high priority, named channel, brand color, action buttons in data.
// iOS: badge 1, default sound, mutable content, template id as category.
func BuildEnvelope(platform models.Platform, msg models.RenderedMessage, opts EnvelopeOptions) Envelope {
	env := Envelope{
		Title:    msg.Title,
		Body:     msg.Body,
		DeepLink: msg.DeepLink,
		Actions:  msg.Actions,
		Data: map[string]string{
			"template_id": msg.TemplateID,
			"category":    string(msg.Category),
		},
	}
	if msg.DeepLink != "" {
		env.Data["deep_link"] = msg.DeepLink
	}
	if len(msg.Actions) > 0 {
		if b, err := json.Marshal(msg.Actions); err == nil {
			env.Data["actions"] = string(b)
		}
	}

	switch platform {
	case models.PlatformAndroid:
		env.Android = &AndroidOptions{
			Priority:  "high",
			ChannelID: opts.AndroidChannelID,
			Color:     opts.AndroidColor,
		}
	case models.PlatformIOS:
		env.IOS = &IOSOptions{
			Badge:          1,
			Sound:          "default",
			MutableContent: true,
			Category:       msg.TemplateID,
		}
	}
	return env
}

// Fingerprint is a short stable digest of a device token, safe to log.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
