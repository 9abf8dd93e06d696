package push

import (
	"context"
	"fmt"

	"github.com/skinsociete/notification-engine/internal/models"
)

// PlatformSender delivers to a single platform.
type PlatformSender interface {
	Send(ctx context.Context, token string, env Envelope) (string, error)
}

// Router fans envelopes out to the sender registered for each platform.
type Router struct {
	senders map[models.Platform]PlatformSender
}

func NewRouter() *Router {
	return &Router{senders: map[models.Platform]PlatformSender{}}
}

// Register installs the sender for a platform, replacing any previous one.
func (r *Router) Register(platform models.Platform, s PlatformSender) *Router {
	r.senders[platform] = s
	return r
}

func (r *Router) Send(ctx context.Context, platform models.Platform, token string, env Envelope) (string, error) {
	s, ok := r.senders[platform]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPlatformNotConfigured, platform)
	}
	return s.Send(ctx, token, env)
}
