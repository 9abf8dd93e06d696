package push

import (
	"context"

	"github.com/skinsociete/notification-engine/internal/models"
	"golang.org/x/time/rate"
)

// RateLimited throttles an upstream Sender with a token bucket.
// Burst equals the per-second rate so short spikes don't block too hard.
type RateLimited struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimited(next Sender, perSec int) *RateLimited {
	if perSec <= 0 {
		perSec = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
	}
}

func (r *RateLimited) Send(ctx context.Context, platform models.Platform, token string, env Envelope) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Send(ctx, platform, token, env)
}
