package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNSConfig holds the token-based (.p8) credentials.
type APNSConfig struct {
	KeyFile    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// APNSSender delivers iOS envelopes through Apple Push Notification service.
type APNSSender struct {
	client *apns2.Client
	topic  string
}

func NewAPNSSender(cfg APNSConfig) (*APNSSender, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load apns auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNSSender{client: client, topic: cfg.Topic}, nil
}

func (s *APNSSender) Send(ctx context.Context, deviceToken string, env Envelope) (string, error) {
	res, err := s.client.PushWithContext(ctx, buildAPNSNotification(deviceToken, s.topic, env))
	if err != nil {
		return "", fmt.Errorf("apns push: %w", err)
	}
	if !res.Sent() {
		if res.Reason == apns2.ReasonBadDeviceToken || res.Reason == apns2.ReasonUnregistered {
			return "", fmt.Errorf("%w: %s", ErrInvalidToken, res.Reason)
		}
		return "", fmt.Errorf("apns rejected: %d %s", res.StatusCode, res.Reason)
	}
	return res.ApnsID, nil
}

func buildAPNSNotification(deviceToken, topic string, env Envelope) *apns2.Notification {
	p := payload.NewPayload().AlertTitle(env.Title).AlertBody(env.Body)
	if env.IOS != nil {
		p = p.Badge(env.IOS.Badge).Sound(env.IOS.Sound)
		if env.IOS.MutableContent {
			p = p.MutableContent()
		}
		if env.IOS.Category != "" {
			p = p.Category(env.IOS.Category)
		}
	}
	for k, v := range env.Data {
		p = p.Custom(k, v)
	}
	return &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       topic,
		Priority:    apns2.PriorityHigh,
		Payload:     p,
	}
}
