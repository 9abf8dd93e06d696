package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSender delivers Android envelopes through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender authenticates with a service-account credentials file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, token string, env Envelope) (string, error) {
	id, err := s.client.Send(ctx, buildFCMMessage(token, env))
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return "", fmt.Errorf("fcm send: %w", err)
	}
	return id, nil
}

func buildFCMMessage(token string, env Envelope) *messaging.Message {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: env.Title,
			Body:  env.Body,
		},
		Data: env.Data,
	}
	if env.Android != nil {
		msg.Android = &messaging.AndroidConfig{
			Priority: env.Android.Priority,
			Notification: &messaging.AndroidNotification{
				ChannelID:   env.Android.ChannelID,
				Color:       env.Android.Color,
				ClickAction: env.DeepLink,
			},
		}
	}
	return msg
}
