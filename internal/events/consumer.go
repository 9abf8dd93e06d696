// Package events consumes behavior events from Kafka and feeds them to the
// behavior tracker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Recorder applies one behavior event.
type Recorder interface {
	Record(ctx context.Context, ev models.BehaviorEvent) error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads behavior events and commits each offset only after the
// event was applied or rejected as invalid.
type Consumer struct {
	reader   Reader
	recorder Recorder
}

func NewConsumer(reader Reader, recorder Recorder) *Consumer {
	return &Consumer{reader: reader, recorder: recorder}
}

// NewKafkaReader builds a consumer-group reader for the behavior event topic.
func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Run consumes until ctx is done. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	logrus.Info("Behavior event consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handle applies msg, retrying transient failures with capped backoff. It
// only returns an error once ctx is done.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var ev models.BehaviorEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logrus.WithError(err).WithField("offset", msg.Offset).Warn("Dropping malformed behavior event")
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = fmt.Sprintf("kafka:%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}

	backoff := minBackoff
	for {
		err := c.recorder.Record(ctx, ev)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrInvalidEvent) {
			logrus.WithError(err).WithFields(logrus.Fields{
				"event_id": ev.EventID,
				"user_id":  ev.UserID,
			}).Warn("Dropping invalid behavior event")
			return nil
		}

		logrus.WithError(err).WithField("event_id", ev.EventID).Warnf("Failed to record event, retrying in %s", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
