package messagepipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// SimplePublisher defines a direct, non-batching publisher.
// It is used for dead-lettering, where a message may only be Acked once its
// copy is safely stored elsewhere.
type SimplePublisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	Stop()
}

// GoogleSimplePublisher implements a direct-to-Pub/Sub publisher.
type GoogleSimplePublisher struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewGoogleSimplePublisher creates a new simple publisher. The client is owned by the caller.
func NewGoogleSimplePublisher(client *pubsub.Client, topicID string, logger zerolog.Logger) (*GoogleSimplePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic ID cannot be empty")
	}
	return &GoogleSimplePublisher{
		topic:  client.Topic(topicID),
		logger: logger.With().Str("component", "GoogleSimplePublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Publish sends a single message and blocks until Pub/Sub confirms it.
func (p *GoogleSimplePublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to publish message")
		return fmt.Errorf("publish to %s failed: %w", p.topic.ID(), err)
	}
	p.logger.Debug().Str("published_msg_id", msgID).Msg("Message published.")
	return nil
}

// Stop flushes any pending messages for the topic.
func (p *GoogleSimplePublisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
