package loadgen

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PubsubClient implements Client by publishing to a Pub/Sub topic.
type PubsubClient struct {
	projectID string
	topicID   string
	opts      []option.ClientOption
	client    *pubsub.Client
	topic     *pubsub.Topic
	logger    zerolog.Logger
}

// NewPubsubClient creates a client for the topic. Nothing is dialled until Connect.
func NewPubsubClient(projectID, topicID string, opts []option.ClientOption, logger zerolog.Logger) *PubsubClient {
	return &PubsubClient{
		projectID: projectID,
		topicID:   topicID,
		opts:      opts,
		logger:    logger.With().Str("component", "PubsubClient").Str("topic_id", topicID).Logger(),
	}
}

// Connect creates the Pub/Sub client and checks that the topic exists.
func (c *PubsubClient) Connect() error {
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, c.projectID, c.opts...)
	if err != nil {
		return fmt.Errorf("pubsub.NewClient for project %s: %w", c.projectID, err)
	}
	topic := client.Topic(c.topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to check topic %s: %w", c.topicID, err)
	}
	if !exists {
		_ = client.Close()
		return fmt.Errorf("topic %s does not exist in project %s", c.topicID, c.projectID)
	}
	c.client = client
	c.topic = topic
	c.logger.Info().Msg("Connected to Pub/Sub topic.")
	return nil
}

// Disconnect flushes pending messages and closes the client.
func (c *PubsubClient) Disconnect() {
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing Pub/Sub client")
		}
	}
}

// Publish sends the publisher's next payload and waits for the server to accept it.
func (c *PubsubClient) Publish(ctx context.Context, p *Publisher) (bool, error) {
	if c.topic == nil {
		return false, errors.New("client is not connected")
	}
	if p.PayloadGenerator == nil {
		return false, fmt.Errorf("publisher %s has no payload generator", p.ID)
	}
	payload, err := p.PayloadGenerator.GeneratePayload(p)
	if err != nil {
		return false, fmt.Errorf("failed to generate payload for %s: %w", p.ID, err)
	}

	result := c.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"publisher_id": p.ID},
	})
	if _, err := result.Get(ctx); err != nil {
		return false, err
	}
	return true, nil
}

var _ Client = (*PubsubClient)(nil)
