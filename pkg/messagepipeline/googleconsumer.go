package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// GooglePubsubConsumerConfig holds configuration for the Pub/Sub consumer.
// Exactly one of SubscriptionID or TopicID is normally set. When only TopicID is
// set, the consumer creates a subscription of its own on that topic and deletes
// it again on Stop.
type GooglePubsubConsumerConfig struct {
	ProjectID              string
	SubscriptionID         string
	TopicID                string
	CredentialsFile        string // Optional
	MaxOutstandingMessages int
	NumGoroutines          int

	// EphemeralPrefix names subscriptions created for TopicID.
	EphemeralPrefix string
	// EphemeralExpiration, when positive, lets Pub/Sub reclaim an ephemeral
	// subscription that was never deleted (e.g. after a crash).
	EphemeralExpiration time.Duration
	// ExistsAttempts bounds the existence check of the subscription or topic.
	ExistsAttempts uint
}

// LoadGooglePubsubConsumerConfigFromEnv loads consumer configuration from environment variables.
func LoadGooglePubsubConsumerConfigFromEnv() (*GooglePubsubConsumerConfig, error) {
	cfg := &GooglePubsubConsumerConfig{
		ProjectID:              os.Getenv("GCP_PROJECT_ID"),
		SubscriptionID:         os.Getenv("PUBSUB_SUBSCRIPTION_ID"),
		TopicID:                os.Getenv("PUBSUB_TOPIC_ID"),
		CredentialsFile:        os.Getenv("GCP_PUBSUB_CREDENTIALS_FILE"),
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
		EphemeralPrefix:        "beaver",
		ExistsAttempts:         3,
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Pub/Sub consumer")
	}
	if cfg.SubscriptionID == "" && cfg.TopicID == "" {
		return nil, errors.New("neither PUBSUB_SUBSCRIPTION_ID nor PUBSUB_TOPIC_ID environment variable set for Pub/Sub consumer")
	}
	if mom := os.Getenv("PUBSUB_MAX_OUTSTANDING_MESSAGES"); mom != "" {
		if val, err := strconv.Atoi(mom); err == nil {
			cfg.MaxOutstandingMessages = val
		}
	}
	return cfg, nil
}

// GooglePubsubConsumer implements MessageConsumer on a Pub/Sub subscription.
type GooglePubsubConsumer struct {
	client             *pubsub.Client
	subscription       *pubsub.Subscription
	ephemeral          bool
	logger             zerolog.Logger
	outputChan         chan types.ConsumedMessage
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
	// receiveErr is written before doneChan is closed.
	receiveErr error
}

// NewGooglePubsubConsumer creates a consumer and verifies that its subscription
// (or, for topic sources, the topic) exists. The consumer owns the client it
// creates and closes it on Stop.
func NewGooglePubsubConsumer(ctx context.Context, cfg *GooglePubsubConsumerConfig, opts []option.ClientOption, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if cfg == nil {
		return nil, errors.New("GooglePubsubConsumerConfig cannot be nil")
	}
	if cfg.SubscriptionID == "" && cfg.TopicID == "" {
		return nil, errors.New("a subscription or a topic is required for the Pub/Sub consumer")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	attempts := cfg.ExistsAttempts
	if attempts == 0 {
		attempts = 3
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient for project %s: %w", cfg.ProjectID, err)
	}

	var sub *pubsub.Subscription
	ephemeral := false
	if cfg.SubscriptionID != "" {
		sub = client.Subscription(cfg.SubscriptionID)
		if err := waitForExistence(ctx, attempts, sub.Exists); err != nil {
			client.Close()
			return nil, fmt.Errorf("Pub/Sub subscription %s in project %s: %w", cfg.SubscriptionID, cfg.ProjectID, err)
		}
	} else {
		sub, err = createEphemeralSubscription(ctx, client, cfg, attempts)
		if err != nil {
			client.Close()
			return nil, err
		}
		ephemeral = true
		logger.Info().Str("topic_id", cfg.TopicID).Str("subscription_id", sub.ID()).Msg("Created ephemeral subscription for topic source.")
	}

	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	buffer := cfg.MaxOutstandingMessages
	if buffer <= 0 {
		buffer = 100
	}

	return &GooglePubsubConsumer{
		client:       client,
		subscription: sub,
		ephemeral:    ephemeral,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", sub.ID()).Logger(),
		outputChan:   make(chan types.ConsumedMessage, buffer),
		doneChan:     make(chan struct{}),
	}, nil
}

var errNotExist = errors.New("does not exist")

func waitForExistence(ctx context.Context, attempts uint, exists func(context.Context) (bool, error)) error {
	return retry.Do(
		func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			ok, err := exists(checkCtx)
			if err != nil {
				return err
			}
			if !ok {
				return errNotExist
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

func createEphemeralSubscription(ctx context.Context, client *pubsub.Client, cfg *GooglePubsubConsumerConfig, attempts uint) (*pubsub.Subscription, error) {
	topic := client.Topic(cfg.TopicID)
	if err := waitForExistence(ctx, attempts, topic.Exists); err != nil {
		return nil, fmt.Errorf("Pub/Sub topic %s in project %s: %w", cfg.TopicID, cfg.ProjectID, err)
	}

	prefix := cfg.EphemeralPrefix
	if prefix == "" {
		prefix = "beaver"
	}
	subID := fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	subCfg := pubsub.SubscriptionConfig{Topic: topic}
	if cfg.EphemeralExpiration > 0 {
		subCfg.ExpirationPolicy = cfg.EphemeralExpiration
	}
	sub, err := client.CreateSubscription(ctx, subID, subCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription %s on topic %s: %w", subID, cfg.TopicID, err)
	}
	return sub, nil
}

// Messages returns the channel of received messages.
func (c *GooglePubsubConsumer) Messages() <-chan types.ConsumedMessage { return c.outputChan }

// Start launches the Receive loop. Cancelling ctx stops it.
func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting Pub/Sub message consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel

	go func() {
		defer close(c.doneChan)
		c.logger.Info().Msg("Pub/Sub Receive goroutine started.")

		err := c.subscription.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			payloadCopy := make([]byte, len(msg.Data))
			copy(payloadCopy, msg.Data)

			consumed := types.ConsumedMessage{
				ID:          msg.ID,
				Payload:     payloadCopy,
				Attributes:  msg.Attributes,
				PublishTime: msg.PublishTime,
				Ack:         msg.Ack,
				Nack:        msg.Nack,
			}

			select {
			case c.outputChan <- consumed:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
			c.receiveErr = fmt.Errorf("receive on subscription %s: %w", c.subscription.ID(), err)
		}

		// Messages still buffered were never seen by a worker.
		close(c.outputChan)
		for msg := range c.outputChan {
			msg.Nack()
		}
		c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")
	}()
	return nil
}

// Stop cancels the Receive loop, waits for it, removes an ephemeral
// subscription and closes the client. It is safe to call more than once.
func (c *GooglePubsubConsumer) Stop() error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		if c.cancelSubscription != nil {
			c.cancelSubscription()
			select {
			case <-c.doneChan:
			case <-time.After(30 * time.Second):
				c.logger.Error().Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
			}
		} else {
			// Never started: nothing will close these.
			close(c.outputChan)
			close(c.doneChan)
		}

		if c.ephemeral {
			deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.subscription.Delete(deleteCtx); err != nil {
				c.logger.Error().Err(err).Msg("Failed to delete ephemeral subscription")
				stopErr = fmt.Errorf("failed to delete ephemeral subscription %s: %w", c.subscription.ID(), err)
			}
			cancel()
		}

		if err := c.client.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing Pub/Sub client")
			stopErr = errors.Join(stopErr, err)
		}
	})
	return stopErr
}

// Done returns a channel that is closed when the Receive loop has exited.
func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }

// Err reports why the Receive loop exited. It is nil until Done is closed and
// after a cancellation.
func (c *GooglePubsubConsumer) Err() error {
	select {
	case <-c.doneChan:
		return c.receiveErr
	default:
		return nil
	}
}

// SubscriptionID reports the subscription being consumed, which for topic
// sources is the generated ephemeral one.
func (c *GooglePubsubConsumer) SubscriptionID() string { return c.subscription.ID() }
