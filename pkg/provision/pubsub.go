package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// pubSubManager creates and deletes topics and subscriptions.
type pubSubManager struct {
	client *pubsub.Client
	logger zerolog.Logger
}

func isPubSubNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (m *pubSubManager) setupTopics(ctx context.Context, topics []TopicConfig) error {
	m.logger.Info().Int("count", len(topics)).Msg("Setting up Pub/Sub topics...")
	for _, topicSpec := range topics {
		topic := m.client.Topic(topicSpec.Name)
		exists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check existence of topic '%s': %w", topicSpec.Name, err)
		}
		if exists {
			m.logger.Info().Str("topic_id", topicSpec.Name).Msg("Topic already exists.")
			if len(topicSpec.Labels) > 0 {
				if _, err := topic.Update(ctx, pubsub.TopicConfigToUpdate{Labels: topicSpec.Labels}); err != nil {
					m.logger.Warn().Err(err).Str("topic_id", topicSpec.Name).Msg("Failed to update topic labels")
				}
			}
			continue
		}

		created, err := m.client.CreateTopicWithConfig(ctx, topicSpec.Name, &pubsub.TopicConfig{Labels: topicSpec.Labels})
		if err != nil {
			return fmt.Errorf("failed to create topic '%s': %w", topicSpec.Name, err)
		}
		m.logger.Info().Str("topic_id", created.ID()).Msg("Topic created successfully")
	}
	return nil
}

func subscriptionConfig(topic *pubsub.Topic, subSpec SubscriptionConfig) pubsub.SubscriptionConfig {
	cfg := pubsub.SubscriptionConfig{Topic: topic, Labels: subSpec.Labels}
	if subSpec.AckDeadlineSeconds > 0 {
		cfg.AckDeadline = time.Duration(subSpec.AckDeadlineSeconds) * time.Second
	}
	if subSpec.MessageRetention > 0 {
		cfg.RetentionDuration = time.Duration(subSpec.MessageRetention)
	}
	return cfg
}

func (m *pubSubManager) setupSubscriptions(ctx context.Context, subs []SubscriptionConfig) error {
	m.logger.Info().Int("count", len(subs)).Msg("Setting up Pub/Sub subscriptions...")
	for _, subSpec := range subs {
		topic := m.client.Topic(subSpec.Topic)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check existence of topic '%s': %w", subSpec.Topic, err)
		}
		if !topicExists {
			return fmt.Errorf("topic '%s' for subscription '%s' does not exist", subSpec.Topic, subSpec.Name)
		}

		sub := m.client.Subscription(subSpec.Name)
		exists, err := sub.Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check existence of subscription '%s': %w", subSpec.Name, err)
		}
		subCfg := subscriptionConfig(topic, subSpec)

		if exists {
			m.logger.Info().Str("subscription_id", subSpec.Name).Msg("Subscription already exists, ensuring configuration")
			update := pubsub.SubscriptionConfigToUpdate{
				AckDeadline:       subCfg.AckDeadline,
				RetentionDuration: subCfg.RetentionDuration,
			}
			if len(subCfg.Labels) > 0 {
				update.Labels = subCfg.Labels
			}
			if update.AckDeadline == 0 && update.RetentionDuration == 0 && update.Labels == nil {
				continue
			}
			if _, err := sub.Update(ctx, update); err != nil {
				m.logger.Warn().Err(err).Str("subscription_id", subSpec.Name).Msg("Failed to update subscription")
			}
			continue
		}

		created, err := m.client.CreateSubscription(ctx, subSpec.Name, subCfg)
		if err != nil {
			return fmt.Errorf("failed to create subscription '%s' for topic '%s': %w", subSpec.Name, subSpec.Topic, err)
		}
		m.logger.Info().Str("subscription_id", created.ID()).Str("topic_id", subSpec.Topic).Msg("Subscription created successfully")
	}
	return nil
}

func (m *pubSubManager) teardownSubscriptions(ctx context.Context, subs []SubscriptionConfig) error {
	m.logger.Info().Int("count", len(subs)).Msg("Tearing down Pub/Sub subscriptions...")
	var errs []error
	for i := len(subs) - 1; i >= 0; i-- {
		name := subs[i].Name
		if err := m.client.Subscription(name).Delete(ctx); err != nil {
			if isPubSubNotFound(err) {
				m.logger.Info().Str("subscription_id", name).Msg("Subscription not found, skipping.")
				continue
			}
			m.logger.Error().Err(err).Str("subscription_id", name).Msg("Failed to delete subscription")
			errs = append(errs, fmt.Errorf("delete subscription '%s': %w", name, err))
			continue
		}
		m.logger.Info().Str("subscription_id", name).Msg("Subscription deleted successfully")
	}
	return errors.Join(errs...)
}

func (m *pubSubManager) teardownTopics(ctx context.Context, topics []TopicConfig) error {
	m.logger.Info().Int("count", len(topics)).Msg("Tearing down Pub/Sub topics...")
	var errs []error
	for i := len(topics) - 1; i >= 0; i-- {
		name := topics[i].Name
		if err := m.client.Topic(name).Delete(ctx); err != nil {
			if isPubSubNotFound(err) {
				m.logger.Info().Str("topic_id", name).Msg("Topic not found, skipping.")
				continue
			}
			m.logger.Error().Err(err).Str("topic_id", name).Msg("Failed to delete topic")
			errs = append(errs, fmt.Errorf("delete topic '%s': %w", name, err))
			continue
		}
		m.logger.Info().Str("topic_id", name).Msg("Topic deleted successfully")
	}
	return errors.Join(errs...)
}
