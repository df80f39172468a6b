package messagepipeline_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleSimplePublisher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const (
		projectID = "test-simple-producer-project"
		topicID   = "test-simple-producer-topic"
		subID     = "test-simple-producer-sub"
	)
	opts := newTestPubsubOptions(t)

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)
	verifierSub, err := client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher, err := messagepipeline.NewGoogleSimplePublisher(client, topicID, zerolog.Nop())
	require.NoError(t, err)
	defer publisher.Stop()

	t.Run("Publish sends message successfully", func(t *testing.T) {
		payload := []byte("hello from simple publisher")
		attributes := map[string]string{"source": "test"}

		require.NoError(t, publisher.Publish(ctx, payload, attributes))

		receivedMsg := receiveSingleMessage(t, ctx, verifierSub, 5*time.Second)
		require.NotNil(t, receivedMsg, "Did not receive a message from the simple publisher")
		assert.Equal(t, string(payload), string(receivedMsg.Data))
		assert.Equal(t, "test", receivedMsg.Attributes["source"])
	})

	t.Run("Publish to a missing topic fails", func(t *testing.T) {
		missing, err := messagepipeline.NewGoogleSimplePublisher(client, "no-such-topic", zerolog.Nop())
		require.NoError(t, err)
		defer missing.Stop()

		err = missing.Publish(ctx, []byte("x"), nil)
		assert.Error(t, err)
	})
}

func TestNewGoogleSimplePublisher_Validation(t *testing.T) {
	_, err := messagepipeline.NewGoogleSimplePublisher(nil, "topic", zerolog.Nop())
	assert.Error(t, err)
}
