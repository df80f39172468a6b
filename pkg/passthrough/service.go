package passthrough

import (
	"context"
	"fmt"

	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PipelineName labels logs and metrics for this pipeline.
const PipelineName = "passthrough"

// NewService assembles subscription -> Transformer -> Batcher(Discarder).
// An empty subscription means DefaultSubscription.
func NewService(
	ctx context.Context,
	subscription string,
	rt messagepipeline.RuntimeOptions,
	clientOpts []option.ClientOption,
	metrics *messagepipeline.PipelineMetrics,
	logger zerolog.Logger,
) (*messagepipeline.Pipeline[Element], error) {
	if subscription == "" {
		subscription = DefaultSubscription
	}
	sub, err := messagepipeline.ParseSubscriptionPath(subscription, rt.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}
	logger = logger.With().Str("pipeline", PipelineName).Logger()

	consumer, err := messagepipeline.NewGooglePubsubConsumer(ctx, &messagepipeline.GooglePubsubConsumerConfig{
		ProjectID:              sub.ProjectID,
		SubscriptionID:         sub.ID,
		CredentialsFile:        rt.CredentialsFile,
		MaxOutstandingMessages: rt.MaxOutstandingMessages,
		NumGoroutines:          rt.NumGoroutines,
	}, clientOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", sub.SubscriptionPath(), err)
	}

	return assemble(consumer, rt, metrics, logger)
}

func assemble(
	consumer messagepipeline.MessageConsumer,
	rt messagepipeline.RuntimeOptions,
	metrics *messagepipeline.PipelineMetrics,
	logger zerolog.Logger,
) (*messagepipeline.Pipeline[Element], error) {
	batcher, err := messagepipeline.NewBatcher[Element](&rt.Batch, NewDiscarder(logger), logger)
	if err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	batcher.WithMetrics(metrics)

	service, err := messagepipeline.NewProcessingService[Element](rt.NumWorkers, consumer, batcher, Transformer, logger)
	if err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	service.WithMetrics(metrics)

	return messagepipeline.NewPipeline(PipelineName, service, logger), nil
}
