package ingest

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/beaver/pkg/bqstore"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PipelineName labels logs and metrics for this pipeline.
const PipelineName = "ingest"

// ClientOptions are passed to the clients the service creates. They are kept
// apart because emulators serve Pub/Sub and BigQuery on different endpoints.
type ClientOptions struct {
	PubSub   []option.ClientOption
	BigQuery []option.ClientOption
}

// NewService assembles topic -> Transformer -> Batcher(BigQueryInserter).
// Options are validated before any client is created.
func NewService(
	ctx context.Context,
	opts Options,
	rt messagepipeline.RuntimeOptions,
	clients ClientOptions,
	metrics *messagepipeline.PipelineMetrics,
	logger zerolog.Logger,
) (*messagepipeline.Pipeline[Record], error) {
	res, err := opts.resolve(rt.ProjectID)
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("pipeline", PipelineName).Logger()
	res.sink.CredentialsFile = rt.CredentialsFile

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	bqClient, err := bqstore.NewProductionBigQueryClient(ctx, res.sink, logger, clients.BigQuery...)
	if err != nil {
		return nil, err
	}
	closers = append(closers, bqClient.Close)

	var deadLetter messagepipeline.SimplePublisher
	if res.deadLetter != nil {
		dlqOpts := clients.PubSub
		if rt.CredentialsFile != "" {
			dlqOpts = append(dlqOpts, option.WithCredentialsFile(rt.CredentialsFile))
		}
		dlqClient, err := pubsub.NewClient(ctx, res.deadLetter.ProjectID, dlqOpts...)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("pubsub.NewClient for dead-letter topic: %w", err)
		}
		publisher, err := messagepipeline.NewGoogleSimplePublisher(dlqClient, res.deadLetter.ID, logger)
		if err != nil {
			_ = dlqClient.Close()
			cleanup()
			return nil, err
		}
		deadLetter = publisher
		// The publisher must flush before its client closes.
		closers = append(closers, func() error {
			publisher.Stop()
			return dlqClient.Close()
		})
	}

	consumerCfg := &messagepipeline.GooglePubsubConsumerConfig{
		ProjectID:              res.topic.ProjectID,
		TopicID:                res.topic.ID,
		CredentialsFile:        rt.CredentialsFile,
		MaxOutstandingMessages: rt.MaxOutstandingMessages,
		NumGoroutines:          rt.NumGoroutines,
		EphemeralPrefix:        "beaver-" + PipelineName,
	}
	if res.subscription != nil {
		consumerCfg.ProjectID = res.subscription.ProjectID
		consumerCfg.SubscriptionID = res.subscription.ID
		consumerCfg.TopicID = ""
	}
	consumer, err := messagepipeline.NewGooglePubsubConsumer(ctx, consumerCfg, clients.PubSub, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create consumer for %s: %w", res.topic.TopicPath(), err)
	}

	batcher, err := bqstore.NewBigQueryBatchProcessor[Record](ctx, bqClient, &rt.Batch, res.sink, logger)
	if err != nil {
		_ = consumer.Stop()
		cleanup()
		return nil, err
	}

	pipeline, err := assemble(consumer, batcher, deadLetter, rt.NumWorkers, metrics, logger, closers...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return pipeline, nil
}

func assemble(
	consumer messagepipeline.MessageConsumer,
	batcher *messagepipeline.Batcher[Record],
	deadLetter messagepipeline.SimplePublisher,
	numWorkers int,
	metrics *messagepipeline.PipelineMetrics,
	logger zerolog.Logger,
	closers ...func() error,
) (*messagepipeline.Pipeline[Record], error) {
	batcher.WithMetrics(metrics)

	service, err := bqstore.NewBigQueryService[Record](numWorkers, consumer, batcher, NewTransformer(deadLetter, metrics, logger), logger)
	if err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	service.WithMetrics(metrics)

	return messagepipeline.NewPipeline(PipelineName, service, logger, closers...), nil
}
