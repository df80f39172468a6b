package bqstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/rs/zerolog"
)

// ====================================================================================
// Convenience constructors that assemble a BigQuery-backed processing pipeline
// from the generic pieces in messagepipeline.
// ====================================================================================

// NewBigQueryBatchProcessor creates a BigQueryInserter for the configured table and
// wraps it in a Batcher, giving a MessageProcessor that appends rows in batches.
func NewBigQueryBatchProcessor[T any](
	ctx context.Context,
	client *bigquery.Client,
	batchCfg *messagepipeline.BatcherConfig,
	sinkCfg *BigQuerySinkConfig,
	logger zerolog.Logger,
) (*messagepipeline.Batcher[T], error) {
	inserter, err := NewBigQueryInserter[T](ctx, client, sinkCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery inserter: %w", err)
	}

	batcher, err := messagepipeline.NewBatcher[T](batchCfg, inserter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create batcher for BigQuery inserter: %w", err)
	}
	return batcher, nil
}

// NewBigQueryService assembles consumer -> transformer -> batcher into a
// ProcessingService.
func NewBigQueryService[T any](
	numWorkers int,
	consumer messagepipeline.MessageConsumer,
	batcher *messagepipeline.Batcher[T],
	transformer messagepipeline.MessageTransformer[T],
	logger zerolog.Logger,
) (*messagepipeline.ProcessingService[T], error) {
	if batcher == nil {
		return nil, fmt.Errorf("batcher cannot be nil")
	}
	service, err := messagepipeline.NewProcessingService[T](numWorkers, consumer, batcher, transformer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processing service for bqstore: %w", err)
	}
	return service, nil
}
