package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog"
)

const deadLetterTimeout = 10 * time.Second

// NewTransformer returns the MessageTransformer for ingest records.
//
// A payload that fails to parse is returned as an error, so the message is
// Nacked and redelivered. When deadLetter is non-nil the raw payload is
// published there instead and the message is skipped (and so Acked), but only
// once the publish has been confirmed.
func NewTransformer(deadLetter messagepipeline.SimplePublisher, metrics *messagepipeline.PipelineMetrics, logger zerolog.Logger) messagepipeline.MessageTransformer[Record] {
	logger = logger.With().Str("component", "IngestTransformer").Logger()

	return func(msg types.ConsumedMessage) (*Record, bool, error) {
		record, err := ParseRecord(msg.Payload)
		if err == nil {
			record.InsertID = msg.ID
			return record, false, nil
		}

		if deadLetter == nil {
			return nil, false, fmt.Errorf("message %s: %w", msg.ID, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
		defer cancel()
		attrs := map[string]string{
			"error":               err.Error(),
			"original_message_id": msg.ID,
		}
		if pubErr := deadLetter.Publish(ctx, msg.Payload, attrs); pubErr != nil {
			return nil, false, fmt.Errorf("message %s: dead-letter publish failed: %w (parse error: %w)", msg.ID, pubErr, err)
		}

		logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Invalid payload sent to dead-letter topic.")
		metrics.IncDeadLettered()
		return nil, true, nil
	}
}
