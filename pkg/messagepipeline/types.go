package messagepipeline

import (
	"context"

	"github.com/illmade-knight/beaver/pkg/types"
)

// ====================================================================================
// This file defines the core interfaces for the consume -> transform -> sink
// pipelines. Both pipelines in this module are assembled from these pieces.
// ====================================================================================

// MessageProcessor defines the contract for any component that receives and
// handles transformed messages. The Batcher is the implementation used by both
// pipelines; it owns Ack/Nack for every message it accepts.
type MessageProcessor[T any] interface {
	// Input returns a write-only channel for sending transformed messages to the processor.
	Input() chan<- *types.BatchedMessage[T]
	// Start begins the processor's operations (e.g., its batching worker).
	Start()
	// Stop gracefully shuts down the processor, ensuring any buffered items are handled.
	Stop()
}

// MessageConsumer defines the interface for a message source.
// It is responsible for fetching raw messages from the broker.
type MessageConsumer interface {
	// Messages returns a read-only channel from which raw messages can be consumed.
	Messages() <-chan types.ConsumedMessage
	// Start initiates the consumption of messages.
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption.
	Stop() error
	// Done returns a channel that is closed when the consumer has fully stopped.
	Done() <-chan struct{}
}

// ErrorReporter is implemented by consumers that can say why they stopped.
// Err is only meaningful once Done is closed.
type ErrorReporter interface {
	Err() error
}

// MessageTransformer transforms a whole ConsumedMessage into a structured payload
// of type T.
//
// It returns the transformed payload, a boolean to indicate if the message
// should be skipped (and Acked), and an error if the transformation fails (the
// message is Nacked).
type MessageTransformer[T any] func(msg types.ConsumedMessage) (payload *T, skip bool, err error)

// DataBatchInserter is a generic interface for handing a batch of items of type T
// to a destination. It abstracts the sink (BigQuery, a discarding sink, ...).
type DataBatchInserter[T any] interface {
	InsertBatch(ctx context.Context, items []*T) error
	Close() error
}
