package messagepipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog"
)

// BatcherConfig holds configuration for the Batcher.
type BatcherConfig struct {
	BatchSize    int
	FlushTimeout time.Duration
	// InsertTimeout bounds a single call to the underlying DataBatchInserter.
	InsertTimeout time.Duration
}

// DefaultBatcherConfig mirrors the defaults used by the command line.
func DefaultBatcherConfig() *BatcherConfig {
	return &BatcherConfig{
		BatchSize:     100,
		FlushTimeout:  5 * time.Second,
		InsertTimeout: 30 * time.Second,
	}
}

// Batcher collects transformed messages into batches and hands them to a
// DataBatchInserter. It implements MessageProcessor[T] and owns Ack/Nack for
// every message it receives: a batch is Acked when the inserter succeeds and
// Nacked when it fails.
type Batcher[T any] struct {
	config    BatcherConfig
	inserter  DataBatchInserter[T]
	metrics   *PipelineMetrics
	logger    zerolog.Logger
	inputChan chan *types.BatchedMessage[T]
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewBatcher creates a new generic Batcher for a given type T.
func NewBatcher[T any](
	config *BatcherConfig,
	inserter DataBatchInserter[T],
	logger zerolog.Logger,
) (*Batcher[T], error) {
	if config == nil {
		return nil, errors.New("batcher config cannot be nil")
	}
	if inserter == nil {
		return nil, errors.New("data batch inserter cannot be nil")
	}
	cfg := *config
	if cfg.BatchSize <= 0 {
		logger.Warn().Int("batch_size", cfg.BatchSize).Msg("Non-positive batch size, defaulting to 1.")
		cfg.BatchSize = 1
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = 30 * time.Second
	}
	return &Batcher[T]{
		config:    cfg,
		inserter:  inserter,
		logger:    logger.With().Str("component", "Batcher").Logger(),
		inputChan: make(chan *types.BatchedMessage[T], cfg.BatchSize*2),
	}, nil
}

// WithMetrics attaches pipeline counters to the batcher.
func (b *Batcher[T]) WithMetrics(m *PipelineMetrics) *Batcher[T] {
	b.metrics = m
	return b
}

// Start begins the batching worker.
func (b *Batcher[T]) Start() {
	b.logger.Info().
		Int("batch_size", b.config.BatchSize).
		Dur("flush_timeout", b.config.FlushTimeout).
		Msg("Starting Batcher worker...")
	b.wg.Add(1)
	go b.worker()
}

// Stop closes the input, flushes the final batch and closes the inserter.
// Nothing may be sent to Input after Stop is called.
func (b *Batcher[T]) Stop() {
	b.stopOnce.Do(func() {
		b.logger.Info().Msg("Stopping Batcher...")
		close(b.inputChan)
		b.wg.Wait()
		if err := b.inserter.Close(); err != nil {
			b.logger.Error().Err(err).Msg("Error closing underlying data inserter")
		}
		b.logger.Info().Msg("Batcher stopped.")
	})
}

// Input returns the channel to which transformed messages should be sent.
func (b *Batcher[T]) Input() chan<- *types.BatchedMessage[T] {
	return b.inputChan
}

// worker collects items into a batch and flushes it on size, on timeout and
// when the input is closed.
func (b *Batcher[T]) worker() {
	defer b.wg.Done()
	batch := make([]*types.BatchedMessage[T], 0, b.config.BatchSize)

	// A non-positive timeout disables time-based flushing.
	var tickerC <-chan time.Time
	if b.config.FlushTimeout > 0 {
		ticker := time.NewTicker(b.config.FlushTimeout)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	for {
		select {
		case msg, ok := <-b.inputChan:
			if !ok {
				b.flush(batch)
				return
			}
			batch = append(batch, msg)
			if len(batch) >= b.config.BatchSize {
				b.flush(batch)
				batch = make([]*types.BatchedMessage[T], 0, b.config.BatchSize)
			}

		case <-tickerC:
			if len(batch) > 0 {
				b.flush(batch)
				batch = make([]*types.BatchedMessage[T], 0, b.config.BatchSize)
			}
		}
	}
}

// flush sends the current batch to the inserter and handles Ack/Nack logic.
func (b *Batcher[T]) flush(batch []*types.BatchedMessage[T]) {
	if len(batch) == 0 {
		return
	}

	payloads := make([]*T, len(batch))
	for i, msg := range batch {
		payloads[i] = msg.Payload
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.InsertTimeout)
	defer cancel()

	if err := b.inserter.InsertBatch(ctx, payloads); err != nil {
		b.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to insert batch, Nacking messages.")
		for _, msg := range batch {
			if msg.OriginalMessage.Nack != nil {
				msg.OriginalMessage.Nack()
			}
		}
		b.metrics.addNacked(len(batch))
		return
	}

	b.logger.Debug().Int("batch_size", len(batch)).Msg("Successfully flushed batch, Acking messages.")
	for _, msg := range batch {
		if msg.OriginalMessage.Ack != nil {
			msg.OriginalMessage.Ack()
		}
	}
	b.metrics.observeBatch(len(batch))
	b.metrics.addAcked(len(batch))
}
