package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// This file contains the generic service that moves messages from any
// MessageConsumer, through a MessageTransformer, into any MessageProcessor.
// ====================================================================================

// ProcessingService orchestrates the pipeline of consuming, transforming, and processing messages.
type ProcessingService[T any] struct {
	numWorkers   int
	consumer     MessageConsumer
	processor    MessageProcessor[T]
	transformer  MessageTransformer[T]
	metrics      *PipelineMetrics
	logger       zerolog.Logger
	wg           sync.WaitGroup
	shutdownCtx  context.Context
	shutdownFunc context.CancelFunc
}

// NewProcessingService creates a new, generic ProcessingService.
// It requires a consumer to get messages, a transformer to give them structure, and a
// processor to handle the structured data.
func NewProcessingService[T any](
	numWorkers int,
	consumer MessageConsumer,
	processor MessageProcessor[T],
	transformer MessageTransformer[T],
	logger zerolog.Logger,
) (*ProcessingService[T], error) {
	if consumer == nil {
		return nil, errors.New("message consumer cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("message processor cannot be nil")
	}
	if transformer == nil {
		return nil, errors.New("message transformer cannot be nil")
	}
	if numWorkers <= 0 {
		numWorkers = 5
	}

	return &ProcessingService[T]{
		numWorkers:  numWorkers,
		consumer:    consumer,
		processor:   processor,
		transformer: transformer,
		logger:      logger.With().Str("service", "ProcessingService").Logger(),
	}, nil
}

// WithMetrics attaches pipeline counters to the service.
func (s *ProcessingService[T]) WithMetrics(m *PipelineMetrics) *ProcessingService[T] {
	s.metrics = m
	return s
}

// Start begins the service operation. It starts the processor and the consumer,
// then spins up a pool of workers to process messages. Cancelling ctx has the
// same effect on the workers as calling Stop, but Stop must still be called to
// flush the processor.
func (s *ProcessingService[T]) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting ProcessingService...")
	s.shutdownCtx, s.shutdownFunc = context.WithCancel(ctx)

	// The processor must be ready before the first message arrives.
	s.processor.Start()

	if err := s.consumer.Start(s.shutdownCtx); err != nil {
		s.processor.Stop()
		return fmt.Errorf("failed to start message consumer: %w", err)
	}
	s.logger.Info().Msg("Message consumer started.")

	s.logger.Info().Int("worker_count", s.numWorkers).Msg("Starting processing workers...")
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info().Msg("ProcessingService started successfully.")
	return nil
}

// worker is the main loop for each concurrent worker.
func (s *ProcessingService[T]) worker(workerID int) {
	defer s.wg.Done()
	s.logger.Debug().Int("worker_id", workerID).Msg("Processing worker started.")

	for {
		select {
		case <-s.shutdownCtx.Done():
			s.logger.Debug().Int("worker_id", workerID).Msg("Processing worker shutting down.")
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Debug().Int("worker_id", workerID).Msg("Consumer channel closed, worker exiting.")
				return
			}
			s.processConsumedMessage(msg, workerID)
		}
	}
}

func (s *ProcessingService[T]) processConsumedMessage(msg types.ConsumedMessage, workerID int) {
	s.metrics.incReceived()
	s.logger.Debug().Int("worker_id", workerID).Str("msg_id", msg.ID).Msg("Transforming message")

	payload, skip, err := s.transformer(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to transform message, Nacking.")
		s.nack(msg)
		return
	}

	if skip {
		s.logger.Debug().Str("msg_id", msg.ID).Msg("Transformer signaled to skip message, Acking.")
		s.metrics.incSkipped()
		s.ack(msg)
		return
	}

	batched := &types.BatchedMessage[T]{
		OriginalMessage: msg,
		Payload:         payload,
	}

	select {
	case s.processor.Input() <- batched:
		s.logger.Debug().Str("msg_id", msg.ID).Msg("Payload sent to processor.")
	case <-s.shutdownCtx.Done():
		s.logger.Warn().Str("msg_id", msg.ID).Msg("Shutdown in progress, Nacking message.")
		s.nack(msg)
	}
}

func (s *ProcessingService[T]) ack(msg types.ConsumedMessage) {
	if msg.Ack != nil {
		msg.Ack()
	}
	s.metrics.addAcked(1)
}

func (s *ProcessingService[T]) nack(msg types.ConsumedMessage) {
	if msg.Nack != nil {
		msg.Nack()
	}
	s.metrics.addNacked(1)
}

// SourceDone is closed when the consumer stops, whether or not Stop was called.
func (s *ProcessingService[T]) SourceDone() <-chan struct{} { return s.consumer.Done() }

// SourceErr is the consumer's reason for stopping, if it reports one.
func (s *ProcessingService[T]) SourceErr() error {
	if r, ok := s.consumer.(ErrorReporter); ok {
		return r.Err()
	}
	return nil
}

// Stop gracefully shuts down the entire service in the correct order.
func (s *ProcessingService[T]) Stop() {
	s.logger.Info().Msg("Stopping ProcessingService...")
	if s.shutdownFunc == nil {
		s.logger.Warn().Msg("ProcessingService was never started.")
		return
	}

	// 1. Signal all workers and the consumer to begin shutting down.
	s.shutdownFunc()

	// 2. Wait for the consumer to fully stop so no new messages arrive.
	if err := s.consumer.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping message consumer")
	}
	<-s.consumer.Done()
	s.logger.Info().Msg("Message consumer stopped.")

	// 3. Wait for all processing workers to finish their current tasks.
	s.wg.Wait()
	s.logger.Info().Msg("All processing workers completed.")

	// 4. Stop the processor. This flushes any remaining buffered items.
	s.processor.Stop()

	s.logger.Info().Msg("ProcessingService stopped gracefully.")
}
