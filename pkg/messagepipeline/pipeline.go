package messagepipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrSourceStopped is returned by Run when the consumer stops on its own
// without reporting an error.
var ErrSourceStopped = errors.New("source stopped unexpectedly")

// RuntimeOptions are the execution settings shared by every pipeline.
type RuntimeOptions struct {
	ProjectID              string
	CredentialsFile        string
	NumWorkers             int
	MaxOutstandingMessages int
	NumGoroutines          int
	Batch                  BatcherConfig
}

// DefaultRuntimeOptions returns the settings used when nothing is configured.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		NumWorkers:             5,
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
		Batch:                  *DefaultBatcherConfig(),
	}
}

// Pipeline is a ProcessingService together with the clients it depends on.
// Closers run after the service has stopped, in the order given.
type Pipeline[T any] struct {
	name    string
	service *ProcessingService[T]
	closers []func() error
	logger  zerolog.Logger
}

// NewPipeline wraps a service and the cleanup of its clients.
func NewPipeline[T any](name string, service *ProcessingService[T], logger zerolog.Logger, closers ...func() error) *Pipeline[T] {
	return &Pipeline[T]{
		name:    name,
		service: service,
		closers: closers,
		logger:  logger.With().Str("pipeline", name).Logger(),
	}
}

// Start starts the underlying service.
func (p *Pipeline[T]) Start(ctx context.Context) error {
	if err := p.service.Start(ctx); err != nil {
		return fmt.Errorf("pipeline %s: %w", p.name, errors.Join(err, p.close()))
	}
	return nil
}

// Stop stops the service, flushing in-flight work, then releases clients.
func (p *Pipeline[T]) Stop() error {
	p.service.Stop()
	return p.close()
}

// Run starts the pipeline and blocks until ctx is cancelled, then stops it.
// If the source stops first, Run stops the pipeline and returns the source's
// error, or ErrSourceStopped.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	p.logger.Info().Msg("Pipeline running.")
	select {
	case <-ctx.Done():
	case <-p.service.SourceDone():
		if ctx.Err() == nil {
			srcErr := p.service.SourceErr()
			if srcErr == nil {
				srcErr = ErrSourceStopped
			}
			p.logger.Error().Err(srcErr).Msg("Source stopped, stopping pipeline.")
			return fmt.Errorf("pipeline %s: %w", p.name, errors.Join(srcErr, p.Stop()))
		}
	}
	p.logger.Info().Msg("Context cancelled, stopping pipeline.")
	return p.Stop()
}

func (p *Pipeline[T]) close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
