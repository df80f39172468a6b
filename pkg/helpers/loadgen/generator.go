// Package loadgen generates test traffic for the pipelines.
package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Publisher is a single simulated message source in the load test.
type Publisher struct {
	ID               string
	MessageRate      float64
	PayloadGenerator PayloadGenerator
}

// LoadGenerator runs a set of publishers against a Client for a fixed duration.
type LoadGenerator struct {
	client         Client
	publishers     []*Publisher
	logger         zerolog.Logger
	publishedCount int64
}

// NewLoadGenerator creates a new LoadGenerator.
func NewLoadGenerator(client Client, publishers []*Publisher, logger zerolog.Logger) *LoadGenerator {
	return &LoadGenerator{
		client:     client,
		publishers: publishers,
		logger:     logger.With().Str("component", "LoadGenerator").Logger(),
	}
}

// Run publishes until duration elapses or ctx is cancelled and returns the
// number of messages the client accepted.
func (lg *LoadGenerator) Run(ctx context.Context, duration time.Duration) (int, error) {
	atomic.StoreInt64(&lg.publishedCount, 0)
	lg.logger.Info().Int("num_publishers", len(lg.publishers)).Dur("duration", duration).Msg("Starting load generator")

	if err := lg.client.Connect(); err != nil {
		lg.logger.Error().Err(err).Msg("Failed to connect client")
		return 0, err
	}
	defer lg.client.Disconnect()

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	for _, p := range lg.publishers {
		wg.Add(1)
		go func(p *Publisher) {
			defer wg.Done()
			lg.runPublisher(runCtx, p)
		}(p)
	}

	wg.Wait()
	finalCount := int(atomic.LoadInt64(&lg.publishedCount))
	lg.logger.Info().Int("successful_publishes", finalCount).Msg("Load generator finished")
	return finalCount, nil
}

func (lg *LoadGenerator) runPublisher(ctx context.Context, p *Publisher) {
	if p.MessageRate <= 0 {
		lg.logger.Warn().Str("publisher_id", p.ID).Msg("Publisher has a message rate of 0, no messages will be sent")
		return
	}

	interval := time.Duration(float64(time.Second) / p.MessageRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lg.logger.Debug().Str("publisher_id", p.ID).Float64("rate_hz", p.MessageRate).Dur("interval", interval).Msg("Publisher starting")

	for {
		select {
		case <-ctx.Done():
			lg.logger.Debug().Str("publisher_id", p.ID).Msg("Publisher stopping")
			return
		case <-ticker.C:
			if success, err := lg.client.Publish(ctx, p); err != nil {
				// The run ending mid-publish is not a failure.
				if ctx.Err() == nil {
					lg.logger.Error().Err(err).Str("publisher_id", p.ID).Msg("Failed to publish message")
				}
			} else if success {
				atomic.AddInt64(&lg.publishedCount, 1)
			}
		}
	}
}
