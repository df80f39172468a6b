// Package passthrough is the pass-through pipeline: it reads a subscription,
// logs every element of each batch and drops the result.
package passthrough

import (
	"context"

	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultSubscription is the subscription read when none is configured.
const DefaultSubscription = "projects/your-project/subscriptions/your-subscription"

// Element is a single raw message moving through the pipeline.
type Element struct {
	ID   string
	Data []byte
}

// MarshalZerologObject adds the message ID and payload size to a log line.
func (e *Element) MarshalZerologObject(ev *zerolog.Event) {
	if e == nil {
		return
	}
	ev.Str("msg_id", e.ID).Int("size", len(e.Data))
}

// ProcessBatch returns a new batch equal, element for element and in order, to
// the input. One informational line is logged per element before it is appended.
// Elements that implement zerolog.LogObjectMarshaler add their own fields.
func ProcessBatch[E any](logger zerolog.Logger, batch []E) []E {
	processed := make([]E, 0, len(batch))
	for i, element := range batch {
		ev := logger.Info().Int("index", i)
		if m, ok := any(element).(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg("Processing element")
		processed = append(processed, element)
	}
	return processed
}

// Transformer wraps the raw message as an Element. It never skips or fails.
func Transformer(msg types.ConsumedMessage) (*Element, bool, error) {
	return &Element{ID: msg.ID, Data: msg.Payload}, false, nil
}

// Discarder is the end of the pipeline: it runs ProcessBatch over each batch and
// drops the output. It satisfies messagepipeline.DataBatchInserter[Element].
type Discarder struct {
	logger zerolog.Logger
}

// NewDiscarder creates a Discarder that logs through logger.
func NewDiscarder(logger zerolog.Logger) *Discarder {
	return &Discarder{logger: logger.With().Str("component", "Discarder").Logger()}
}

// InsertBatch processes the batch and discards the result.
func (d *Discarder) InsertBatch(_ context.Context, items []*Element) error {
	out := ProcessBatch(d.logger, items)
	d.logger.Debug().Int("batch_size", len(out)).Msg("Batch processed and dropped.")
	return nil
}

// Close is a no-op.
func (d *Discarder) Close() error { return nil }
