package messagepipeline

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics holds the counters shared by the consumer, the processing
// service and the batcher. A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	Received     prometheus.Counter
	Acked        prometheus.Counter
	Nacked       prometheus.Counter
	Skipped      prometheus.Counter
	DeadLettered prometheus.Counter
	Batches      prometheus.Counter
	Rows         prometheus.Counter
}

// NewPipelineMetrics creates the counters for a named pipeline and registers them.
func NewPipelineMetrics(reg prometheus.Registerer, pipeline string) (*PipelineMetrics, error) {
	labels := prometheus.Labels{"pipeline": pipeline}
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "beaver",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &PipelineMetrics{
		Received:     newCounter("messages_received_total", "Messages handed to the processing workers."),
		Acked:        newCounter("messages_acked_total", "Messages acknowledged."),
		Nacked:       newCounter("messages_nacked_total", "Messages negatively acknowledged for redelivery."),
		Skipped:      newCounter("messages_skipped_total", "Messages the transformer asked to skip."),
		DeadLettered: newCounter("messages_dead_lettered_total", "Messages published to the dead-letter topic."),
		Batches:      newCounter("batches_flushed_total", "Batches handed to the sink."),
		Rows:         newCounter("rows_written_total", "Items accepted by the sink."),
	}

	for _, c := range []prometheus.Collector{m.Received, m.Acked, m.Nacked, m.Skipped, m.DeadLettered, m.Batches, m.Rows} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register pipeline metric: %w", err)
		}
	}
	return m, nil
}

func (m *PipelineMetrics) incReceived() {
	if m != nil {
		m.Received.Inc()
	}
}

func (m *PipelineMetrics) addAcked(n int) {
	if m != nil {
		m.Acked.Add(float64(n))
	}
}

func (m *PipelineMetrics) addNacked(n int) {
	if m != nil {
		m.Nacked.Add(float64(n))
	}
}

func (m *PipelineMetrics) incSkipped() {
	if m != nil {
		m.Skipped.Inc()
	}
}

// IncDeadLettered records a message routed to the dead-letter topic.
func (m *PipelineMetrics) IncDeadLettered() {
	if m != nil {
		m.DeadLettered.Inc()
	}
}

func (m *PipelineMetrics) observeBatch(rows int) {
	if m != nil {
		m.Batches.Inc()
		m.Rows.Add(float64(rows))
	}
}
