package messagepipeline_test

import (
	"testing"

	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := messagepipeline.NewPipelineMetrics(reg, "ingest")
	require.NoError(t, err)

	m.IncDeadLettered()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeadLettered))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	// The same pipeline name cannot be registered twice.
	_, err = messagepipeline.NewPipelineMetrics(reg, "ingest")
	assert.Error(t, err)
}

func TestPipelineMetrics_NilIsSafe(t *testing.T) {
	var m *messagepipeline.PipelineMetrics
	assert.NotPanics(t, m.IncDeadLettered)
}
