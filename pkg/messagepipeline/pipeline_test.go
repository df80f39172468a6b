package messagepipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/beaver/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuntimeOptions(t *testing.T) {
	rt := messagepipeline.DefaultRuntimeOptions()
	assert.Equal(t, 5, rt.NumWorkers)
	assert.Equal(t, 100, rt.MaxOutstandingMessages)
	assert.Equal(t, 100, rt.Batch.BatchSize)
	assert.Equal(t, 5*time.Second, rt.Batch.FlushTimeout)
}

func TestPipeline_RunStopsOnCancel(t *testing.T) {
	service, consumer, processor := newTestService(t, passingTransformer)

	var closed []string
	p := messagepipeline.NewPipeline("test", service, zerolog.Nop(),
		func() error { closed = append(closed, "first"); return nil },
		func() error { closed = append(closed, "second"); return errors.New("close failed") },
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return consumer.GetStartCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "close failed")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, []string{"first", "second"}, closed)
	assert.Equal(t, 1, processor.GetStopCount())
}

func TestPipeline_StartFailureRunsClosers(t *testing.T) {
	service, consumer, _ := newTestService(t, passingTransformer)
	consumer.SetStartError(errors.New("boom"))

	closedCount := 0
	p := messagepipeline.NewPipeline("test", service, zerolog.Nop(), func() error { closedCount++; return nil })

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline test")
	assert.Equal(t, 1, closedCount)
}

func TestPipeline_RunFailsWhenSourceStops(t *testing.T) {
	testCases := []struct {
		name    string
		failErr error
		wantErr error
	}{
		{name: "source reports an error", failErr: errSubscriptionGone, wantErr: errSubscriptionGone},
		{name: "source reports nothing", wantErr: messagepipeline.ErrSourceStopped},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, consumer, processor := newTestService(t, passingTransformer)
			closedCount := 0
			p := messagepipeline.NewPipeline("test", service, zerolog.Nop(), func() error { closedCount++; return nil })

			errCh := make(chan error, 1)
			go func() { errCh <- p.Run(context.Background()) }()
			require.Eventually(t, func() bool { return consumer.GetStartCount() == 1 }, time.Second, 5*time.Millisecond)

			consumer.Fail(tc.failErr)

			select {
			case err := <-errCh:
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), "pipeline test")
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after the source stopped")
			}
			assert.Equal(t, 1, processor.GetStopCount())
			assert.Equal(t, 1, closedCount)
		})
	}
}

var errSubscriptionGone = errors.New("subscription deleted")
