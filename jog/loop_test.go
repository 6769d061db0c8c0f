package jog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

type countingStepper struct {
	n atomic.Int32
}

func (s *countingStepper) Step(context.Context) Outcome {
	s.n.Add(1)
	return OutcomeConverged
}

func TestNewLoopPeriod(t *testing.T) {
	logger := logging.NewTestLogger(t)
	assert.Equal(t, 100*time.Millisecond, NewLoop(nil, 0, nil, logger).Period())
	assert.Equal(t, 50*time.Millisecond, NewLoop(nil, 20, nil, logger).Period())
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	mock := clock.NewMock()
	stepper := &countingStepper{}
	loop := NewLoop(stepper, 10, mock, logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mock.Add(loop.Period())
		return stepper.n.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	n := stepper.n.Load()
	mock.Add(10 * loop.Period())
	assert.Equal(t, n, stepper.n.Load())
}
