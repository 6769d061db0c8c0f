package jog

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"
)

// DefaultRateHz is the nominal control rate.
const DefaultRateHz = 10.0

// Stepper runs one control tick.
type Stepper interface {
	Step(ctx context.Context) Outcome
}

// Loop drives a Stepper at a fixed rate. Ticks that fall behind are dropped,
// never caught up.
type Loop struct {
	stepper Stepper
	period  time.Duration
	clock   clock.Clock
	logger  logging.Logger
}

// NewLoop returns a loop ticking rateHz times a second. A non-positive rate
// uses DefaultRateHz; a nil clock uses the wall clock.
func NewLoop(stepper Stepper, rateHz float64, clk clock.Clock, logger logging.Logger) *Loop {
	if rateHz <= 0 {
		rateHz = DefaultRateHz
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		stepper: stepper,
		period:  time.Duration(float64(time.Second) / rateHz),
		clock:   clk,
		logger:  logger,
	}
}

// Period is the time between ticks.
func (l *Loop) Period() time.Duration {
	return l.period
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.clock.Ticker(l.period)
	defer ticker.Stop()

	l.logger.Infof("jog loop running every %v", l.period)
	last := OutcomeNone
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("jog loop stopped")
			return
		case <-ticker.C:
			o := l.stepper.Step(ctx)
			if o != last {
				l.logger.Debugf("jog step: %v -> %v", last, o)
				last = o
			}
		}
	}
}
