// Package jog runs the per-tick jog step: read the current pose, take a damped
// step toward the latest target, solve IK for it and hand the solution to the
// trajectory dispatcher.
package jog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/rdk/logging"
	"golang.org/x/time/rate"

	"jog_arm/jogtarget"
	"jog_arm/kinematics"
	"jog_arm/metrics"
)

// Outcome is the result of a single tick.
type Outcome int32

const (
	OutcomeNone Outcome = iota
	OutcomeNoTarget
	OutcomeGoalActive
	OutcomeFKFailed
	OutcomeInvalidQuaternion
	OutcomeConverged
	OutcomeIKFailed
	OutcomeDiscontinuity
	OutcomeDispatched
	OutcomeDispatchFailed
)

var outcomeNames = [...]string{
	OutcomeNone:              "none",
	OutcomeNoTarget:          "no_target",
	OutcomeGoalActive:        "goal_active",
	OutcomeFKFailed:          "fk_failed",
	OutcomeInvalidQuaternion: "invalid_quaternion",
	OutcomeConverged:         "converged",
	OutcomeIKFailed:          "ik_failed",
	OutcomeDiscontinuity:     "discontinuity",
	OutcomeDispatched:        "dispatched",
	OutcomeDispatchFailed:    "dispatch_failed",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// TargetSource supplies the latest accepted jog target.
type TargetSource interface {
	Snapshot() (jogtarget.Target, bool)
}

// JointSource supplies the current joint state with exclusions applied.
type JointSource interface {
	Snapshot() kinematics.JointState
}

// Kinematics is the FK/IK gateway.
type Kinematics interface {
	ForwardKinematics(ctx context.Context, frameID, link string, state kinematics.JointState) (kinematics.PoseStamped, error)
	InverseKinematics(ctx context.Context, req kinematics.IKRequest) (kinematics.JointState, error)
}

// Dispatcher sends an IK solution to the joint controllers.
type Dispatcher interface {
	// Dispatch returns how many controllers were sent a trajectory.
	Dispatch(ctx context.Context, solution kinematics.JointState) (int, error)
	// AnyActive reports whether a goal is still executing on any controller.
	AnyActive() bool
}

// Options tune an Engine.
type Options struct {
	// Intermittent skips ticks while any dispatched goal is still active.
	Intermittent bool
	Clock        clock.Clock
	Metrics      *metrics.Collector
}

// Engine executes jog steps. Step is not safe for concurrent use; the stores
// it reads are.
type Engine struct {
	targets    TargetSource
	joints     JointSource
	kin        Kinematics
	dispatcher Dispatcher
	opts       Options
	logger     logging.Logger

	last atomic.Int32

	fkWarn rate.Sometimes
	ikWarn rate.Sometimes
}

// NewEngine wires an Engine to its collaborators.
func NewEngine(
	targets TargetSource,
	joints JointSource,
	kin Kinematics,
	dispatcher Dispatcher,
	opts Options,
	logger logging.Logger,
) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Engine{
		targets:    targets,
		joints:     joints,
		kin:        kin,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		fkWarn:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
		ikWarn:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// LastOutcome returns the outcome of the most recent Step.
func (e *Engine) LastOutcome() Outcome {
	return Outcome(e.last.Load())
}

// Step runs one tick. Every failure is local to the tick; nothing is carried
// over to the next one.
func (e *Engine) Step(ctx context.Context) Outcome {
	o := e.step(ctx)
	e.last.Store(int32(o))
	e.opts.Metrics.RecordTick(o.String())
	return o
}

func (e *Engine) step(ctx context.Context) Outcome {
	target, ok := e.targets.Snapshot()
	if !ok {
		return OutcomeNoTarget
	}
	if e.opts.Intermittent && e.dispatcher.AnyActive() {
		return OutcomeGoalActive
	}

	state := e.joints.Snapshot()

	start := e.opts.Clock.Now()
	actual, err := e.kin.ForwardKinematics(ctx, target.FrameID, target.TargetLink, state)
	e.opts.Metrics.ObserveKinematics(string(kinematics.OpForward), e.opts.Clock.Since(start))
	if err != nil {
		e.fkWarn.Do(func() {
			e.logger.Warnf("cannot get current pose of %q in %q: %v", target.TargetLink, target.FrameID, err)
		})
		return OutcomeFKFailed
	}

	cand := ComputeCandidate(actual.Pose, target.Pose, target.DampingFactor)
	if err := ValidatePoses(actual.Pose, target.Pose, cand.Pose); err != nil {
		e.logger.Errorf("aborting jog step: %v", err)
		return OutcomeInvalidQuaternion
	}
	if cand.Converged() {
		return OutcomeConverged
	}

	start = e.opts.Clock.Now()
	solution, err := e.kin.InverseKinematics(ctx, kinematics.IKRequest{
		GroupName:       target.GroupName,
		IKLinkName:      target.TargetLink,
		RobotState:      state,
		AvoidCollisions: target.AvoidCollisions,
		PoseStamped: kinematics.PoseStamped{
			Header: kinematics.Header{FrameID: target.FrameID, Stamp: e.opts.Clock.Now()},
			Pose:   cand.Pose,
		},
	})
	e.opts.Metrics.ObserveKinematics(string(kinematics.OpInverse), e.opts.Clock.Since(start))
	if err != nil {
		e.ikWarn.Do(func() {
			e.logger.Warnf("no IK solution for %q (%.4f m, %.4f rad away): %v",
				target.TargetLink, cand.PositionDistance, cand.OrientationDistance, err)
		})
		return OutcomeIKFailed
	}

	if jumps := CheckContinuity(state, solution); len(jumps) > 0 {
		for _, j := range jumps {
			e.logger.Errorf("joint %s would jump from %.3f to %.3f (%.3f rad), aborting jog step",
				j.Joint, j.Current, j.Solution, j.Delta)
		}
		return OutcomeDiscontinuity
	}

	sent, err := e.dispatcher.Dispatch(ctx, solution)
	if err != nil {
		e.logger.Warnf("dispatch: %v", err)
		if sent == 0 {
			return OutcomeDispatchFailed
		}
	}
	e.logger.Debugf("jog step sent to %d controllers, %.4f m and %.4f rad from target",
		sent, cand.PositionDistance, cand.OrientationDistance)
	return OutcomeDispatched
}
