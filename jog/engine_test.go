package jog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/num/quat"

	"jog_arm/jog"
	"jog_arm/jogtarget"
	"jog_arm/jointstate"
	"jog_arm/kinematics"
	"jog_arm/kinematics/kinematicstest"
	"jog_arm/metrics"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	solutions []kinematics.JointState
	active    bool
	sent      int
	err       error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, solution kinematics.JointState) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.solutions = append(d.solutions, solution)
	return d.sent, d.err
}

func (d *fakeDispatcher) AnyActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *fakeDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.solutions)
}

type fixture struct {
	clock      *clock.Mock
	targets    *jogtarget.Store
	joints     *jointstate.Store
	solver     *kinematicstest.Solver
	dispatcher *fakeDispatcher
	registry   *prometheus.Registry
	engine     *jog.Engine
}

func newFixture(t *testing.T, intermittent bool) *fixture {
	t.Helper()
	logger := logging.NewTestLogger(t)
	f := &fixture{
		clock:      clock.NewMock(),
		targets:    jogtarget.NewStore(jogtarget.Defaults{GroupName: "manipulator", TargetLink: "tool0"}),
		joints:     jointstate.NewStore([]string{"gripper"}),
		solver:     &kinematicstest.Solver{},
		dispatcher: &fakeDispatcher{sent: 1},
		registry:   prometheus.NewRegistry(),
	}
	f.clock.Set(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))

	collector, err := metrics.NewCollector(f.registry)
	require.NoError(t, err)

	gateway := kinematics.NewGateway(f.solver, time.Second, f.clock, logger)
	f.engine = jog.NewEngine(f.targets, f.joints, gateway, f.dispatcher, jog.Options{
		Intermittent: intermittent,
		Clock:        f.clock,
		Metrics:      collector,
	}, logger)

	require.NoError(t, f.joints.Update([]string{"j1", "gripper"}, []float64{0, 0.02}))
	return f
}

func (f *fixture) jog(t *testing.T, pose kinematics.Pose, damping float64) {
	t.Helper()
	require.True(t, f.targets.Offer(jogtarget.Command{
		FrameID:         "base_link",
		GroupName:       "manipulator",
		TargetLink:      "tool0",
		AvoidCollisions: true,
		DampingFactor:   damping,
		Pose:            pose,
		Stamp:           f.clock.Now(),
	}))
	f.clock.Add(time.Millisecond)
}

var origin = kinematics.Pose{Orientation: quat.Number{Real: 1}}

func TestStepDispatchesDampedStep(t *testing.T) {
	f := newFixture(t, false)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{
		Name:     []string{"j1"},
		Position: []float64{0.1},
	})
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.01}, Orientation: quat.Number{Real: 1}}, 0.5)

	assert.Equal(t, jog.OutcomeDispatched, f.engine.Step(context.Background()))
	assert.Equal(t, jog.OutcomeDispatched, f.engine.LastOutcome())

	fk := f.solver.FKRequests()
	require.Len(t, fk, 1)
	assert.Equal(t, "base_link", fk[0].Header.FrameID)
	assert.Equal(t, []string{"tool0"}, fk[0].FKLinkNames)
	assert.Equal(t, []string{"j1"}, fk[0].RobotState.Name, "excluded joints are left out")

	ik := f.solver.IKRequests()
	require.Len(t, ik, 1)
	assert.Equal(t, "manipulator", ik[0].GroupName)
	assert.Equal(t, "tool0", ik[0].IKLinkName)
	assert.True(t, ik[0].AvoidCollisions)
	assert.Equal(t, "base_link", ik[0].PoseStamped.Header.FrameID)
	assert.Equal(t, f.clock.Now(), ik[0].PoseStamped.Header.Stamp)
	assert.InDelta(t, 0.005, ik[0].PoseStamped.Pose.Position.X, 1e-12)
	assert.Equal(t, quat.Number{Real: 1}, ik[0].PoseStamped.Pose.Orientation)
	assert.Equal(t, []string{"j1"}, ik[0].RobotState.Name)
	assert.Equal(t, time.Second, ik[0].Timeout)

	require.Equal(t, 1, f.dispatcher.calls())
	assert.Equal(t, []float64{0.1}, f.dispatcher.solutions[0].Position)

	n, err := testutil.GatherAndCount(f.registry, "jog_kinematics_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStepWithoutTarget(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, jog.OutcomeNoTarget, f.engine.Step(context.Background()))
	assert.Empty(t, f.solver.FKRequests())
	assert.Zero(t, f.dispatcher.calls())
}

func TestStepIgnoresEpochStampedCommand(t *testing.T) {
	f := newFixture(t, false)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{
		Name:     []string{"j1"},
		Position: []float64{0.1},
	})
	assert.False(t, f.targets.Offer(jogtarget.Command{
		FrameID:    "base_link",
		GroupName:  "manipulator",
		TargetLink: "tool0",
		Pose:       kinematics.Pose{Position: r3.Vector{X: 0.01}, Orientation: quat.Number{Real: 1}},
		Stamp:      time.Unix(0, 0),
	}))

	assert.Equal(t, jog.OutcomeNoTarget, f.engine.Step(context.Background()))
	assert.Empty(t, f.solver.FKRequests())
	assert.Zero(t, f.dispatcher.calls())
}

func TestStepFKFailure(t *testing.T) {
	for name, fk := range map[string]func(context.Context, kinematics.FKRequest) (kinematics.FKResponse, error){
		"status": func(context.Context, kinematics.FKRequest) (kinematics.FKResponse, error) {
			return kinematics.FKResponse{ErrorCode: kinematics.InvalidLinkName}, nil
		},
		"transport": func(context.Context, kinematics.FKRequest) (kinematics.FKResponse, error) {
			return kinematics.FKResponse{}, errors.New("connection refused")
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, false)
			f.solver.ComputeFKFunc = fk
			f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)

			targetBefore, _ := f.targets.Snapshot()
			jointsBefore := f.joints.Snapshot()

			assert.Equal(t, jog.OutcomeFKFailed, f.engine.Step(context.Background()))
			assert.Len(t, f.solver.FKRequests(), 1)
			assert.Empty(t, f.solver.IKRequests())
			assert.Zero(t, f.dispatcher.calls())

			targetAfter, _ := f.targets.Snapshot()
			assert.Equal(t, targetBefore, targetAfter)
			assert.Equal(t, jointsBefore, f.joints.Snapshot())
		})
	}
}

func TestStepIntermittentGate(t *testing.T) {
	f := newFixture(t, true)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{Name: []string{"j1"}, Position: []float64{0.1}})
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)

	f.dispatcher.active = true
	assert.Equal(t, jog.OutcomeGoalActive, f.engine.Step(context.Background()))
	assert.Empty(t, f.solver.FKRequests())
	assert.Empty(t, f.solver.IKRequests())

	f.dispatcher.active = false
	assert.Equal(t, jog.OutcomeDispatched, f.engine.Step(context.Background()))
}

func TestStepActiveGoalWithoutIntermittent(t *testing.T) {
	f := newFixture(t, false)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{Name: []string{"j1"}, Position: []float64{0.1}})
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)
	f.dispatcher.active = true

	assert.Equal(t, jog.OutcomeDispatched, f.engine.Step(context.Background()))
}

func TestStepConverged(t *testing.T) {
	f := newFixture(t, false)
	target := kinematics.Pose{Position: r3.Vector{X: 0.3, Y: 0.1}, Orientation: quat.Number{Real: 1}}
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(kinematics.Pose{
		Position:    r3.Vector{X: 0.3004, Y: 0.1},
		Orientation: quat.Number{Real: 1},
	})
	f.jog(t, target, 0.5)

	assert.Equal(t, jog.OutcomeConverged, f.engine.Step(context.Background()))
	assert.Empty(t, f.solver.IKRequests())
	assert.Zero(t, f.dispatcher.calls())
}

func TestStepInvalidQuaternion(t *testing.T) {
	f := newFixture(t, false)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{}}, 0.5)

	assert.Equal(t, jog.OutcomeInvalidQuaternion, f.engine.Step(context.Background()))
	assert.Empty(t, f.solver.IKRequests())
	assert.Zero(t, f.dispatcher.calls())
}

func TestStepIKFailure(t *testing.T) {
	f := newFixture(t, false)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = func(context.Context, kinematics.IKRequest) (kinematics.IKResponse, error) {
		return kinematics.IKResponse{ErrorCode: kinematics.NoIKSolution}, nil
	}
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)

	assert.Equal(t, jog.OutcomeIKFailed, f.engine.Step(context.Background()))
	assert.Zero(t, f.dispatcher.calls())
}

func TestStepDiscontinuityAbortsWholeTick(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.joints.Update([]string{"j2"}, []float64{0.5}))
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{
		Name:     []string{"j1", "j2"},
		Position: []float64{2.5, 0.51},
	})
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)

	assert.Equal(t, jog.OutcomeDiscontinuity, f.engine.Step(context.Background()))
	assert.Zero(t, f.dispatcher.calls())
}

func TestStepDispatchFailure(t *testing.T) {
	f := newFixture(t, false)
	f.solver.ComputeFKFunc = kinematicstest.FixedFK(origin)
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{Name: []string{"j1"}, Position: []float64{0.1}})
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)

	f.dispatcher.sent = 0
	f.dispatcher.err = errors.New("arm unreachable")
	assert.Equal(t, jog.OutcomeDispatchFailed, f.engine.Step(context.Background()))

	f.dispatcher.sent = 1
	assert.Equal(t, jog.OutcomeDispatched, f.engine.Step(context.Background()), "partial failure still dispatches")
}

func TestStepIndependentTicks(t *testing.T) {
	f := newFixture(t, false)
	fail := true
	f.solver.ComputeFKFunc = func(ctx context.Context, req kinematics.FKRequest) (kinematics.FKResponse, error) {
		if fail {
			return kinematics.FKResponse{ErrorCode: kinematics.TimedOut}, nil
		}
		return kinematicstest.FixedFK(origin)(ctx, req)
	}
	f.solver.ComputeIKFunc = kinematicstest.FixedIK(kinematics.JointState{Name: []string{"j1"}, Position: []float64{0.1}})
	f.jog(t, kinematics.Pose{Position: r3.Vector{X: 0.2}, Orientation: quat.Number{Real: 1}}, 0.5)

	assert.Equal(t, jog.OutcomeFKFailed, f.engine.Step(context.Background()))
	fail = false
	assert.Equal(t, jog.OutcomeDispatched, f.engine.Step(context.Background()))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "dispatched", jog.OutcomeDispatched.String())
	assert.Equal(t, "goal_active", jog.OutcomeGoalActive.String())
	assert.Equal(t, "unknown", jog.Outcome(99).String())
}
