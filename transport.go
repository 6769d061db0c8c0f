package jog_arm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"golang.org/x/time/rate"

	"jog_arm/controllers"
	"jog_arm/dispatch"
	"jog_arm/jointstate"
	"jog_arm/metrics"
)

// jointMover is the part of arm.Arm the transport uses.
type jointMover interface {
	MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error
	JointPositions(ctx context.Context, extra map[string]interface{}) ([]referenceframe.Input, error)
	Stop(ctx context.Context, extra map[string]interface{}) error
}

var errSuperseded = errors.New("superseded by a newer goal before it started")

// armSlot admits one executing goal per arm plus at most one waiting goal.
type armSlot struct {
	busy chan struct{}

	mu     sync.Mutex
	waiter chan struct{}
}

// enqueue evicts the current waiter, if any, and returns the new waiter's
// eviction channel.
func (s *armSlot) enqueue() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiter != nil {
		close(s.waiter)
	}
	s.waiter = make(chan struct{})
	return s.waiter
}

// admitted clears kick as the waiter and reports whether it was evicted
// meanwhile.
func (s *armSlot) admitted(kick chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-kick:
		return false
	default:
	}
	if s.waiter == kick {
		s.waiter = nil
	}
	return true
}

// armTransport carries trajectories to arms and joint feedback back from
// them. Each controller maps to the arm of the same name, with the
// controller's joint list naming the arm's joints in order.
type armTransport struct {
	registry *controllers.Registry
	movers   map[string]jointMover
	// Latest pending publish per controller. A newer trajectory replaces one
	// that has not been picked up yet.
	pending map[string]chan []referenceframe.Input
	slots   map[string]*armSlot

	logger   logging.Logger
	moveWarn rate.Sometimes
	readWarn rate.Sometimes
}

func newArmTransport(registry *controllers.Registry, movers map[string]jointMover, logger logging.Logger) (*armTransport, error) {
	t := &armTransport{
		registry: registry,
		movers:   movers,
		pending:  make(map[string]chan []referenceframe.Input, len(movers)),
		slots:    make(map[string]*armSlot, len(movers)),
		logger:   logger,
		moveWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
		readWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	for _, name := range registry.Names() {
		if _, ok := movers[name]; !ok {
			return nil, fmt.Errorf("no arm for controller %q", name)
		}
		t.pending[name] = make(chan []referenceframe.Input, 1)
		t.slots[name] = &armSlot{busy: make(chan struct{}, 1)}
	}
	return t, nil
}

func (t *armTransport) inputs(info controllers.ControllerInfo, traj dispatch.Trajectory) (jointMover, []referenceframe.Input, error) {
	m, ok := t.movers[info.Name]
	if !ok {
		return nil, nil, fmt.Errorf("no arm for controller %q", info.Name)
	}
	if len(traj.Points) != 1 {
		return nil, nil, fmt.Errorf("expected a single point trajectory, got %d points", len(traj.Points))
	}
	return m, slices.Clone(traj.Points[0].Positions), nil
}

// Publish queues traj for the controller's publish worker and returns at once.
func (t *armTransport) Publish(_ context.Context, info controllers.ControllerInfo, traj dispatch.Trajectory) error {
	_, in, err := t.inputs(info, traj)
	if err != nil {
		return err
	}
	ch := t.pending[info.Name]
	for {
		select {
		case ch <- in:
			return nil
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// publishWorkers returns one worker per controller that moves its arm to the
// latest published trajectory.
func (t *armTransport) publishWorkers() []func(context.Context) {
	workers := make([]func(context.Context), 0, len(t.pending))
	for _, name := range t.registry.Names() {
		name, ch, m := name, t.pending[name], t.movers[name]
		workers = append(workers, func(ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case in := <-ch:
					if err := m.MoveToJointPositions(ctx, in, nil); err != nil && ctx.Err() == nil {
						t.moveWarn.Do(func() {
							t.logger.Warnf("moving %s: %v", name, err)
						})
					}
				}
			}
		})
	}
	return workers
}

// Execute moves the arm and blocks until it arrives. If ctx ends first the
// arm is stopped. Goals for one arm never move it concurrently: a goal waits
// for the running one to finish, and a newer goal evicts a waiting one with
// errSuperseded. The running goal is never cancelled.
func (t *armTransport) Execute(ctx context.Context, info controllers.ControllerInfo, traj dispatch.Trajectory) error {
	m, in, err := t.inputs(info, traj)
	if err != nil {
		return err
	}
	slot := t.slots[info.Name]

	kick := slot.enqueue()
	select {
	case slot.busy <- struct{}{}:
	case <-kick:
		return errSuperseded
	case <-ctx.Done():
		slot.admitted(kick)
		return ctx.Err()
	}
	defer func() { <-slot.busy }()
	if !slot.admitted(kick) {
		return errSuperseded
	}

	err = m.MoveToJointPositions(ctx, in, nil)
	if ctx.Err() != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if stopErr := m.Stop(stopCtx, nil); stopErr != nil {
			t.logger.Warnf("stopping %s: %v", info.Name, stopErr)
		}
		return ctx.Err()
	}
	return errors.Wrapf(err, "moving %s", info.Name)
}

// poll reads every arm's joint positions once and stores them.
func (t *armTransport) poll(ctx context.Context, joints *jointstate.Store, m *metrics.Collector) {
	for _, info := range t.registry.Controllers() {
		in, err := t.movers[info.Name].JointPositions(ctx, nil)
		if err != nil {
			if ctx.Err() == nil {
				t.readWarn.Do(func() {
					t.logger.Warnf("reading joint positions of %s: %v", info.Name, err)
				})
			}
			continue
		}
		err = joints.Update(info.Joints, slices.Clone(in))
		m.RecordIngest("joint_state", err == nil)
		if err != nil {
			t.readWarn.Do(func() {
				t.logger.Warnf("dropping feedback from %s: %v", info.Name, err)
			})
		}
	}
}

// feedbackWorker polls the arms every period until ctx is done.
func (t *armTransport) feedbackWorker(joints *jointstate.Store, m *metrics.Collector, period time.Duration, clk clock.Clock) func(context.Context) {
	return func(ctx context.Context) {
		ticker := clk.Ticker(period)
		defer ticker.Stop()

		t.poll(ctx, joints, m)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.poll(ctx, joints, m)
			}
		}
	}
}
