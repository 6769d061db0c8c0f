package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"jog_arm/kinematics"
)

var errClosed = errors.New("dispatcher closed")

type goal struct {
	id    uuid.UUID
	state GoalState
}

// GoalDispatcher sends each trajectory as a goal and tracks its state per
// controller. A newer goal supersedes the previous one for that controller
// without cancelling it; the older goal's completion is then ignored.
type GoalDispatcher struct {
	base
	client GoalClient

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	goals  map[string]*goal
	closed bool
}

func newGoalDispatcher(b base, client GoalClient) *GoalDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoalDispatcher{
		base:   b,
		client: client,
		ctx:    ctx,
		cancel: cancel,
		goals:  make(map[string]*goal),
	}
}

func (d *GoalDispatcher) Mode() Mode { return ModeGoal }

// Dispatch starts one goal per controller and returns without waiting for any
// of them. Goals outlive ctx; they stop on Close.
func (d *GoalDispatcher) Dispatch(_ context.Context, solution kinematics.JointState) (int, error) {
	jobs, errs := d.jobs(solution)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errClosed
	}

	for _, j := range jobs {
		id := uuid.New()
		d.goals[j.info.Name] = &goal{id: id, state: Active}
		d.metrics.RecordDispatch(j.info.Name, true)
		d.metrics.GoalStarted()
		d.logger.Debugf("goal %s sent to %s", id, j.info.ActionName())

		d.wg.Add(1)
		go func(j job, id uuid.UUID) {
			defer d.wg.Done()
			err := d.client.Execute(d.ctx, j.info, j.traj)
			d.finish(j.info.Name, id, err)
		}(j, id)
	}
	return len(jobs), errs
}

func (d *GoalDispatcher) finish(controller string, id uuid.UUID, err error) {
	d.metrics.GoalFinished(controller, err == nil)

	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.goals[controller]
	if !ok || g.id != id {
		d.logger.Debugf("goal %s on %s superseded", id, controller)
		return
	}
	if err != nil {
		g.state = Failed
		if !errors.Is(err, context.Canceled) {
			d.logger.Warnf("goal %s on %s failed: %v", id, controller, err)
		}
		return
	}
	g.state = Succeeded
}

// AnyActive reports whether any controller's latest goal is still running.
func (d *GoalDispatcher) AnyActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.SomeBy(lo.Values(d.goals), func(g *goal) bool {
		return g.state == Active
	})
}

// GoalStates returns the state of every registered controller.
func (d *GoalDispatcher) GoalStates() map[string]GoalState {
	states := d.idleStates()
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, g := range d.goals {
		states[name] = g.state
	}
	return states
}

// Close cancels outstanding goals and waits for them to return.
func (d *GoalDispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}
