package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"jog_arm/controllers"
	"jog_arm/kinematics"
	"jog_arm/metrics"
)

// Mode selects how trajectories reach the controllers.
type Mode int

const (
	// ModePublish sends each trajectory once with no completion tracking.
	ModePublish Mode = iota
	// ModeGoal sends each trajectory as an asynchronously tracked goal.
	ModeGoal
)

func (m Mode) String() string {
	switch m {
	case ModePublish:
		return "publish"
	case ModeGoal:
		return "goal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// GoalState is the per-controller goal status.
type GoalState int

const (
	Idle GoalState = iota
	Active
	Succeeded
	Failed
)

func (s GoalState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("GoalState(%d)", int(s))
	}
}

// Publisher sends a trajectory to a controller without waiting for it to run.
type Publisher interface {
	Publish(ctx context.Context, info controllers.ControllerInfo, traj Trajectory) error
}

// GoalClient executes a trajectory on a controller, blocking until the
// controller reports completion or ctx is done.
type GoalClient interface {
	Execute(ctx context.Context, info controllers.ControllerInfo, traj Trajectory) error
}

// Dispatcher sends IK solutions to every registered controller.
type Dispatcher interface {
	// Dispatch returns the number of controllers a trajectory was sent to and
	// the combined error of the ones that were skipped or failed.
	Dispatch(ctx context.Context, solution kinematics.JointState) (int, error)
	AnyActive() bool
	GoalStates() map[string]GoalState
	Mode() Mode
	Close() error
}

// Options tune a Dispatcher.
type Options struct {
	TimeFromStart time.Duration
	Clock         clock.Clock
	Metrics       *metrics.Collector
}

// New returns the dispatcher for mode. The mode is fixed for the dispatcher's
// lifetime.
func New(
	mode Mode,
	registry *controllers.Registry,
	pub Publisher,
	goals GoalClient,
	opts Options,
	logger logging.Logger,
) (Dispatcher, error) {
	b := newBase(registry, opts, logger)
	switch mode {
	case ModePublish:
		if pub == nil {
			return nil, fmt.Errorf("publish mode requires a publisher")
		}
		return &PublishDispatcher{base: b, pub: pub}, nil
	case ModeGoal:
		if goals == nil {
			return nil, fmt.Errorf("goal mode requires a goal client")
		}
		return newGoalDispatcher(b, goals), nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %v", mode)
	}
}

type base struct {
	registry      *controllers.Registry
	timeFromStart time.Duration
	clock         clock.Clock
	metrics       *metrics.Collector
	logger        logging.Logger
}

func newBase(registry *controllers.Registry, opts Options, logger logging.Logger) base {
	if opts.TimeFromStart <= 0 {
		opts.TimeFromStart = DefaultTimeFromStart
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return base{
		registry:      registry,
		timeFromStart: opts.TimeFromStart,
		clock:         opts.Clock,
		metrics:       opts.Metrics,
		logger:        logger,
	}
}

type job struct {
	info controllers.ControllerInfo
	traj Trajectory
}

// jobs builds one trajectory per controller in registry order. Controllers
// whose joints are missing from solution are skipped with a warning.
func (b *base) jobs(solution kinematics.JointState) ([]job, error) {
	stamp := b.clock.Now()
	var (
		out  []job
		errs error
	)
	for _, info := range b.registry.Controllers() {
		traj, err := BuildTrajectory(info, solution, b.timeFromStart, stamp)
		if err != nil {
			b.logger.Warnf("skipping %s: %v", info.Name, err)
			b.metrics.RecordDispatch(info.Name, false)
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, job{info: info, traj: traj})
	}
	return out, errs
}

func (b *base) idleStates() map[string]GoalState {
	states := make(map[string]GoalState, b.registry.Len())
	for _, name := range b.registry.Names() {
		states[name] = Idle
	}
	return states
}

// PublishDispatcher sends trajectories fire-and-forget. Goal states stay Idle.
type PublishDispatcher struct {
	base
	pub Publisher
}

func (d *PublishDispatcher) Mode() Mode { return ModePublish }

func (d *PublishDispatcher) Dispatch(ctx context.Context, solution kinematics.JointState) (int, error) {
	jobs, errs := d.jobs(solution)
	sent := 0
	for _, j := range jobs {
		if err := d.pub.Publish(ctx, j.info, j.traj); err != nil {
			d.metrics.RecordDispatch(j.info.Name, false)
			errs = multierr.Append(errs, fmt.Errorf("publishing to %s: %w", j.info.CommandTopic(), err))
			continue
		}
		d.metrics.RecordDispatch(j.info.Name, true)
		sent++
	}
	return sent, errs
}

func (d *PublishDispatcher) AnyActive() bool { return false }

func (d *PublishDispatcher) GoalStates() map[string]GoalState { return d.idleStates() }

func (d *PublishDispatcher) Close() error { return nil }
