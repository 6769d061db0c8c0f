package jog_arm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/generic"
	goutils "go.viam.com/utils"

	"jog_arm/controllers"
	"jog_arm/dispatch"
	"jog_arm/jog"
	"jog_arm/jogtarget"
	"jog_arm/jointstate"
	"jog_arm/kinematics"
	"jog_arm/metrics"
)

var JogFrameModel = resource.NewModel("devrel", "jog", "jog-frame")

func init() {
	resource.RegisterService(
		generic.API,
		JogFrameModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newJogFrame,
		})
}

// jogFrame streams absolute end-effector targets into damped joint moves on
// the configured arms.
type jogFrame struct {
	resource.Named
	resource.AlwaysRebuild

	cfg    *Config
	logger logging.Logger
	clock  clock.Clock

	targets    *jogtarget.Store
	joints     *jointstate.Store
	registry   *controllers.Registry
	dispatcher dispatch.Dispatcher
	engine     *jog.Engine
	transport  *armTransport
	frames     *frameCache

	metrics       *metrics.Collector
	metricsServer *metrics.Server
	workers       *goutils.StoppableWorkers
}

func newJogFrame(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (resource.Resource, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	registry, err := controllers.Parse(cfg.ControllerList, logger)
	if err != nil {
		return nil, err
	}

	movers := make(map[string]jointMover, registry.Len())
	for _, name := range registry.Names() {
		res, err := deps.Lookup(arm.Named(name))
		if err != nil {
			return nil, fmt.Errorf("controller %q: %w", name, err)
		}
		a, ok := res.(arm.Arm)
		if !ok {
			return nil, fmt.Errorf("controller %q: %s is not an arm", name, res.Name())
		}
		movers[name] = a
	}

	solver, err := kinematics.NewHTTPSolver(cfg.KinematicsURL, &http.Client{})
	if err != nil {
		return nil, err
	}

	return newService(conf.ResourceName(), cfg, registry, movers, solver, clock.New(), logger)
}

// newService assembles the service from already resolved collaborators.
func newService(
	name resource.Name,
	cfg *Config,
	registry *controllers.Registry,
	movers map[string]jointMover,
	solver kinematics.Solver,
	clk clock.Clock,
	logger logging.Logger,
) (*jogFrame, error) {
	promRegistry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(promRegistry)
	if err != nil {
		return nil, err
	}

	transport, err := newArmTransport(registry, movers, logger)
	if err != nil {
		return nil, err
	}

	mode := cfg.dispatchMode(logger)
	dispatcher, err := dispatch.New(mode, registry, transport, transport, dispatch.Options{
		TimeFromStart: cfg.timeFromStart(),
		Clock:         clk,
		Metrics:       collector,
	}, logger)
	if err != nil {
		return nil, err
	}

	s := &jogFrame{
		Named:  name.AsNamed(),
		cfg:    cfg,
		logger: logger,
		clock:  clk,
		targets: jogtarget.NewStore(jogtarget.Defaults{
			GroupName:     cfg.defaultGroup(),
			TargetLink:    cfg.defaultLink(),
			DampingFactor: cfg.DefaultDamping,
		}),
		joints:     jointstate.NewStore(cfg.ExcludeJointNames),
		registry:   registry,
		dispatcher: dispatcher,
		transport:  transport,
		frames:     newFrameCache(),
		metrics:    collector,
	}

	gateway := kinematics.NewGateway(solver, cfg.kinematicsTimeout(), clk, logger)
	s.engine = jog.NewEngine(s.targets, s.joints, gateway, dispatcher, jog.Options{
		Intermittent: cfg.Intermittent,
		Clock:        clk,
		Metrics:      collector,
	}, logger)

	if cfg.MetricsAddr != "" {
		s.metricsServer, err = metrics.StartServer(cfg.MetricsAddr, promRegistry, logger)
		if err != nil {
			return nil, multierr.Combine(err, dispatcher.Close())
		}
	}

	loop := jog.NewLoop(s.engine, cfg.TickRateHz, clk, logger)
	feedbackPeriod := time.Duration(float64(time.Second) / cfg.FeedbackRateHz)
	workers := []func(context.Context){
		loop.Run,
		transport.feedbackWorker(s.joints, collector, feedbackPeriod, clk),
	}
	if mode == dispatch.ModePublish {
		workers = append(workers, transport.publishWorkers()...)
	}
	s.workers = goutils.NewBackgroundStoppableWorkers(workers...)

	logger.Infof("jog frame ready: %d controllers %v, %s dispatch, %v Hz",
		registry.Len(), registry.Names(), mode, cfg.TickRateHz)
	return s, nil
}

// Offer ingests one jog command. The raw pose is broadcast as the jog_goal
// frame whether or not the command is accepted.
func (s *jogFrame) Offer(cmd jogtarget.Command) bool {
	accepted := s.targets.Offer(cmd)
	s.metrics.RecordIngest("jog", accepted)
	if !accepted {
		s.logger.Debugf("ignoring jog command stamped %v", cmd.Stamp)
	}
	if *s.cfg.PublishTF {
		s.frames.Broadcast(jogGoalFrame, cmd.FrameID, cmd.Pose, cmd.Stamp)
	}
	return accepted
}

func (s *jogFrame) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "jog":
		jc, err := decodeJogCommand(cmd, s.cfg, s.clock.Now())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"accepted": s.Offer(jc)}, nil

	case "joint_state":
		names, positions, err := decodeJointState(cmd)
		if err != nil {
			return nil, err
		}
		err = s.joints.Update(names, positions)
		s.metrics.RecordIngest("joint_state", err == nil)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"joints": s.joints.Len()}, nil

	case "status":
		return s.status(), nil

	case "jog_goal":
		f, ok := s.frames.Latest(jogGoalFrame)
		if !ok {
			return map[string]interface{}{}, nil
		}
		return map[string]interface{}{
			"frame":  f.Name,
			"parent": f.Parent,
			"stamp":  f.Stamp.Format(time.RFC3339Nano),
			"pose":   poseToMap(f.Pose),
		}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (s *jogFrame) status() map[string]interface{} {
	goals := map[string]interface{}{}
	for name, state := range s.dispatcher.GoalStates() {
		goals[name] = state.String()
	}
	out := map[string]interface{}{
		"last_outcome": s.engine.LastOutcome().String(),
		"mode":         s.dispatcher.Mode().String(),
		"goal_states":  goals,
		"joints":       s.joints.Len(),
		"controllers":  lo.ToAnySlice(s.registry.Names()),
	}
	if t, ok := s.targets.Snapshot(); ok {
		out["target"] = map[string]interface{}{
			"frame_id":         t.FrameID,
			"group_name":       t.GroupName,
			"target_link":      t.TargetLink,
			"avoid_collisions": t.AvoidCollisions,
			"damping_factor":   t.DampingFactor,
			"accepted_at":      t.AcceptedAt.Format(time.RFC3339Nano),
			"pose":             poseToMap(t.Pose),
		}
	}
	return out
}

func (s *jogFrame) Close(ctx context.Context) error {
	s.workers.Stop()
	err := s.dispatcher.Close()
	if s.metricsServer != nil {
		err = multierr.Append(err, s.metricsServer.Close())
	}
	return err
}
