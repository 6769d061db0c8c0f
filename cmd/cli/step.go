package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/num/quat"

	"jog_arm/controllers"
	"jog_arm/dispatch"
	"jog_arm/jog"
	"jog_arm/jogtarget"
	"jog_arm/jointstate"
	"jog_arm/kinematics"
)

// printPublisher writes every trajectory as one JSON line.
type printPublisher struct {
	out io.Writer
}

type printedTrajectory struct {
	Controller string    `json:"controller"`
	Topic      string    `json:"topic"`
	FrameID    string    `json:"frame_id"`
	Stamp      time.Time `json:"stamp"`
	JointNames []string  `json:"joint_names"`
	Positions  []float64 `json:"positions"`
	TimeFromS  float64   `json:"time_from_start_sec"`
}

func (p printPublisher) Publish(_ context.Context, info controllers.ControllerInfo, traj dispatch.Trajectory) error {
	if len(traj.Points) == 0 {
		return fmt.Errorf("empty trajectory for %s", info.Name)
	}
	return json.NewEncoder(p.out).Encode(printedTrajectory{
		Controller: info.Name,
		Topic:      info.CommandTopic(),
		FrameID:    traj.Header.FrameID,
		Stamp:      traj.Header.Stamp,
		JointNames: traj.JointNames,
		Positions:  traj.Points[0].Positions,
		TimeFromS:  traj.Points[0].TimeFromStart.Seconds(),
	})
}

type stepOptions struct {
	kinematicsURL   string
	controllersFile string
	frameID         string
	group           string
	link            string
	pose            []float64
	joints          map[string]string
	exclude         []string
	damping         float64
	timeout         time.Duration
	timeFromStart   time.Duration
}

func buildStepCommand(logger logging.Logger) *cobra.Command {
	opts := stepOptions{}

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run one jog step and print the trajectories it would send",
		Example: `  jogctl step --kinematics-url http://localhost:8080 -f controllers.yaml \
    --group manipulator --link tool0 --joint j1=0 --joint j2=0.3 \
    --pose 0.3,0,0.2,1,0,0,0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := runStep(cmd.Context(), opts, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "outcome: %s\n", outcome)
			if outcome != jog.OutcomeDispatched && outcome != jog.OutcomeConverged {
				return fmt.Errorf("step ended with %s", outcome)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.kinematicsURL, "kinematics-url", "", "base URL of the compute_fk/compute_ik bridge")
	f.StringVarP(&opts.controllersFile, "file", "f", "", "YAML file holding controller_list")
	f.StringVar(&opts.frameID, "frame-id", dispatch.TrajectoryFrame, "frame the pose is expressed in")
	f.StringVar(&opts.group, "group", "", "planning group name")
	f.StringVar(&opts.link, "link", "", "link to move")
	f.Float64SliceVar(&opts.pose, "pose", []float64{0, 0, 0, 1, 0, 0, 0}, "target pose as x,y,z,qw,qx,qy,qz")
	f.StringToStringVar(&opts.joints, "joint", nil, "current joint position as name=radians, repeatable")
	f.StringSliceVar(&opts.exclude, "exclude-joint", nil, "joints left out of the FK/IK seed")
	f.Float64Var(&opts.damping, "damping", jogtarget.DefaultDamping, "damping factor in [0.1, 1]")
	f.DurationVar(&opts.timeout, "timeout", kinematics.DefaultTimeout, "per-call kinematics timeout")
	f.DurationVar(&opts.timeFromStart, "time-from-start", dispatch.DefaultTimeFromStart, "trajectory point time_from_start")
	_ = cmd.MarkFlagRequired("kinematics-url")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runStep(ctx context.Context, opts stepOptions, out io.Writer, logger logging.Logger) (jog.Outcome, error) {
	if len(opts.pose) != 7 {
		return jog.OutcomeNone, fmt.Errorf("--pose needs 7 values, got %d", len(opts.pose))
	}
	registry, err := controllers.LoadFile(opts.controllersFile, logger)
	if err != nil {
		return jog.OutcomeNone, err
	}
	solver, err := kinematics.NewHTTPSolver(opts.kinematicsURL, &http.Client{})
	if err != nil {
		return jog.OutcomeNone, err
	}

	joints := jointstate.NewStore(opts.exclude)
	if len(opts.joints) > 0 {
		names := make([]string, 0, len(opts.joints))
		positions := make([]float64, 0, len(opts.joints))
		for name, raw := range opts.joints {
			v, err := cast.ToFloat64E(raw)
			if err != nil {
				return jog.OutcomeNone, fmt.Errorf("--joint %s: %w", name, err)
			}
			names = append(names, name)
			positions = append(positions, v)
		}
		if err := joints.Update(names, positions); err != nil {
			return jog.OutcomeNone, err
		}
	}

	clk := clock.New()
	targets := jogtarget.NewStore(jogtarget.Defaults{GroupName: opts.group, TargetLink: opts.link, DampingFactor: opts.damping})
	targets.Offer(jogtarget.Command{
		FrameID:         opts.frameID,
		GroupName:       opts.group,
		TargetLink:      opts.link,
		AvoidCollisions: true,
		DampingFactor:   opts.damping,
		Pose: kinematics.Pose{
			Position:    r3.Vector{X: opts.pose[0], Y: opts.pose[1], Z: opts.pose[2]},
			Orientation: quat.Number{Real: opts.pose[3], Imag: opts.pose[4], Jmag: opts.pose[5], Kmag: opts.pose[6]},
		},
		Stamp: clk.Now(),
	})

	dispatcher, err := dispatch.New(dispatch.ModePublish, registry, printPublisher{out: out}, nil, dispatch.Options{
		TimeFromStart: opts.timeFromStart,
		Clock:         clk,
	}, logger)
	if err != nil {
		return jog.OutcomeNone, err
	}
	defer dispatcher.Close()

	gateway := kinematics.NewGateway(solver, opts.timeout, clk, logger)
	engine := jog.NewEngine(targets, joints, gateway, dispatcher, jog.Options{Clock: clk}, logger)
	return engine.Step(ctx), nil
}
