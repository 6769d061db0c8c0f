package kinematics

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// DefaultTimeout bounds a single FK or IK call.
const DefaultTimeout = time.Second

var errNoPose = errors.New("response contains no pose")

// Gateway builds kinematics requests and validates the solver's responses.
// It never retries; a failed call aborts only the caller's current tick.
type Gateway struct {
	solver  Solver
	timeout time.Duration
	clock   clock.Clock
	logger  logging.Logger
}

// NewGateway returns a Gateway over solver. A zero timeout uses DefaultTimeout
// and a nil clock uses the wall clock.
func NewGateway(solver Solver, timeout time.Duration, clk clock.Clock, logger logging.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Gateway{
		solver:  solver,
		timeout: timeout,
		clock:   clk,
		logger:  logger,
	}
}

// ForwardKinematics returns the pose of link in frameID for the given joint state.
func (g *Gateway) ForwardKinematics(ctx context.Context, frameID, link string, state JointState) (PoseStamped, error) {
	req := FKRequest{
		Header:      Header{FrameID: frameID, Stamp: g.clock.Now()},
		FKLinkNames: []string{link},
		RobotState:  state,
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.solver.ComputeFK(ctx, req)
	if err != nil {
		return PoseStamped{}, &KinematicsError{Op: OpForward, Err: err}
	}
	if resp.ErrorCode != Success {
		g.logger.Debugf("fk request for %q in %q with %d joints rejected", link, frameID, len(state.Name))
		return PoseStamped{}, &KinematicsError{Op: OpForward, Code: resp.ErrorCode}
	}
	switch n := len(resp.PoseStamped); {
	case n == 0:
		return PoseStamped{}, &KinematicsError{Op: OpForward, Code: resp.ErrorCode, Err: errNoPose}
	case n > 1:
		for i, p := range resp.PoseStamped {
			g.logger.Warnf("fk[%d]: unexpected extra pose %+v", i, p.Pose)
		}
	}
	return resp.PoseStamped[0], nil
}

// InverseKinematics solves req and returns the full joint state solution.
func (g *Gateway) InverseKinematics(ctx context.Context, req IKRequest) (JointState, error) {
	// the solver's own search budget never outlasts the call deadline
	if req.Timeout <= 0 || req.Timeout > g.timeout {
		req.Timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.solver.ComputeIK(ctx, req)
	if err != nil {
		return JointState{}, &KinematicsError{Op: OpInverse, Err: err}
	}
	if resp.ErrorCode != Success {
		return JointState{}, &KinematicsError{Op: OpInverse, Code: resp.ErrorCode}
	}
	return resp.Solution, nil
}
