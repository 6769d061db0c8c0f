// Package dispatch turns IK solutions into per-controller single-point
// trajectories and sends them either as fire-and-forget publishes or as
// tracked goals.
package dispatch

import (
	"fmt"
	"strings"
	"time"

	"jog_arm/controllers"
	"jog_arm/kinematics"
)

// TrajectoryFrame is the header frame of every outgoing trajectory.
const TrajectoryFrame = "base_link"

// DefaultTimeFromStart is how long a controller is given to reach each point.
const DefaultTimeFromStart = 500 * time.Millisecond

// Point is a position-only trajectory point. Velocities and accelerations are
// always zero.
type Point struct {
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
	TimeFromStart time.Duration
}

// Trajectory is a joint trajectory for one controller.
type Trajectory struct {
	Header     kinematics.Header
	JointNames []string
	Points     []Point
}

// MissingJointError reports controller joints absent from an IK solution.
type MissingJointError struct {
	Controller string
	Joints     []string
}

func (e *MissingJointError) Error() string {
	return fmt.Sprintf("controller %s: joints %s not in IK solution", e.Controller, strings.Join(e.Joints, ", "))
}

// BuildTrajectory picks info's joints out of solution, in info's order.
func BuildTrajectory(info controllers.ControllerInfo, solution kinematics.JointState, timeFromStart time.Duration, stamp time.Time) (Trajectory, error) {
	n := len(info.Joints)
	point := Point{
		Positions:     make([]float64, n),
		Velocities:    make([]float64, n),
		Accelerations: make([]float64, n),
		TimeFromStart: timeFromStart,
	}

	var missing []string
	for i, joint := range info.Joints {
		pos, ok := solution.Lookup(joint)
		if !ok {
			missing = append(missing, joint)
			continue
		}
		point.Positions[i] = pos
	}
	if len(missing) > 0 {
		return Trajectory{}, &MissingJointError{Controller: info.Name, Joints: missing}
	}

	return Trajectory{
		Header:     kinematics.Header{FrameID: TrajectoryFrame, Stamp: stamp},
		JointNames: append([]string(nil), info.Joints...),
		Points:     []Point{point},
	}, nil
}
