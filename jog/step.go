package jog

import (
	"math"

	"jog_arm/kinematics"
)

// Convergence thresholds. A tick whose target is closer than both is a no-op.
const (
	PositionTolerance    = 0.0005
	OrientationTolerance = 0.001
)

// Candidate is the damped intermediate pose for one tick.
type Candidate struct {
	Pose                kinematics.Pose
	PositionDistance    float64
	OrientationDistance float64
}

// Converged reports whether the actual pose is already at the target.
func (c Candidate) Converged() bool {
	return c.PositionDistance < PositionTolerance && c.OrientationDistance < OrientationTolerance
}

// ComputeCandidate moves the fraction damping of the way from actual to
// target: linear in position, spherical in orientation.
func ComputeCandidate(actual, target kinematics.Pose, damping float64) Candidate {
	delta := target.Position.Sub(actual.Position)
	return Candidate{
		Pose: kinematics.Pose{
			Position:    actual.Position.Add(delta.Mul(damping)),
			Orientation: Slerp(actual.Orientation, target.Orientation, damping),
		},
		PositionDistance:    delta.Norm(),
		OrientationDistance: AngleShortestPath(actual.Orientation, target.Orientation),
	}
}

// ValidatePoses checks the three quaternions used by a tick.
func ValidatePoses(actual, target, candidate kinematics.Pose) error {
	if err := ValidQuaternion("actual", actual.Orientation); err != nil {
		return err
	}
	if err := ValidQuaternion("target", target.Orientation); err != nil {
		return err
	}
	return ValidQuaternion("candidate", candidate.Orientation)
}

// JointJump is one joint whose solution is too far from its current value.
type JointJump struct {
	Joint    string
	Current  float64
	Solution float64
	Delta    float64
}

// CheckContinuity compares every joint present in both states and returns the
// ones that jump by a discontinuous amount. Joints in only one state are
// ignored.
func CheckContinuity(current, solution kinematics.JointState) []JointJump {
	var jumps []JointJump
	for i, name := range solution.Name {
		if i >= len(solution.Position) {
			break
		}
		cur, ok := current.Lookup(name)
		if !ok {
			continue
		}
		e := math.Abs(solution.Position[i] - WrapAngle(cur))
		if Discontinuous(e) {
			jumps = append(jumps, JointJump{
				Joint:    name,
				Current:  cur,
				Solution: solution.Position[i],
				Delta:    e,
			})
		}
	}
	return jumps
}
