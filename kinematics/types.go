// Package kinematics wraps an external forward/inverse kinematics solver.
//
// The solver is opaque: the gateway only builds requests from the current
// joint state and jog target, runs them under a timeout, and validates the
// returned status codes.
package kinematics

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// ErrorCode mirrors the MoveIt error code values returned by compute_fk and
// compute_ik style services.
type ErrorCode int32

const (
	Success                      ErrorCode = 1
	Failure                      ErrorCode = 99999
	PlanningFailed               ErrorCode = -1
	InvalidMotionPlan            ErrorCode = -2
	ControlFailed                ErrorCode = -4
	TimedOut                     ErrorCode = -6
	Preempted                    ErrorCode = -7
	InvalidGroupName             ErrorCode = -15
	InvalidGoalConstraints       ErrorCode = -16
	InvalidRobotState            ErrorCode = -17
	InvalidLinkName              ErrorCode = -18
	FrameTransformFailure        ErrorCode = -21
	CollisionCheckingUnavailable ErrorCode = -22
	RobotStateStale              ErrorCode = -23
	NoIKSolution                 ErrorCode = -31
)

var errorCodeNames = map[ErrorCode]string{
	Success:                      "SUCCESS",
	Failure:                      "FAILURE",
	PlanningFailed:               "PLANNING_FAILED",
	InvalidMotionPlan:            "INVALID_MOTION_PLAN",
	ControlFailed:                "CONTROL_FAILED",
	TimedOut:                     "TIMED_OUT",
	Preempted:                    "PREEMPTED",
	InvalidGroupName:             "INVALID_GROUP_NAME",
	InvalidGoalConstraints:       "INVALID_GOAL_CONSTRAINTS",
	InvalidRobotState:            "INVALID_ROBOT_STATE",
	InvalidLinkName:              "INVALID_LINK_NAME",
	FrameTransformFailure:        "FRAME_TRANSFORM_FAILURE",
	CollisionCheckingUnavailable: "COLLISION_CHECKING_UNAVAILABLE",
	RobotStateStale:              "ROBOT_STATE_STALE",
	NoIKSolution:                 "NO_IK_SOLUTION",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_CODE(%d)", int32(c))
}

// Header stamps a request or pose with its reference frame.
type Header struct {
	FrameID string
	Stamp   time.Time
}

// Pose is a position plus a unit quaternion orientation.
type Pose struct {
	Position    r3.Vector
	Orientation quat.Number
}

// PoseStamped is a Pose expressed in the frame named by its header.
type PoseStamped struct {
	Header Header
	Pose   Pose
}

// JointState holds parallel slices of joint names and values.
type JointState struct {
	Name     []string
	Position []float64
	Velocity []float64
	Effort   []float64
}

// Lookup returns the position of the named joint.
func (js JointState) Lookup(name string) (float64, bool) {
	for i, n := range js.Name {
		if n == name && i < len(js.Position) {
			return js.Position[i], true
		}
	}
	return 0, false
}

// Clone returns a deep copy.
func (js JointState) Clone() JointState {
	return JointState{
		Name:     append([]string(nil), js.Name...),
		Position: append([]float64(nil), js.Position...),
		Velocity: append([]float64(nil), js.Velocity...),
		Effort:   append([]float64(nil), js.Effort...),
	}
}

// FKRequest asks for the poses of FKLinkNames in Header.FrameID.
type FKRequest struct {
	Header      Header
	FKLinkNames []string
	RobotState  JointState
}

// FKResponse carries one pose per requested link on success.
type FKResponse struct {
	ErrorCode   ErrorCode
	PoseStamped []PoseStamped
	FKLinkNames []string
}

// IKRequest asks for a joint configuration placing IKLinkName at PoseStamped.
type IKRequest struct {
	GroupName       string
	IKLinkName      string
	RobotState      JointState
	AvoidCollisions bool
	PoseStamped     PoseStamped
	Timeout         time.Duration
}

// IKResponse carries the full joint state solution on success.
type IKResponse struct {
	ErrorCode ErrorCode
	Solution  JointState
}

// Solver is the external FK/IK service. Both calls are synchronous.
type Solver interface {
	ComputeFK(ctx context.Context, req FKRequest) (FKResponse, error)
	ComputeIK(ctx context.Context, req IKRequest) (IKResponse, error)
}
