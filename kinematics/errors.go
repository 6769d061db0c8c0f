package kinematics

import "fmt"

// Operation names a kinematics call.
type Operation string

const (
	OpForward Operation = "fk"
	OpInverse Operation = "ik"
)

// KinematicsError reports a failed FK or IK call. Err is set when the call
// itself could not be completed; otherwise Code holds the non-success status.
type KinematicsError struct {
	Op   Operation
	Code ErrorCode
	Err  error
}

func (e *KinematicsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s call failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s returned %s (%d)", e.Op, e.Code, int32(e.Code))
}

func (e *KinematicsError) Unwrap() error {
	return e.Err
}
