// Package kinematicstest provides an injectable kinematics.Solver for tests.
package kinematicstest

import (
	"context"
	"errors"
	"sync"

	"jog_arm/kinematics"
)

// Solver is a kinematics.Solver whose behaviour is set through its Func fields.
// Unset funcs return an error. Every call is recorded.
type Solver struct {
	ComputeFKFunc func(ctx context.Context, req kinematics.FKRequest) (kinematics.FKResponse, error)
	ComputeIKFunc func(ctx context.Context, req kinematics.IKRequest) (kinematics.IKResponse, error)

	mu         sync.Mutex
	fkRequests []kinematics.FKRequest
	ikRequests []kinematics.IKRequest
}

// ComputeFK implements kinematics.Solver.
func (s *Solver) ComputeFK(ctx context.Context, req kinematics.FKRequest) (kinematics.FKResponse, error) {
	s.mu.Lock()
	s.fkRequests = append(s.fkRequests, req)
	s.mu.Unlock()
	if s.ComputeFKFunc == nil {
		return kinematics.FKResponse{}, errors.New("ComputeFK not set")
	}
	return s.ComputeFKFunc(ctx, req)
}

// ComputeIK implements kinematics.Solver.
func (s *Solver) ComputeIK(ctx context.Context, req kinematics.IKRequest) (kinematics.IKResponse, error) {
	s.mu.Lock()
	s.ikRequests = append(s.ikRequests, req)
	s.mu.Unlock()
	if s.ComputeIKFunc == nil {
		return kinematics.IKResponse{}, errors.New("ComputeIK not set")
	}
	return s.ComputeIKFunc(ctx, req)
}

// FKRequests returns the FK requests seen so far.
func (s *Solver) FKRequests() []kinematics.FKRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kinematics.FKRequest(nil), s.fkRequests...)
}

// IKRequests returns the IK requests seen so far.
func (s *Solver) IKRequests() []kinematics.IKRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kinematics.IKRequest(nil), s.ikRequests...)
}

// FixedFK answers every FK request with pose.
func FixedFK(pose kinematics.Pose) func(context.Context, kinematics.FKRequest) (kinematics.FKResponse, error) {
	return func(_ context.Context, req kinematics.FKRequest) (kinematics.FKResponse, error) {
		return kinematics.FKResponse{
			ErrorCode:   kinematics.Success,
			PoseStamped: []kinematics.PoseStamped{{Header: req.Header, Pose: pose}},
			FKLinkNames: req.FKLinkNames,
		}, nil
	}
}

// FixedIK answers every IK request with solution.
func FixedIK(solution kinematics.JointState) func(context.Context, kinematics.IKRequest) (kinematics.IKResponse, error) {
	return func(context.Context, kinematics.IKRequest) (kinematics.IKResponse, error) {
		return kinematics.IKResponse{ErrorCode: kinematics.Success, Solution: solution.Clone()}, nil
	}
}
