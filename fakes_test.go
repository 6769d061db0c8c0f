package jog_arm

import (
	"context"
	"slices"
	"sync"

	"go.viam.com/rdk/referenceframe"
)

type fakeArm struct {
	mu        sync.Mutex
	positions []float64
	readErr   error
	moveErr   error
	moves     [][]float64
	stops     int
	// when set, moves block until a value is received or ctx ends
	release chan error
}

func (a *fakeArm) MoveToJointPositions(ctx context.Context, in []referenceframe.Input, _ map[string]interface{}) error {
	a.mu.Lock()
	a.moves = append(a.moves, slices.Clone(in))
	release, err := a.release, a.moveErr
	a.mu.Unlock()

	if release != nil {
		select {
		case err = <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (a *fakeArm) JointPositions(context.Context, map[string]interface{}) ([]referenceframe.Input, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readErr != nil {
		return nil, a.readErr
	}
	return slices.Clone(a.positions), nil
}

func (a *fakeArm) Stop(context.Context, map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *fakeArm) recordedMoves() [][]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]float64(nil), a.moves...)
}

func (a *fakeArm) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}
