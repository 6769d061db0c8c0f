// Package jointstate keeps the last-known position of every joint reported by
// the feedback stream.
package jointstate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"jog_arm/kinematics"
)

// IngestionError reports a malformed feedback message. The message is dropped
// and the store is left untouched.
type IngestionError struct {
	Names     int
	Positions int
}

func (e *IngestionError) Error() string {
	if e.Names == 0 {
		return "invalid joint state message: no joint names"
	}
	return fmt.Sprintf("invalid joint state message: %d names but %d positions", e.Names, e.Positions)
}

// Store maps joint name to position. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	positions map[string]float64
	exclude   []string
}

// NewStore returns an empty store. Joints named in exclude are tracked but
// never appear in a Snapshot.
func NewStore(exclude []string) *Store {
	return &Store{
		positions: make(map[string]float64),
		exclude:   lo.Uniq(exclude),
	}
}

// Update applies one feedback message. Joints not named keep their value.
func (s *Store) Update(names []string, positions []float64) error {
	if len(names) == 0 || len(names) != len(positions) {
		return &IngestionError{Names: len(names), Positions: len(positions)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, name := range names {
		s.positions[name] = positions[i]
	}
	return nil
}

// Position returns the stored value for name.
func (s *Store) Position(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.positions[name]
	return v, ok
}

// Len returns the number of joints seen so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// Excluded reports whether name is left out of snapshots.
func (s *Store) Excluded(name string) bool {
	return lo.Contains(s.exclude, name)
}

// Snapshot returns a consistent copy of the store sorted by joint name, with
// excluded joints removed and velocity and effort zero filled.
func (s *Store) Snapshot() kinematics.JointState {
	s.mu.RLock()
	names := lo.Filter(lo.Keys(s.positions), func(name string, _ int) bool {
		return !s.Excluded(name)
	})
	sort.Strings(names)

	state := kinematics.JointState{
		Name:     names,
		Position: make([]float64, len(names)),
		Velocity: make([]float64, len(names)),
		Effort:   make([]float64, len(names)),
	}
	for i, name := range names {
		state.Position[i] = s.positions[name]
	}
	s.mu.RUnlock()
	return state
}
