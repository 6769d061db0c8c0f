// Package jogtarget holds the latest accepted absolute jog command.
package jogtarget

import (
	"math"
	"sync"
	"time"

	"jog_arm/kinematics"
)

const (
	MinDamping     = 0.1
	MaxDamping     = 1.0
	DefaultDamping = 0.5
)

// epoch bounds valid stamps. Anything at or before it is an unset sentinel.
var epoch = time.Unix(0, 0)

// Command is an incoming jog request.
type Command struct {
	FrameID         string
	GroupName       string
	TargetLink      string
	AvoidCollisions bool
	// DampingFactor of exactly 0 keeps the current damping.
	DampingFactor float64
	Pose          kinematics.Pose
	Stamp         time.Time
}

// Target is the accepted jog target read by the control loop.
type Target struct {
	FrameID         string
	GroupName       string
	TargetLink      string
	AvoidCollisions bool
	DampingFactor   float64
	Pose            kinematics.Pose
	AcceptedAt      time.Time
}

// Store arbitrates jog commands by source timestamp. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	target Target
}

// Defaults seed the store before the first command is accepted.
type Defaults struct {
	GroupName     string
	TargetLink    string
	DampingFactor float64
}

// NewStore returns a store with no accepted command. Collision avoidance
// starts enabled.
func NewStore(d Defaults) *Store {
	damping := DefaultDamping
	if d.DampingFactor != 0 {
		damping = ClampDamping(d.DampingFactor)
	}
	return &Store{target: Target{
		GroupName:       d.GroupName,
		TargetLink:      d.TargetLink,
		AvoidCollisions: true,
		DampingFactor:   damping,
	}}
}

// ClampDamping limits d to [MinDamping, MaxDamping].
func ClampDamping(d float64) float64 {
	return math.Min(MaxDamping, math.Max(MinDamping, d))
}

// Offer applies cmd if its stamp is after the Unix epoch and strictly newer
// than the accepted one, and reports whether it was accepted. Stale and
// unstamped commands are ignored.
func (s *Store) Offer(cmd Command) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cmd.Stamp.After(epoch) || !cmd.Stamp.After(s.target.AcceptedAt) {
		return false
	}

	s.target.FrameID = cmd.FrameID
	s.target.GroupName = cmd.GroupName
	s.target.TargetLink = cmd.TargetLink
	s.target.AvoidCollisions = cmd.AvoidCollisions
	s.target.Pose = cmd.Pose
	if cmd.DampingFactor != 0 {
		s.target.DampingFactor = ClampDamping(cmd.DampingFactor)
	}
	s.target.AcceptedAt = cmd.Stamp
	return true
}

// Snapshot returns a copy of the target and whether any command has been
// accepted yet.
func (s *Store) Snapshot() (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target, s.target.AcceptedAt.After(epoch)
}
