package jog

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"

	"jog_arm/kinematics"
)

var identity = quat.Number{Real: 1}

func rotZ(theta float64) quat.Number {
	return quat.Number{Real: math.Cos(theta / 2), Kmag: math.Sin(theta / 2)}
}

func assertQuatInDelta(t *testing.T, want, got quat.Number) {
	t.Helper()
	assert.InDelta(t, want.Real, got.Real, 1e-9, "w")
	assert.InDelta(t, want.Imag, got.Imag, 1e-9, "x")
	assert.InDelta(t, want.Jmag, got.Jmag, 1e-9, "y")
	assert.InDelta(t, want.Kmag, got.Kmag, 1e-9, "z")
}

func TestValidQuaternion(t *testing.T) {
	tests := []struct {
		name  string
		q     quat.Number
		valid bool
	}{
		{"identity", identity, true},
		{"rotation", rotZ(1.2), true},
		{"slightly off unit", quat.Number{Real: 1.004}, true},
		{"zero", quat.Number{}, false},
		{"too long", quat.Number{Real: 1.1}, false},
		{"nan", quat.Number{Real: math.NaN()}, false},
		{"inf", quat.Number{Imag: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidQuaternion("target", tt.q)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var qerr *InvalidQuaternionError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, "target", qerr.Which)
		})
	}
}

func TestAngleShortestPath(t *testing.T) {
	assert.InDelta(t, 0, AngleShortestPath(identity, identity), 1e-9)
	assert.InDelta(t, math.Pi/2, AngleShortestPath(identity, rotZ(math.Pi/2)), 1e-9)
	// q and -q are the same rotation
	assert.InDelta(t, math.Pi/2, AngleShortestPath(identity, quat.Scale(-1, rotZ(math.Pi/2))), 1e-9)
	assert.InDelta(t, 0, AngleShortestPath(identity, quat.Number{Real: -1}), 1e-9)
}

func TestSlerp(t *testing.T) {
	assertQuatInDelta(t, rotZ(math.Pi/4), Slerp(identity, rotZ(math.Pi/2), 0.5))
	assertQuatInDelta(t, rotZ(0.1), Slerp(identity, rotZ(1), 0.1))
	assertQuatInDelta(t, rotZ(1), Slerp(identity, rotZ(1), 1))

	// long way round is avoided
	assertQuatInDelta(t, rotZ(math.Pi/4), Slerp(identity, quat.Scale(-1, rotZ(math.Pi/2)), 0.5))

	// identical and antipodal inputs return the start
	assertQuatInDelta(t, rotZ(0.3), Slerp(rotZ(0.3), rotZ(0.3), 0.5))
	assert.Equal(t, identity, Slerp(identity, quat.Number{Real: -1}, 0.5))
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{1.5 * math.Pi, -0.5 * math.Pi},
		{-1.5 * math.Pi, 0.5 * math.Pi},
		{2*math.Pi + 0.1, 0.1},
		{-7, -7 + 2*math.Pi},
	}
	for _, tt := range tests {
		got := WrapAngle(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "WrapAngle(%v)", tt.in)
		assert.True(t, got > -math.Pi && got <= math.Pi, "WrapAngle(%v) = %v out of range", tt.in, got)
	}
}

func TestDiscontinuous(t *testing.T) {
	assert.False(t, Discontinuous(0))
	assert.False(t, Discontinuous(math.Pi/2))
	assert.False(t, Discontinuous(1.5*math.Pi))
	assert.False(t, Discontinuous(5))
	assert.True(t, Discontinuous(math.Pi))
	assert.True(t, Discontinuous(2.5))
	assert.True(t, Discontinuous(math.Nextafter(math.Pi/2, 4)))
}

func TestComputeCandidate(t *testing.T) {
	actual := kinematics.Pose{Position: r3.Vector{X: 0.1, Y: 0.2, Z: 0.3}, Orientation: identity}
	target := kinematics.Pose{Position: r3.Vector{X: 0.5, Y: 0.2, Z: -0.1}, Orientation: rotZ(math.Pi / 2)}

	c := ComputeCandidate(actual, target, 0.25)
	assert.InDelta(t, 0.2, c.Pose.Position.X, 1e-12)
	assert.InDelta(t, 0.2, c.Pose.Position.Y, 1e-12)
	assert.InDelta(t, 0.2, c.Pose.Position.Z, 1e-12)
	assertQuatInDelta(t, Slerp(identity, rotZ(math.Pi/2), 0.25), c.Pose.Orientation)
	assert.InDelta(t, math.Sqrt(0.32), c.PositionDistance, 1e-12)
	assert.InDelta(t, math.Pi/2, c.OrientationDistance, 1e-9)
	assert.False(t, c.Converged())
}

func TestCandidateConverged(t *testing.T) {
	assert.True(t, Candidate{PositionDistance: 0.0004, OrientationDistance: 0.0009}.Converged())
	assert.False(t, Candidate{PositionDistance: 0.0005, OrientationDistance: 0}.Converged())
	assert.False(t, Candidate{PositionDistance: 0, OrientationDistance: 0.001}.Converged())
}

func TestCheckContinuity(t *testing.T) {
	current := kinematics.JointState{
		Name:     []string{"a", "b", "c", "d", "e"},
		Position: []float64{0, 0, 0, 2*math.Pi + 0.1, 3},
	}

	t.Run("boundaries are exclusive", func(t *testing.T) {
		jumps := CheckContinuity(current, kinematics.JointState{
			Name:     []string{"a", "b", "c"},
			Position: []float64{math.Pi / 2, 1.5 * math.Pi, math.Pi},
		})
		require.Len(t, jumps, 1)
		assert.Equal(t, "c", jumps[0].Joint)
		assert.InDelta(t, math.Pi, jumps[0].Delta, 1e-12)
	})

	t.Run("current value is wrapped", func(t *testing.T) {
		assert.Empty(t, CheckContinuity(current, kinematics.JointState{
			Name:     []string{"d"},
			Position: []float64{0.1},
		}))
	})

	t.Run("full turn is not flagged", func(t *testing.T) {
		assert.Empty(t, CheckContinuity(current, kinematics.JointState{
			Name:     []string{"e"},
			Position: []float64{-3},
		}))
	})

	t.Run("unknown joints are ignored", func(t *testing.T) {
		assert.Empty(t, CheckContinuity(current, kinematics.JointState{
			Name:     []string{"gripper"},
			Position: []float64{3},
		}))
	})
}
