package jog

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// quatTolerance is how far |q|^2 may stray from 1 for q to count as a unit
// quaternion.
const quatTolerance = 0.01

// InvalidQuaternionError reports a quaternion that is not a unit quaternion.
type InvalidQuaternionError struct {
	Which string
	Q     quat.Number
}

func (e *InvalidQuaternionError) Error() string {
	return fmt.Sprintf("invalid %s quaternion (w=%g x=%g y=%g z=%g)", e.Which, e.Q.Real, e.Q.Imag, e.Q.Jmag, e.Q.Kmag)
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func norm2(q quat.Number) float64 {
	return dot(q, q)
}

// ValidQuaternion returns nil if q is a finite unit quaternion.
func ValidQuaternion(which string, q quat.Number) error {
	if quat.IsNaN(q) || quat.IsInf(q) || math.Abs(norm2(q)-1) > quatTolerance {
		return &InvalidQuaternionError{Which: which, Q: q}
	}
	return nil
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// AngleShortestPath is the rotation angle in [0, π] between a and b, taking
// the shorter of the two paths through q and -q.
func AngleShortestPath(a, b quat.Number) float64 {
	s := math.Sqrt(norm2(a) * norm2(b))
	d := dot(a, b)
	if d < 0 {
		d = -d
	}
	return 2 * math.Acos(clampUnit(d/s))
}

// Slerp interpolates from a toward b by fraction t along the shorter arc.
// Identical or antipodal inputs return a.
func Slerp(a, b quat.Number, t float64) quat.Number {
	product := dot(a, b) / math.Sqrt(norm2(a)*norm2(b))
	if math.Abs(product) >= 1 {
		return a
	}

	sign := 1.0
	if product < 0 {
		sign = -1
	}
	theta := math.Acos(sign * product)
	s0 := math.Sin((1 - t) * theta)
	s1 := math.Sin(sign * t * theta)
	d := 1 / math.Sin(theta)
	return quat.Scale(d, quat.Add(quat.Scale(s0, a), quat.Scale(s1, b)))
}

// WrapAngle maps a into (-π, π].
func WrapAngle(a float64) float64 {
	w := math.Mod(a+math.Pi, 2*math.Pi)
	if w < 0 {
		w += 2 * math.Pi
	}
	w -= math.Pi
	if w <= -math.Pi {
		w += 2 * math.Pi
	}
	return w
}

// Discontinuous reports whether a joint jump of e radians lies strictly
// between π/2 and 3π/2.
func Discontinuous(e float64) bool {
	return e > math.Pi/2 && e < 1.5*math.Pi
}
