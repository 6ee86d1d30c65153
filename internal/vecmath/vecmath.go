// Package vecmath is the 3-D vector algebra used by the trilateration solver.
// It names the handful of operations the solver needs on top of gonum's r3.
package vecmath

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a point or direction in the anchor coordinate frame.
type Vec = r3.Vec

// Diff returns a - b.
func Diff(a, b Vec) Vec { return r3.Sub(a, b) }

// Sum returns a + b.
func Sum(a, b Vec) Vec { return r3.Add(a, b) }

// Scale returns v * n.
func Scale(v Vec, n float64) Vec { return r3.Scale(n, v) }

// Div returns v / n. Division by zero yields infinities or NaN components,
// as with scalar division; callers guard the divisor.
func Div(v Vec, n float64) Vec {
	return Vec{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}

// Norm returns the Euclidean norm of v.
func Norm(v Vec) float64 { return r3.Norm(v) }

// Dot returns the dot product of a and b.
func Dot(a, b Vec) float64 { return r3.Dot(a, b) }

// Cross returns the cross product a × b.
func Cross(a, b Vec) Vec { return r3.Cross(a, b) }

// Distance returns |a - b|.
func Distance(a, b Vec) float64 { return r3.Norm(r3.Sub(a, b)) }
