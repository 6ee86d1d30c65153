package trilateration

import (
	"errors"
	"math"

	"github.com/banshee-data/meshpilot/internal/vecmath"
)

var (
	// ErrDegenerateAnchors is returned when the first two anchors coincide.
	ErrDegenerateAnchors = errors.New("trilateration: anchors p1 and p2 are concentric")
	// ErrColinear is returned when all anchors lie on one line and neither
	// on-axis point satisfies every range.
	ErrColinear = errors.New("trilateration: anchors are colinear and no on-axis intersection exists")
	// ErrInfeasible is returned when the spheres do not intersect within
	// tolerance.
	ErrInfeasible = errors.New("trilateration: ranges have no common intersection")
)

// Candidates holds the two solutions of a solve. A and B are equal when the
// intersection is a single point.
type Candidates struct {
	A vecmath.Vec
	B vecmath.Vec
}

// Unique reports whether the solve produced a single point.
func (c Candidates) Unique() bool { return c.A == c.B }

// Solve intersects the spheres centred on p1, p2, p3 with radii r1, r2, r3.
//
// The local frame has ex pointing from p1 to p2, ey in the anchor plane
// orthogonal to ex, and ez = ex × ey. Candidates are p1 + x·ex + y·ey ± z·ez.
func Solve(p1 vecmath.Vec, r1 float64, p2 vecmath.Vec, r2 float64, p3 vecmath.Vec, r3 float64, eps float64) (Candidates, error) {
	ex := vecmath.Diff(p2, p1)
	h := vecmath.Norm(ex)
	if h <= eps {
		return Candidates{}, ErrDegenerateAnchors
	}
	ex = vecmath.Div(ex, h)

	// i is the component of p3-p1 along ex; ey starts as the remainder.
	t1 := vecmath.Diff(p3, p1)
	i := vecmath.Dot(ex, t1)
	ey := vecmath.Diff(t1, vecmath.Scale(ex, i))

	j := vecmath.Norm(ey)
	if j > eps {
		ey = vecmath.Div(ey, j)
		j = vecmath.Dot(ey, t1)
	} else {
		j = 0
	}

	if math.Abs(j) <= eps {
		return solveColinear(p1, r1, p2, r2, p3, r3, ex, eps)
	}

	ez := vecmath.Cross(ex, ey)

	x := (r1*r1-r2*r2)/(2*h) + h/2
	y := (r1*r1-r3*r3+i*i)/(2*j) + j/2 - x*i/j
	d := r1*r1 - x*x - y*y

	var z float64
	switch {
	case d < -eps:
		return Candidates{}, ErrInfeasible
	case d > 0:
		z = math.Sqrt(d)
	default:
		z = 0
	}

	base := vecmath.Sum(p1, vecmath.Sum(vecmath.Scale(ex, x), vecmath.Scale(ey, y)))
	return Candidates{
		A: vecmath.Sum(base, vecmath.Scale(ez, z)),
		B: vecmath.Sum(base, vecmath.Scale(ez, -z)),
	}, nil
}

// solveColinear checks the two points at distance r1 from p1 along the
// anchor axis. The first one matching both remaining ranges wins.
func solveColinear(p1 vecmath.Vec, r1 float64, p2 vecmath.Vec, r2 float64, p3 vecmath.Vec, r3 float64, ex vecmath.Vec, eps float64) (Candidates, error) {
	for _, sign := range [2]float64{1, -1} {
		p := vecmath.Sum(p1, vecmath.Scale(ex, sign*r1))
		if math.Abs(vecmath.Distance(p2, p)-r2) <= eps && math.Abs(vecmath.Distance(p3, p)-r3) <= eps {
			return Candidates{A: p, B: p}, nil
		}
	}
	return Candidates{}, ErrColinear
}

// Ranges returns the exact distances from target to each anchor.
func Ranges(target vecmath.Vec, anchors [3]vecmath.Vec) [3]float64 {
	var out [3]float64
	for k, a := range anchors {
		out[k] = vecmath.Distance(target, a)
	}
	return out
}
