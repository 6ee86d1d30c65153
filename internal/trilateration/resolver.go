package trilateration

import "github.com/banshee-data/meshpilot/internal/vecmath"

// Resolve returns the candidate to report as the current position.
//
// Vehicles operate at or above the reference plane, so a candidate with a
// negative Z is discarded in favour of the other one. When both are at or
// above the plane the candidate closest to prev wins, ties going to A. When
// both are below the plane B is returned.
func Resolve(c Candidates, prev vecmath.Vec) vecmath.Vec {
	if c.A.Z < 0 {
		return c.B
	}
	if c.B.Z < 0 {
		return c.A
	}
	if vecmath.Distance(c.A, prev) > vecmath.Distance(c.B, prev) {
		return c.B
	}
	return c.A
}
