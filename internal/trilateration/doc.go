// Package trilateration resolves a vehicle position from its ranges to three
// anchors of known position.
//
// Solve intersects the three range spheres in closed form and returns up to
// two mirrored candidates. Resolve picks the physically plausible one given
// the previous estimate. Both are pure functions, safe to call from any
// goroutine.
//
// Every comparison against the tolerance eps is inclusive: eps is the
// largest non-negative number still considered zero. With eps == 0 only
// exact zeros count.
package trilateration
