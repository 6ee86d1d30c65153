package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/meshpilot/internal/trilateration"
	"github.com/banshee-data/meshpilot/internal/vecmath"
)

// simConfig describes one simulated flight over three fixed anchors.
type simConfig struct {
	Steps       int
	Seed        uint64
	Spread      float64 // anchor baseline in metres
	StepSigma   float64 // random-walk step per axis
	RangeSigma  float64 // gaussian range noise, zero for exact ranges
	MinAltitude float64 // target is kept at least this far above the anchors
	Translate   float64 // shift the whole scene by this much per step
	Epsilon     float64
}

func defaultSimConfig() simConfig {
	return simConfig{
		Steps:       1000,
		Seed:        1,
		Spread:      10,
		StepSigma:   0.1,
		MinAltitude: 1,
		Epsilon:     1e-6,
	}
}

type simResult struct {
	Steps      int            `json:"steps"`
	Solved     int            `json:"solved"`
	Failures   map[string]int `json:"failures,omitempty"`
	Mirrored   int            `json:"mirrored"`
	MeanError  float64        `json:"mean_error_m"`
	StdDev     float64        `json:"stddev_m"`
	Median     float64        `json:"median_m"`
	P95        float64        `json:"p95_m"`
	MaxError   float64        `json:"max_error_m"`
	errorTrace []float64
}

func failureName(err error) string {
	switch {
	case errors.Is(err, trilateration.ErrDegenerateAnchors):
		return "degenerate"
	case errors.Is(err, trilateration.ErrColinear):
		return "colinear"
	case errors.Is(err, trilateration.ErrInfeasible):
		return "infeasible"
	default:
		return "other"
	}
}

func shift(v vecmath.Vec, d float64) vecmath.Vec {
	return vecmath.Sum(v, vecmath.Vec{X: d, Y: d, Z: d})
}

// simulate walks a target above the anchors, solves from its (possibly
// noisy) ranges each step and measures how far the resolved estimate lands
// from the truth.
func simulate(cfg simConfig) (simResult, error) {
	if cfg.Steps <= 0 {
		return simResult{}, fmt.Errorf("steps must be positive, got %d", cfg.Steps)
	}
	if cfg.Spread <= 0 {
		return simResult{}, fmt.Errorf("spread must be positive, got %v", cfg.Spread)
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	step := distuv.Normal{Mu: 0, Sigma: math.Max(cfg.StepSigma, 0), Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: math.Max(cfg.RangeSigma, 0), Src: src}
	sample := func(d distuv.Normal) float64 {
		if d.Sigma == 0 {
			return 0
		}
		return d.Rand()
	}

	anchors := [3]vecmath.Vec{
		{},
		{X: cfg.Spread},
		{Y: cfg.Spread},
	}
	target := vecmath.Vec{X: cfg.Spread / 3, Y: cfg.Spread / 3, Z: cfg.MinAltitude + 1}
	prev := target

	res := simResult{Steps: cfg.Steps, Failures: map[string]int{}}
	for n := 0; n < cfg.Steps; n++ {
		target = vecmath.Sum(target, vecmath.Vec{X: sample(step), Y: sample(step), Z: sample(step)})
		if floor := anchors[0].Z + cfg.MinAltitude; target.Z < floor {
			target.Z = floor
		}

		ranges := trilateration.Ranges(target, anchors)
		for k := range ranges {
			ranges[k] = math.Max(ranges[k]+sample(noise), 0)
		}

		c, err := trilateration.Solve(anchors[0], ranges[0], anchors[1], ranges[1], anchors[2], ranges[2], cfg.Epsilon)
		if err == nil {
			est := trilateration.Resolve(c, prev)
			other := c.A
			if est == c.A {
				other = c.B
			}
			e := vecmath.Distance(est, target)
			if vecmath.Distance(other, target) < e {
				res.Mirrored++
			}
			res.errorTrace = append(res.errorTrace, e)
			res.Solved++
			prev = est
		} else {
			res.Failures[failureName(err)]++
		}

		if cfg.Translate != 0 {
			target = shift(target, cfg.Translate)
			prev = shift(prev, cfg.Translate)
			for k := range anchors {
				anchors[k] = shift(anchors[k], cfg.Translate)
			}
		}
	}

	if len(res.errorTrace) > 0 {
		sorted := append([]float64(nil), res.errorTrace...)
		sort.Float64s(sorted)
		res.MeanError, res.StdDev = stat.MeanStdDev(sorted, nil)
		if len(sorted) < 2 {
			res.StdDev = 0
		}
		res.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		res.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
		res.MaxError = floats.Max(sorted)
	}
	return res, nil
}
