// Command trilat-sim flies a simulated target over three anchors and reports
// how well the trilateration solver and candidate resolver track it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
)

func main() {
	cfg := defaultSimConfig()
	steps := flag.Int("steps", cfg.Steps, "Number of simulated steps")
	seed := flag.Uint64("seed", cfg.Seed, "Random seed")
	flag.Float64Var(&cfg.Spread, "spread", cfg.Spread, "Anchor baseline in metres")
	flag.Float64Var(&cfg.StepSigma, "step-sigma", cfg.StepSigma, "Random-walk step standard deviation in metres")
	flag.Float64Var(&cfg.RangeSigma, "noise", cfg.RangeSigma, "Range noise standard deviation in metres (0 for exact ranges)")
	flag.Float64Var(&cfg.MinAltitude, "min-altitude", cfg.MinAltitude, "Minimum target height above the anchor plane")
	flag.Float64Var(&cfg.Translate, "translate", cfg.Translate, "Shift the whole scene by this much per step")
	flag.Float64Var(&cfg.Epsilon, "epsilon", cfg.Epsilon, "Solver tolerance")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()
	cfg.Steps = *steps
	cfg.Seed = *seed

	res, err := simulate(cfg)
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
		return
	}

	fmt.Printf("steps:     %d\n", res.Steps)
	fmt.Printf("solved:    %d\n", res.Solved)
	kinds := make([]string, 0, len(res.Failures))
	for k := range res.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("failed:    %d %s\n", res.Failures[k], k)
	}
	fmt.Printf("mirrored:  %d\n", res.Mirrored)
	fmt.Printf("error (m): mean %.6f  stddev %.6f  median %.6f  p95 %.6f  max %.6f\n",
		res.MeanError, res.StdDev, res.Median, res.P95, res.MaxError)
}
