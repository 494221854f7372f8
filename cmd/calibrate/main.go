// Package main searches for the emission scale divisor that leaves a target
// fraction of the source's supply after a fixed number of ticks.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/radiate/config"
)

// evalRow is one line of calibrate_log.csv.
type evalRow struct {
	Eval         int     `csv:"eval"`
	Fitness      float64 `csv:"fitness"`
	ScaleDivisor float64 `csv:"scale_divisor"`
	Fraction     float64 `csv:"fraction"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	horizon := flag.Int("horizon", 10000, "Ticks to simulate per evaluation")
	target := flag.Float64("target", 0.5, "Fraction of the initial supply left after the horizon")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if *target <= 0 || *target >= 1 {
		log.Fatalf("--target must be in (0, 1), got %g", *target)
	}
	if *horizon <= 0 {
		log.Fatalf("--horizon must be > 0, got %d", *horizon)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	params := NewParamVector()
	evaluator := NewEvaluator(params, baseCfg, *horizon, *target)

	seconds := float64(*horizon) * baseCfg.Clock.Tick.Seconds()
	guess := AnalyticDivisor(baseCfg.Emission.StefanBoltzmann, baseCfg.Source.InitialSupply, *target, seconds)
	initX := params.Normalize([]float64{guess})

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := 1.0
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			evalCount++

			if bestParams == nil || fitness < bestFitness {
				bestFitness = fitness
				bestParams = raw
			}

			row := []evalRow{{Eval: evalCount, Fitness: fitness, ScaleDivisor: raw[0], Fraction: evaluator.LastFraction()}}
			var werr error
			if evalCount == 1 {
				werr = gocsv.Marshal(row, logFile)
			} else {
				werr = gocsv.MarshalWithoutHeaders(row, logFile)
			}
			if werr != nil {
				log.Printf("failed to write log row: %v", werr)
			}

			elapsed := time.Since(startTime)
			fmt.Printf("Eval %d/%d: divisor=%.4e fraction=%.6f (best=%.3e) | elapsed: %s\n",
				evalCount, *maxEvals, raw[0], evaluator.LastFraction(), bestFitness, formatDuration(elapsed))
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}

	fmt.Printf("Calibrating scale divisor: target=%.4f after %d ticks (%s), analytic guess=%.4e\n",
		*target, *horizon, time.Duration(seconds*float64(time.Second)), guess)

	result, err := optimize.Minimize(problem, initX, settings, &optimize.NelderMead{})
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Denormalize(result.X)
	}
	if bestParams == nil {
		log.Fatal("no evaluations completed")
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.3e\n", bestFitness)
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6e\n", spec.Name, bestParams[i])
	}

	bestCfg := *baseCfg
	params.ApplyToConfig(&bestCfg, bestParams)
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
