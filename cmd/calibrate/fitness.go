package main

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pthm-cable/radiate/config"
	"github.com/pthm-cable/radiate/simulation"
	"github.com/pthm-cable/radiate/systems"
)

// Evaluator runs headless simulations over a fixed horizon and scores how
// far the remaining source fraction lands from the target.
type Evaluator struct {
	params  *ParamVector
	base    config.Config
	horizon int
	target  float64

	lastFraction float64
}

// NewEvaluator creates an evaluator. Level tracking is switched off since
// the split never feeds back into the source.
func NewEvaluator(params *ParamVector, base *config.Config, horizon int, target float64) *Evaluator {
	cfg := *base
	cfg.Environment.LevelCount = 0
	return &Evaluator{params: params, base: cfg, horizon: horizon, target: target}
}

// LastFraction returns the remaining fraction from the most recent Evaluate call.
func (e *Evaluator) LastFraction() float64 {
	return e.lastFraction
}

// Fraction runs one simulation with the given parameter values and returns
// the source's remaining share of its initial supply.
func (e *Evaluator) Fraction(values []float64) (float64, error) {
	cfg := e.base
	e.params.ApplyToConfig(&cfg, values)

	start := time.Unix(0, 0).UTC()
	state, err := systems.NewState(&cfg, rand.NewPCG(1, 1), start)
	if err != nil {
		return 0, err
	}
	runner := simulation.NewRunner(state, simulation.NewLogicalClock(start, cfg.Clock.Tick),
		simulation.Options{MaxTicks: e.horizon})
	if _, err := runner.Run(context.Background()); err != nil {
		return 0, err
	}
	return state.Source.Fraction(), nil
}

// Evaluate returns the squared distance from the target fraction. Failed
// runs score the worst possible distance.
func (e *Evaluator) Evaluate(values []float64) float64 {
	f, err := e.Fraction(values)
	if err != nil {
		e.lastFraction = math.NaN()
		return 1
	}
	e.lastFraction = f
	d := f - e.target
	return d * d
}

// AnalyticDivisor solves the continuous depletion curve for the divisor
// that leaves target of supply after seconds:
//
//	b(t)^(-11/3) = b0^(-11/3) + (11/3)·k·t/D,  k = σ·4π·(3/4π)^(2/3)
//
// Discrete ticks emit slightly more than the continuous curve, so the
// result is a starting point for the search rather than the answer.
func AnalyticDivisor(stefanBoltzmann, supply, target, seconds float64) float64 {
	const p = 11.0 / 3.0
	k := stefanBoltzmann * 4 * math.Pi * math.Pow(3/(4*math.Pi), 2.0/3.0)
	return p * k * seconds / (math.Pow(supply, -p) * (math.Pow(target, -p) - 1))
}
