package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/radiate/config"
)

func TestParamVectorRoundTrip(t *testing.T) {
	pv := NewParamVector()
	for _, d := range []float64{1e3, 8.6e7, 4.65e20} {
		got := pv.Denormalize(pv.Normalize([]float64{d}))[0]
		if math.Abs(got-d)/d > 1e-9 {
			t.Errorf("round trip %g -> %g", d, got)
		}
	}
}

func TestDenormalizeClampsToBounds(t *testing.T) {
	pv := NewParamVector()
	lo := pv.Denormalize([]float64{-3})[0]
	hi := pv.Denormalize([]float64{7})[0]
	if math.Abs(lo-1) > 1e-9 || math.Abs(hi-1e30)/1e30 > 1e-9 {
		t.Errorf("clamped bounds = %g, %g; want 1, 1e30", lo, hi)
	}
}

func TestAnalyticDivisorLandsNearTarget(t *testing.T) {
	cfg := config.Default()
	const horizon, target = 10000, 0.5

	d := AnalyticDivisor(cfg.Emission.StefanBoltzmann, cfg.Source.InitialSupply, target,
		horizon*cfg.Clock.Tick.Seconds())
	if !(d > 1e7 && d < 1e9) {
		t.Fatalf("analytic divisor %g outside expected range", d)
	}

	ev := NewEvaluator(NewParamVector(), cfg, horizon, target)
	f, err := ev.Fraction([]float64{d})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(f-target) > 0.01 {
		t.Errorf("fraction at analytic divisor = %.4f, want about %.2f", f, target)
	}
}

func TestEvaluateMonotoneInDivisor(t *testing.T) {
	cfg := config.Default()
	ev := NewEvaluator(NewParamVector(), cfg, 2000, 0.5)

	small, err := ev.Fraction([]float64{1e8})
	if err != nil {
		t.Fatal(err)
	}
	large, err := ev.Fraction([]float64{1e10})
	if err != nil {
		t.Fatal(err)
	}
	if !(small < large) {
		t.Errorf("larger divisor should leave more supply: %g vs %g", small, large)
	}
	if ev.Evaluate([]float64{1e30}) < 0.24 {
		t.Error("an untouched source should score about (1-0.5)^2")
	}
}
