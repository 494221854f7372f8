package main

import (
	"math"

	"github.com/pthm-cable/radiate/config"
)

// ParamSpec defines a single calibrated parameter. Log parameters are
// searched over log10 of their value.
type ParamSpec struct {
	Name string  // Human-readable name
	Path string  // Config path for logging
	Min  float64 // Lower bound (search space)
	Max  float64 // Upper bound (search space)
	Log  bool
}

// ParamVector holds the calibrated parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the calibrated parameter set. Only the emission
// divisor changes the depletion curve; kappa shapes the level split alone.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "scale_divisor", Path: "emission.scale_divisor", Min: 0, Max: 30, Log: true},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// Normalize maps parameter values to the [0,1] search range.
func (pv *ParamVector) Normalize(values []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v := values[i]
		if spec.Log {
			v = math.Log10(v)
		}
		out[i] = (v - spec.Min) / (spec.Max - spec.Min)
	}
	return out
}

// Denormalize maps [0,1] search coordinates back to parameter values,
// clamping to the bounds first.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v := spec.Min + min(max(normalized[i], 0), 1)*(spec.Max-spec.Min)
		if spec.Log {
			v = math.Pow(10, v)
		}
		out[i] = v
	}
	return out
}

// ApplyToConfig writes parameter values into cfg. Order matches Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	cfg.Emission.ScaleDivisor = values[0]
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{cfg.Emission.ScaleDivisor}
}
