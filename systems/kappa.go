package systems

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/radiate/config"
)

// ErrSampleBudgetExhausted is returned when the uniform source keeps
// producing exact zeros past the retry budget.
var ErrSampleBudgetExhausted = errors.New("kappa sample retry budget exhausted")

// KappaSampler draws heavy-tailed weights used to split emitted energy
// across environment levels. Each weight is the mean of three power-law
// transformed uniforms, x = u^(-1/κ) - 1.
type KappaSampler struct {
	Shape      float64
	MaxRetries int

	uniform distuv.Uniform
}

// NewKappaSampler creates a sampler reading from src. src must not be shared
// with another goroutine.
func NewKappaSampler(cfg config.KappaConfig, src rand.Source) *KappaSampler {
	return &KappaSampler{
		Shape:      cfg.Shape,
		MaxRetries: cfg.MaxRetries,
		uniform:    distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// Sample returns count raw kappa weights.
func (k *KappaSampler) Sample(count int) ([]float64, error) {
	out := make([]float64, count)
	exp := -1 / k.Shape
	for i := range out {
		var sum float64
		for j := 0; j < 3; j++ {
			u, err := k.draw()
			if err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
			sum += math.Pow(u, exp) - 1
		}
		out[i] = sum / 3
	}
	return out, nil
}

// draw returns a uniform value in the open interval (0, 1).
func (k *KappaSampler) draw() (float64, error) {
	for attempt := 0; attempt <= k.MaxRetries; attempt++ {
		if u := k.uniform.Rand(); u > 0 && u < 1 {
			return u, nil
		}
	}
	return 0, ErrSampleBudgetExhausted
}

// Distribution samples count weights and normalizes them to sum to 1.
func (k *KappaSampler) Distribution(count int) ([]float64, error) {
	samples, err := k.Sample(count)
	if err != nil {
		return nil, err
	}
	return Normalize(samples), nil
}

// Normalize scales samples in place so they sum to 1 and returns them.
// A non-positive or non-finite total falls back to a uniform split.
func Normalize(samples []float64) []float64 {
	if len(samples) == 0 {
		return samples
	}
	total := floats.Sum(samples)
	if !(total > 0) || math.IsInf(total, 1) || floats.HasNaN(samples) {
		uniform := 1 / float64(len(samples))
		for i := range samples {
			samples[i] = uniform
		}
		return samples
	}
	floats.Scale(1/total, samples)
	return samples
}
