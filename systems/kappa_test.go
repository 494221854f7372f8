package systems

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pthm-cable/radiate/config"
)

// zeroSource always yields 0, which maps to a uniform draw of exactly 0.
type zeroSource struct{}

func (zeroSource) Uint64() uint64 { return 0 }

// flakySource yields zero for the first n calls, then defers to a PCG.
type flakySource struct {
	zeros int
	next  rand.Source
}

func (f *flakySource) Uint64() uint64 {
	if f.zeros > 0 {
		f.zeros--
		return 0
	}
	return f.next.Uint64()
}

func testKappa() config.KappaConfig {
	return config.KappaConfig{Shape: 3.5, MaxRetries: 8}
}

func TestKappaSamplePositive(t *testing.T) {
	k := NewKappaSampler(testKappa(), rand.NewPCG(1, 2))
	samples, err := k.Sample(500)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(samples) != 500 {
		t.Fatalf("len = %d, want 500", len(samples))
	}
	for i, s := range samples {
		if !(s > 0) || math.IsInf(s, 0) {
			t.Errorf("sample %d = %g, want finite and > 0", i, s)
		}
	}
}

func TestKappaSampleDeterministicForSeed(t *testing.T) {
	a, _ := NewKappaSampler(testKappa(), rand.NewPCG(7, 7)).Sample(20)
	b, _ := NewKappaSampler(testKappa(), rand.NewPCG(7, 7)).Sample(20)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs for identical seeds: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestKappaDistributionSumsToOne(t *testing.T) {
	k := NewKappaSampler(testKappa(), rand.NewPCG(3, 4))
	for _, n := range []int{1, 2, 100, 1000} {
		dist, err := k.Distribution(n)
		if err != nil {
			t.Fatalf("Distribution(%d) failed: %v", n, err)
		}
		var sum float64
		for _, p := range dist {
			if p < 0 {
				t.Errorf("negative weight %g", p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("Distribution(%d) sums to %.12f, want 1", n, sum)
		}
	}
}

func TestKappaRetriesDegenerateDraws(t *testing.T) {
	src := &flakySource{zeros: 3, next: rand.NewPCG(5, 6)}
	k := NewKappaSampler(testKappa(), src)

	samples, err := k.Sample(4)
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	for _, s := range samples {
		if math.IsInf(s, 0) || math.IsNaN(s) {
			t.Errorf("degenerate value leaked into samples: %g", s)
		}
	}
}

func TestKappaRetryBudgetExhausted(t *testing.T) {
	k := NewKappaSampler(testKappa(), zeroSource{})
	if _, err := k.Sample(3); !errors.Is(err, ErrSampleBudgetExhausted) {
		t.Errorf("Sample error = %v, want ErrSampleBudgetExhausted", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"proportional", []float64{1, 3}, []float64{0.25, 0.75}},
		{"zero sum falls back to uniform", []float64{0, 0, 0, 0}, []float64{0.25, 0.25, 0.25, 0.25}},
		{"negative sum falls back to uniform", []float64{-1, -1}, []float64{0.5, 0.5}},
		{"nan falls back to uniform", []float64{math.NaN(), 1}, []float64{0.5, 0.5}},
		{"inf falls back to uniform", []float64{math.Inf(1), 1}, []float64{0.5, 0.5}},
		{"empty", []float64{}, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("Normalize()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
