package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ReplicaRecord holds one ensemble replica's final state. One row of ensemble.csv.
type ReplicaRecord struct {
	Replica            int     `csv:"replica"`
	Seed               uint64  `csv:"seed"`
	Ticks              int     `csv:"ticks"`
	SourceBalance      float64 `csv:"source_balance"`
	EnvironmentBalance float64 `csv:"environment_balance"`
	LevelMax           float64 `csv:"level_max"`    // Largest level share of the environment balance
	LevelStdDev        float64 `csv:"level_stddev"` // Spread of level shares
	Depleted           bool    `csv:"depleted"`
	Stalled            bool    `csv:"stalled"`
}

// BalanceStats summarizes a set of balances.
type BalanceStats struct {
	Mean   float64
	StdDev float64
	P10    float64
	P50    float64
	P90    float64
}

// EnsembleStats aggregates the final state across replicas.
type EnsembleStats struct {
	Replicas    int
	Depleted    int
	Source      BalanceStats
	Environment BalanceStats
	LevelMax    BalanceStats
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeBalanceStats calculates mean, population std, and percentiles.
func ComputeBalanceStats(values []float64) BalanceStats {
	n := len(values)
	if n == 0 {
		return BalanceStats{}
	}

	mean, std := stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return BalanceStats{
		Mean:   mean,
		StdDev: std,
		P10:    Percentile(sorted, 0.10),
		P50:    Percentile(sorted, 0.50),
		P90:    Percentile(sorted, 0.90),
	}
}

// LevelShares returns the maximum share and the std of shares held by each
// level relative to their total. Empty or zero levels yield zeros.
func LevelShares(levels []float64) (maxShare, stdDev float64) {
	var total float64
	for _, v := range levels {
		total += v
	}
	if len(levels) == 0 || total <= 0 {
		return 0, 0
	}
	shares := make([]float64, len(levels))
	for i, v := range levels {
		shares[i] = v / total
		if shares[i] > maxShare {
			maxShare = shares[i]
		}
	}
	_, stdDev = stat.PopMeanStdDev(shares, nil)
	return maxShare, stdDev
}

// ComputeEnsembleStats aggregates replica finals.
func ComputeEnsembleStats(rows []ReplicaRecord) EnsembleStats {
	src := make([]float64, len(rows))
	env := make([]float64, len(rows))
	lvl := make([]float64, len(rows))
	depleted := 0
	for i, r := range rows {
		src[i] = r.SourceBalance
		env[i] = r.EnvironmentBalance
		lvl[i] = r.LevelMax
		if r.Depleted {
			depleted++
		}
	}
	return EnsembleStats{
		Replicas:    len(rows),
		Depleted:    depleted,
		Source:      ComputeBalanceStats(src),
		Environment: ComputeBalanceStats(env),
		LevelMax:    ComputeBalanceStats(lvl),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (b BalanceStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("mean", b.Mean),
		slog.Float64("std", b.StdDev),
		slog.Float64("p10", b.P10),
		slog.Float64("p50", b.P50),
		slog.Float64("p90", b.P90),
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (s EnsembleStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("replicas", s.Replicas),
		slog.Int("depleted", s.Depleted),
		slog.Any("source", s.Source),
		slog.Any("environment", s.Environment),
		slog.Any("level_max", s.LevelMax),
	)
}
