package systems

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/pthm-cable/radiate/components"
	"github.com/pthm-cable/radiate/config"
)

// Result is the per-tick snapshot handed to persistence and logging.
type Result struct {
	Time               time.Time
	Elapsed            float64 // Seconds since the previous tick (0 if the clock went backward)
	Emitted            float64
	EmissionRate       float64
	SourceBalance      float64
	EnvironmentBalance float64
	Levels             []float64 // Copy of the environment levels, nil when untracked
	Clamped            bool      // Emission exceeded the balance and was cut to it
	Depleted           bool
}

// LogValue implements slog.LogValuer for structured logging.
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("time", r.Time),
		slog.Float64("elapsed", r.Elapsed),
		slog.Float64("emitted", r.Emitted),
		slog.Float64("emission_rate", r.EmissionRate),
		slog.Float64("source", r.SourceBalance),
		slog.Float64("environment", r.EnvironmentBalance),
		slog.Int("levels", len(r.Levels)),
		slog.Bool("clamped", r.Clamped),
		slog.Bool("depleted", r.Depleted),
	)
}

// Transfer moves emitted energy from a source into an environment.
type Transfer struct {
	Model   EmissionModel
	Sampler *KappaSampler
}

// NewTransfer builds a transfer from config, drawing level splits from src.
func NewTransfer(cfg *config.Config, src rand.Source) *Transfer {
	return &Transfer{
		Model:   NewEmissionModel(cfg.Emission),
		Sampler: NewKappaSampler(cfg.Kappa, src),
	}
}

// Advance runs one tick: emission over the time since the source's last
// update is subtracted from the source and added to the environment. When
// the environment tracks levels, a fresh kappa split is drawn every call.
// On error neither entity is modified.
func (t *Transfer) Advance(src *components.Source, env *components.Environment, now time.Time) (Result, error) {
	elapsed := now.Sub(src.LastUpdate).Seconds()
	if elapsed < 0 {
		slog.Warn("clock went backward, skipping emission",
			"last_update", src.LastUpdate,
			"now", now,
			"elapsed", elapsed,
		)
		elapsed = 0
	}

	amount, err := t.Model.Amount(src, elapsed)
	if err != nil {
		return Result{}, fmt.Errorf("emission amount: %w", err)
	}

	clamped := false
	if amount > src.Balance {
		amount = src.Balance
		clamped = true
	}

	var split []float64
	if env.TracksLevels() && amount > 0 {
		split, err = t.Sampler.Distribution(len(env.Levels))
		if err != nil {
			return Result{}, fmt.Errorf("level split: %w", err)
		}
	}

	src.Balance -= amount
	if clamped {
		src.Balance = 0
	}
	env.Balance += amount
	for i, p := range split {
		env.Levels[i] += amount * p
	}
	src.LastUpdate = now

	return Result{
		Time:               now,
		Elapsed:            elapsed,
		Emitted:            amount,
		EmissionRate:       src.EmissionRate,
		SourceBalance:      src.Balance,
		EnvironmentBalance: env.Balance,
		Levels:             cloneLevels(env.Levels),
		Clamped:            clamped,
		Depleted:           src.Depleted(),
	}, nil
}

// Stalled reports whether a tick that covered time emitted less than one
// unit in the last place of the source balance. From there on the balance
// only moves by rounding, if at all, and the asymptotic tail is out of
// float64 reach.
func (r Result) Stalled() bool {
	if r.Elapsed <= 0 || r.Depleted {
		return false
	}
	ulp := math.Nextafter(r.SourceBalance, math.Inf(1)) - r.SourceBalance
	return r.Emitted < ulp
}

func cloneLevels(levels []float64) []float64 {
	if levels == nil {
		return nil
	}
	out := make([]float64, len(levels))
	copy(out, levels)
	return out
}

// State owns one Source/Environment pair. It is not safe for concurrent use.
type State struct {
	Source      components.Source
	Environment components.Environment

	transfer *Transfer
}

// NewState initializes a full source and an empty environment at start.
func NewState(cfg *config.Config, src rand.Source, start time.Time) (*State, error) {
	env, err := components.NewEnvironment(cfg.Environment.LevelCount)
	if err != nil {
		return nil, err
	}
	return &State{
		Source:      components.NewSource(cfg.Source.InitialSupply, start),
		Environment: env,
		transfer:    NewTransfer(cfg, src),
	}, nil
}

// RestoreState rebuilds a state from previously captured entities.
func RestoreState(cfg *config.Config, src rand.Source, source components.Source, env components.Environment) *State {
	return &State{
		Source:      source,
		Environment: env,
		transfer:    NewTransfer(cfg, src),
	}
}

// Advance runs one tick at now.
func (s *State) Advance(now time.Time) (Result, error) {
	return s.transfer.Advance(&s.Source, &s.Environment, now)
}
