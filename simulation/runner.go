package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pthm-cable/radiate/systems"
	"github.com/pthm-cable/radiate/telemetry"
)

// Sink consumes tick results. Record is called once per tick, in order.
type Sink interface {
	Record(tick int, res systems.Result) error
}

// Options control when a run stops and how often it logs.
type Options struct {
	MaxTicks  int // Ticks in this run; 0 = until the source is depleted
	LogEvery  int // 0 = no per-tick logging
	StartTick int // Tick number already reached, when resuming

	Perf *telemetry.PerfCollector // Optional tick timing, logged with each LogEvery line
}

// StopReason explains why a run ended.
type StopReason string

const (
	StopDepleted  StopReason = "depleted"
	StopStalled   StopReason = "stalled" // Emission fell below the balance's resolution
	StopMaxTicks  StopReason = "max_ticks"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
)

// Summary describes a finished run.
type Summary struct {
	Ticks              int
	Reason             StopReason
	SourceBalance      float64
	EnvironmentBalance float64
	Emitted            float64 // Total moved during this run
	SimDuration        time.Duration
	WallDuration       time.Duration
	Last               systems.Result
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("ticks", s.Ticks),
		slog.String("reason", string(s.Reason)),
		slog.Float64("source", s.SourceBalance),
		slog.Float64("environment", s.EnvironmentBalance),
		slog.Float64("emitted", s.Emitted),
		slog.Duration("sim_duration", s.SimDuration),
		slog.Duration("wall_duration", s.WallDuration),
	)
}

// Runner advances one State until it is depleted or stalled, hits MaxTicks,
// or its context is cancelled. A stall is a tick whose emission fell below
// the balance's float64 resolution (see systems.Result.Stalled).
type Runner struct {
	state *systems.State
	clock Clock
	opts  Options
	sinks []Sink

	tick int
}

// NewRunner creates a runner. The clock should start at the state's
// LastUpdate time.
func NewRunner(state *systems.State, clock Clock, opts Options, sinks ...Sink) *Runner {
	return &Runner{state: state, clock: clock, opts: opts, sinks: sinks, tick: opts.StartTick}
}

// Tick returns the number of the last completed tick, counting from the
// resumed StartTick.
func (r *Runner) Tick() int {
	return r.tick
}

// State returns the state being driven.
func (r *Runner) State() *systems.State {
	return r.state
}

// Run drives the simulation. A cancelled context ends the run without error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	wallStart := time.Now()
	simStart := r.clock.Now()
	startBalance := r.state.Source.Balance

	sum := Summary{}
	finish := func(reason StopReason) Summary {
		sum.Ticks = r.tick - r.opts.StartTick
		sum.Reason = reason
		sum.SourceBalance = r.state.Source.Balance
		sum.EnvironmentBalance = r.state.Environment.Balance
		sum.Emitted = startBalance - r.state.Source.Balance
		sum.SimDuration = r.clock.Now().Sub(simStart)
		sum.WallDuration = time.Since(wallStart)
		return sum
	}

	for {
		if r.state.Source.Depleted() {
			return finish(StopDepleted), nil
		}
		if r.opts.MaxTicks > 0 && r.tick-r.opts.StartTick >= r.opts.MaxTicks {
			return finish(StopMaxTicks), nil
		}

		perf := r.opts.Perf
		perf.StartTick()
		perf.StartPhase(telemetry.PhaseWait)
		if err := r.clock.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return finish(StopCancelled), nil
			}
			return finish(StopError), err
		}

		perf.StartPhase(telemetry.PhaseAdvance)
		res, err := r.state.Advance(r.clock.Now())
		if err != nil {
			return finish(StopError), fmt.Errorf("tick %d: %w", r.tick+1, err)
		}
		r.tick++
		sum.Last = res

		if res.Clamped {
			slog.Info("source depleted", "tick", r.tick, "emitted", res.Emitted)
		}

		perf.StartPhase(telemetry.PhaseRecord)
		for _, s := range r.sinks {
			if err := s.Record(r.tick, res); err != nil {
				return finish(StopError), fmt.Errorf("tick %d: record: %w", r.tick, err)
			}
		}
		perf.EndTick()

		if r.opts.LogEvery > 0 && r.tick%r.opts.LogEvery == 0 {
			if perf != nil {
				slog.Info("tick", "tick", r.tick, "result", res, "perf", perf.Stats())
			} else {
				slog.Info("tick", "tick", r.tick, "result", res)
			}
		}

		if res.Stalled() {
			slog.Info("source stalled", "tick", r.tick, "balance", res.SourceBalance, "emitted", res.Emitted)
			return finish(StopStalled), nil
		}
	}
}
