package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/radiate/chart"
	"github.com/pthm-cable/radiate/config"
	"github.com/pthm-cable/radiate/simulation"
	"github.com/pthm-cable/radiate/store"
	"github.com/pthm-cable/radiate/systems"
	"github.com/pthm-cable/radiate/telemetry"
)

type runOptions struct {
	outputDir  string
	force      bool
	resume     string
	dbPath     string
	charts     bool
	chartEvery int
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation until the source is depleted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg, opts)
		},
	}

	addSimFlags(cmd)
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Output directory for CSV logs, config snapshot and charts")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite existing output without asking")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "Resume from a snapshot JSON file")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite run archive (empty = disabled)")
	cmd.Flags().BoolVar(&opts.charts, "charts", true, "Render PNG charts into the output directory")
	cmd.Flags().IntVar(&opts.chartEvery, "chart-every", 1, "Keep every Nth tick for the balance chart")
	return cmd
}

func runSimulation(ctx context.Context, cfg *config.Config, opts runOptions) error {
	outputs := []string{telemetry.ConfigFile, chart.BalancesPNG, chart.LevelsPNG}
	if opts.resume == "" {
		// A resumed run appends to the CSV history instead of replacing it
		outputs = append(outputs, telemetry.BalancesFile, telemetry.LevelsFile)
	}
	if err := telemetry.ConfirmOverwrite(opts.outputDir, outputs, opts.force, telemetry.StdPrompter()); err != nil {
		return err
	}

	seed := resolveSeed(cfg)
	rng := rand.NewPCG(seed, seed)

	var state *systems.State
	startTick := 0
	if opts.resume != "" {
		snap, err := telemetry.LoadSnapshot(opts.resume)
		if err != nil {
			return err
		}
		src, env := snap.Entities()
		if len(env.Levels) != cfg.Environment.LevelCount {
			slog.Warn("snapshot level count differs from config, using snapshot",
				"snapshot", len(env.Levels), "config", cfg.Environment.LevelCount)
		}
		state = systems.RestoreState(cfg, rng, src, env)
		startTick = snap.Tick
	} else {
		var err error
		state, err = systems.NewState(cfg, rng, startTime(cfg))
		if err != nil {
			return err
		}
	}

	var clock simulation.Clock
	if cfg.Clock.Realtime {
		wall := simulation.NewWallClock(cfg.Clock.Tick)
		defer wall.Stop()
		clock = wall
	} else {
		clock = simulation.NewLogicalClock(state.Source.LastUpdate, cfg.Clock.Tick)
	}
	if opts.resume != "" {
		simulation.AlignClock(state, clock)
	}

	om, err := telemetry.NewOutputManager(opts.outputDir, cfg.Telemetry.LevelsEvery)
	if err != nil {
		return err
	}
	defer om.Close()
	if opts.resume != "" {
		om.AppendExisting()
	}
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	history := &telemetry.History{Every: opts.chartEvery}
	sinks := []simulation.Sink{om, history}

	var recorder *store.Recorder
	if opts.dbPath != "" {
		db, err := store.Open(opts.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		recorder, err = db.BeginRun(cfg, seed, time.Now())
		if err != nil {
			return err
		}
		recorder.SetEvery(opts.chartEvery)
		sinks = append(sinks, recorder)
	}

	slog.Info("starting simulation",
		"seed", seed,
		"initial_supply", state.Source.InitialSupply,
		"balance", state.Source.Balance,
		"levels", len(state.Environment.Levels),
		"scale_divisor", cfg.Emission.ScaleDivisor,
		"kappa", cfg.Kappa.Shape,
		"tick", cfg.Clock.Tick,
		"max_ticks", cfg.Run.MaxTicks,
		"realtime", cfg.Clock.Realtime,
	)

	perf := telemetry.NewPerfCollector(cfg.Telemetry.LogEvery)
	runner := simulation.NewRunner(state, clock, simulation.Options{
		MaxTicks:  cfg.Run.MaxTicks,
		LogEvery:  cfg.Telemetry.LogEvery,
		StartTick: startTick,
		Perf:      perf,
	}, sinks...)

	sum, runErr := runner.Run(ctx)
	totalTicks := runner.Tick()

	// Persist whatever state was reached, even after an error.
	if err := om.WriteLevels(totalTicks, state.Environment.Levels); err != nil && runErr == nil {
		runErr = err
	}
	if recorder != nil {
		if err := recorder.Finish(totalTicks, sum.Last, time.Now()); err != nil && runErr == nil {
			runErr = err
		}
	}
	if opts.outputDir != "" {
		snap := telemetry.NewSnapshot(seed, totalTicks, state.Source, state.Environment)
		if path, err := telemetry.SaveSnapshot(snap, opts.outputDir); err != nil {
			if runErr == nil {
				runErr = err
			}
		} else {
			slog.Info("snapshot saved", "path", path)
		}

		if opts.charts {
			renderCharts(opts.outputDir, history.Records, state.Environment.Levels)
		}
	}
	if runErr != nil {
		return runErr
	}

	slog.Info("simulation finished", "summary", sum, "perf", perf.Stats())
	fmt.Printf("%s after %s ticks (%s simulated, %s wall)\n",
		sum.Reason, humanize.Comma(int64(totalTicks)), sum.SimDuration, sum.WallDuration.Round(time.Millisecond))
	fmt.Printf("  source      %s (%s%% of supply)\n",
		humanize.FormatFloat("#,###.######", sum.SourceBalance),
		humanize.FtoaWithDigits(100*state.Source.Fraction(), 4))
	fmt.Printf("  environment %s\n", humanize.FormatFloat("#,###.######", sum.EnvironmentBalance))
	return nil
}

// startTime picks the origin of the simulated timeline.
func startTime(cfg *config.Config) time.Time {
	if cfg.Clock.Realtime {
		return time.Now()
	}
	return time.Unix(0, 0).UTC()
}

func renderCharts(dir string, records []telemetry.BalanceRecord, levels []float64) {
	if err := chart.RenderBalances(records, filepath.Join(dir, chart.BalancesPNG), chart.Size{}); err != nil && !errors.Is(err, chart.ErrNoData) {
		slog.Warn("balance chart failed", "error", err)
	}
	if err := chart.RenderLevels(levels, filepath.Join(dir, chart.LevelsPNG), chart.Size{}); err != nil && !errors.Is(err, chart.ErrNoData) {
		slog.Warn("levels chart failed", "error", err)
	}
}
