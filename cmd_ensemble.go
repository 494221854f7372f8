package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/radiate/ensemble"
	"github.com/pthm-cable/radiate/telemetry"
)

func newEnsembleCmd() *cobra.Command {
	var (
		replicas  int
		outputDir string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "Run independent replicas and summarize how their level splits diverge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			err = telemetry.ConfirmOverwrite(outputDir, []string{telemetry.EnsembleFile, telemetry.ConfigFile}, force, telemetry.StdPrompter())
			if err != nil {
				return err
			}

			seed := resolveSeed(cfg)
			ens, err := ensemble.New(cfg, replicas, seed, time.Unix(0, 0).UTC())
			if err != nil {
				return err
			}

			slog.Info("starting ensemble",
				"replicas", replicas,
				"base_seed", seed,
				"levels", cfg.Environment.LevelCount,
				"max_ticks", cfg.Run.MaxTicks,
			)
			wallStart := time.Now()
			if err := ens.Run(cmd.Context(), cfg.Run.MaxTicks); err != nil {
				return err
			}

			rows := ens.Records()
			stats := telemetry.ComputeEnsembleStats(rows)
			slog.Info("ensemble finished", "ticks", ens.Tick(), "stats", stats)

			if outputDir != "" {
				om, err := telemetry.NewOutputManager(outputDir, 0)
				if err != nil {
					return err
				}
				defer om.Close()
				if err := om.WriteConfig(cfg); err != nil {
					return err
				}
				if err := om.WriteEnsemble(rows); err != nil {
					return err
				}
			}

			fmt.Printf("%d replicas, %s ticks in %s (%d depleted)\n",
				stats.Replicas, humanize.Comma(int64(ens.Tick())),
				time.Since(wallStart).Round(time.Millisecond), stats.Depleted)
			fmt.Printf("  source      mean %s  std %s\n",
				humanize.FtoaWithDigits(stats.Source.Mean, 6), humanize.FtoaWithDigits(stats.Source.StdDev, 6))
			fmt.Printf("  environment mean %s  std %s\n",
				humanize.FtoaWithDigits(stats.Environment.Mean, 6), humanize.FtoaWithDigits(stats.Environment.StdDev, 6))
			fmt.Printf("  max level share p10/p50/p90 %.4f / %.4f / %.4f\n",
				stats.LevelMax.P10, stats.LevelMax.P50, stats.LevelMax.P90)
			return nil
		},
	}

	addSimFlags(cmd)
	cmd.Flags().IntVar(&replicas, "replicas", 16, "Number of independent replicas")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for ensemble.csv and config snapshot")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing output without asking")
	return cmd
}
