package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/radiate/store"
)

func newRunsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs archived with run --db",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs archived")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSEED\tLEVELS\tTICKS\tSOURCE\tENVIRONMENT\tDEPLETED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%v\n",
					r.ID, humanize.Time(r.StartedAt), r.Seed, r.LevelCount,
					humanize.Comma(int64(r.Ticks)),
					humanize.FtoaWithDigits(r.FinalSource, 6),
					humanize.FtoaWithDigits(r.FinalEnv, 6),
					r.Depleted,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "radiate.db", "SQLite run archive")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")
	return cmd
}
