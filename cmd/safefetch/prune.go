package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/safefetch/internal/port"
	"github.com/vertextoedge/safefetch/internal/service/maintenance"
)

func newPruneCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove abandoned staging files and old journal entries",
		Long: `Remove .part files untouched for download.part_max_age and journal
entries older than database.history_age. With --watch, keep running and
prune every download.part_max_age / 24 until interrupted.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsManager, err := a.partialStore()
			if err != nil {
				return err
			}
			var pruner port.JournalPruner
			store, err := a.journal()
			if err != nil {
				return err
			}
			if store != nil {
				pruner = store
			}

			partMaxAge := a.cfg.Download.GetPartMaxAge()
			svc := maintenance.New(&maintenance.Config{
				Interval:   partMaxAge / 24,
				PartMaxAge: partMaxAge,
				HistoryAge: a.cfg.Database.GetHistoryAge(),
			}, fsManager, pruner, a.logger)

			if watch {
				return svc.Start(cmd.Context())
			}
			report, err := svc.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d staging files, %d journal entries\n",
				report.PartFiles, report.JournalRows)
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep pruning periodically until interrupted")
	return cmd
}
