package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/safefetch/internal/domain"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var target string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers from the journal",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.journal()
			if err != nil {
				return err
			}
			if store == nil {
				return &usageError{err: errors.New("journal is disabled")}
			}

			var entries []*domain.JournalEntry
			if target != "" {
				fsManager, err := a.partialStore()
				if err != nil {
					return err
				}
				e, err := store.LastFor(cmd.Context(), filepath.Join(fsManager.BaseDir(), filepath.Clean(target)))
				if err != nil {
					return err
				}
				if e != nil {
					entries = append(entries, e)
				}
			} else if entries, err = store.Recent(cmd.Context(), limit); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tSTATE\tSIZE\tATTEMPTS\tPATH\tURL\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					humanize.Time(e.FinishedAt), e.State, humanize.IBytes(uint64(e.Bytes)),
					e.Attempts, e.RelPath, e.URL, e.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&target, "path", "", "show the last transfer of this relative path")
	return cmd
}
