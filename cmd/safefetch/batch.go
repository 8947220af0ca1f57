package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/safefetch/internal/manifest"
)

func newBatchCmd(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch <manifest.yaml>",
		Short: "Download every entry of a YAML manifest in parallel",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			reqs, err := m.Requests(a.cfg.Download.GetProtocols())
			if err != nil {
				return err
			}

			f, err := a.fetcher()
			if err != nil {
				return err
			}
			results, err := f.GetAll(cmd.Context(), reqs, concurrency)
			if err != nil {
				return err
			}

			var errs []error
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "%-7s %s: %v\n", "failed", r.Request.RelPath, r.Err)
					errs = append(errs, fmt.Errorf("%s: %w", r.Request.RelPath, r.Err))
					continue
				}
				printResult(out, r.Result)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d downloads failed: %w", len(errs), len(results), errors.Join(errs...))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "parallel downloads (default download.concurrency)")
	return cmd
}
