package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/safefetch/internal/service/verifier"
)

func newDigestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digests",
		Short: "List the supported digest algorithms",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range verifier.Algorithms() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-11s %d hex chars\n", name, verifier.DigestSize(name))
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "safefetch", version)
		},
	}
}
