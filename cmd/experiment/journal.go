package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJournalCmd(rt *cli) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the end of the run journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tail, total := rt.journal.Tail(lines)
			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintf(out, "journal is empty (%s)\n", rt.journal.Path())
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "-- showing %d of %d entries --\n", len(tail), total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of entries to show")
	return cmd
}
