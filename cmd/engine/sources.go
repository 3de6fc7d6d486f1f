package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jobscout-engine/internal/orchestrator"
)

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List registered sources in priority order and whether they can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tPRIORITY\tSTATUS")
			for _, name := range orchestrator.Ordered(a.reg.Names(), a.cfg.Orchestrator.Priorities) {
				status := "ready"
				if _, err := a.reg.New(name, a.deps()); err != nil {
					status = err.Error()
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", name, orchestrator.Priority(name, a.cfg.Orchestrator.Priorities), status)
			}
			return tw.Flush()
		},
	}
}
