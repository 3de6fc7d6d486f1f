package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	var key string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached search results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			if key != "" {
				if err := a.cache.Invalidate(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s from the %s cache\n", key, a.cfg.Cache.Backend)
				return nil
			}
			if err := a.cache.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared the %s cache\n", a.cfg.Cache.Backend)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&key, "key", "", "remove a single cache key")

	cmd.AddCommand(clearCmd)
	return cmd
}
