// Command engine runs job searches across many boards, from the command line
// or behind a local HTTP API.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	dev        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "engine",
		Short:        "Job-listing acquisition engine",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// a missing .env is fine
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", opts.envFile, err)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default $JOBSCOUT_CONFIG)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	pf.BoolVar(&opts.dev, "dev", false, "human-readable console logs")

	cmd.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newSourcesCmd(opts),
		newCacheCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}
