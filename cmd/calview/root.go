package main

import (
	"strings"

	"github.com/spf13/cobra"

	"calview/internal/config"
	"calview/internal/ics"
	appLog "calview/internal/log"
	"calview/internal/sources"
)

const defaultConfigPath = "/etc/calview/config.yaml"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "calview",
		Short: "calview - merged calendar days from ICS feeds",
		Long: `calview fetches ICS calendars, expands their recurring events and
serves the result as day buckets over HTTP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newDaysCommand(opts))

	return cmd
}

// loadConfig reads, overrides and validates the config, then sets up
// logging from it.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := appLog.Init(cfg.Environment, appLog.Level(strings.ToUpper(cfg.LogLevel))); err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"config_path", opts.configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"refresh", cfg.RefreshCron,
		"horizon", cfg.Horizon,
		"backfill", cfg.Backfill,
		"ics_count", len(cfg.ICS),
	)
	return cfg, nil
}

func newLoader(cfg *config.Config) *sources.Loader {
	return sources.NewLoader(ics.NewFetcher(cfg.CacheDir), sources.FromConfig(cfg), cfg.Location())
}
