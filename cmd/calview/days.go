package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"calview/internal/config"
	"calview/internal/dateutil"
	"calview/internal/days"
	appLog "calview/internal/log"
)

type daysOptions struct {
	from string
	to   string
}

func newDaysCommand(opts *rootOptions) *cobra.Command {
	dopts := &daysOptions{}

	cmd := &cobra.Command{
		Use:   "days",
		Short: "Fetch calendars once and print an agenda",
		Long: `Fetch every configured calendar once and print the events of each day
in [--from, --to). Both default to the configured backfill and horizon
around today.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			first, last, err := dopts.dayRange(cfg)
			if err != nil {
				return err
			}

			snap, err := newLoader(cfg).Refresh(cmd.Context())
			if err != nil {
				if len(snap.Calendars) == 0 {
					return err
				}
				appLog.Warn("some calendars failed to load", "err", err)
			}

			got, err := days.Get(snap.Sources(), first, last)
			if err != nil {
				return err
			}
			return renderAgenda(cmd.OutOrStdout(), got)
		},
	}

	cmd.Flags().StringVar(&dopts.from, "from", "", "first day, YYYY-MM-DD (default: today - backfill)")
	cmd.Flags().StringVar(&dopts.to, "to", "", "day after the last day, YYYY-MM-DD (default: today + horizon)")
	return cmd
}

func (o *daysOptions) dayRange(cfg *config.Config) (first, last dateutil.Date, err error) {
	today := dateutil.DateOf(time.Now().In(cfg.Location()))
	backfill, err := cfg.BackfillDays()
	if err != nil {
		return first, last, err
	}
	horizon, err := cfg.HorizonDays()
	if err != nil {
		return first, last, err
	}
	first, last = today.AddDays(-backfill), today.AddDays(horizon)

	if o.from != "" {
		if first, err = dateutil.ParseDate(o.from); err != nil {
			return first, last, fmt.Errorf("--from: %w", err)
		}
	}
	if o.to != "" {
		if last, err = dateutil.ParseDate(o.to); err != nil {
			return first, last, fmt.Errorf("--to: %w", err)
		}
	}
	return first, last, nil
}
