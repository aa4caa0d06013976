package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/court-scheduler/internal/calendar"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the computed booking schedule without scheduling anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			noop := func(context.Context, config.User, config.Slot, time.Time) {}

			var all []scheduler.Task
			for name, p := range cfg.Providers {
				if name != "clubspark" {
					fmt.Fprintf(os.Stdout, "provider %q has no booking driver yet\n", name)
					continue
				}
				tasks, err := calendar.Plan(time.Now(), loc, cfg.App.LookaheadDays, p, noop)
				if err != nil {
					return err
				}
				all = append(all, tasks...)
			}

			sortTasks(all)
			for _, t := range all {
				fmt.Fprintf(os.Stdout, "%s  %s\n", t.RunAt.In(loc).Format(time.RFC3339), t.Name)
			}
			fmt.Fprintf(os.Stdout, "%d task(s) over the next %d day(s)\n", len(all), cfg.App.LookaheadDays)
			return nil
		},
	}
}
