package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/calendar"
	"github.com/example/court-scheduler/internal/clubspark"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/credentials"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/migrate"
	"github.com/example/court-scheduler/internal/notify"
	"github.com/example/court-scheduler/internal/scheduler"
	"github.com/example/court-scheduler/internal/stripe"
	"github.com/example/court-scheduler/internal/token"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan the booking schedule and fire attempts at release time",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			cfg, aead, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			store := credentials.NewStore(d, aead)
			mailer := &notify.Mailer{
				Host:     cfg.App.SMTPHost,
				Port:     cfg.App.SMTPPort,
				Username: cfg.App.SMTPUsername,
				Password: cfg.App.SMTPPassword,
				From:     cfg.App.EmailFrom,
				Log:      log,
			}

			sched := scheduler.New(log)
			now := time.Now()

			for name, p := range cfg.Providers {
				if name != "clubspark" {
					log.Warn().Str("provider", name).Msg("provider has no booking driver yet, skipping")
					continue
				}

				book := newClubsparkBookFunc(cfg, p, store, mailer, log)
				tasks, err := calendar.Plan(now, loc, cfg.App.LookaheadDays, p, book)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					sched.Schedule(t)
					log.Info().Str("task", t.Name).Time("run_at", t.RunAt).Msg("scheduled")
				}

				if cfg.App.AddDebugTask && len(p.Slots) > 0 {
					scheduleDebugTask(sched, loc, p.Slots[0], p, book, log)
				}
			}

			log.Info().Int("pending", sched.Pending()).Msg("scheduler running")
			<-ctx.Done()
			log.Info().Msg("shutting down")
			sched.Shutdown()
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

// newClubsparkBookFunc wires one booker per configured user so that attempts
// for the same identity share a token manager (and therefore serialize their
// refreshes) while different users stay fully independent.
func newClubsparkBookFunc(cfg config.Config, p config.Provider, store *credentials.Store, mailer *notify.Mailer, log zerolog.Logger) calendar.BookFunc {
	authc := clubspark.NewAuthClient(p.Auth, log)
	payments := stripe.New(log)

	bookers := make(map[string]*booking.Booker, len(p.Users))
	for _, u := range p.Users {
		tm := token.NewManager(u.ID, u.Username, u.Password, store, authc, log)
		bookers[u.ID] = &booking.Booker{
			Tokens:        tm,
			API:           clubspark.NewClient(p.APIBase, tm, log),
			Payments:      payments,
			Notifier:      mailer,
			Attempts:      store,
			EmailsEnabled: cfg.App.EmailsEnabled,
			Log:           log,
		}
	}

	return func(ctx context.Context, user config.User, slot config.Slot, date time.Time) {
		b, ok := bookers[user.ID]
		if !ok {
			log.Error().Str("user", user.ID).Msg("no booker for user")
			return
		}
		_, _ = b.Book(ctx, user, slot, date)
	}
}

// scheduleDebugTask fires the first configured slot ten seconds from now,
// targeting its next matching weekday. Development aid, off by default.
func scheduleDebugTask(sched *scheduler.Scheduler, loc *time.Location, slot config.Slot, p config.Provider, book calendar.BookFunc, log zerolog.Logger) {
	user, err := p.UserByID(slot.User)
	if err != nil {
		log.Error().Err(err).Msg("debug task: unknown user")
		return
	}
	day, err := config.ParseWeekday(slot.TargetDay)
	if err != nil {
		log.Error().Err(err).Msg("debug task: bad target day")
		return
	}

	now := time.Now().In(loc)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for date.Weekday() != day {
		date = date.AddDate(0, 0, 1)
	}

	sched.Schedule(scheduler.Task{
		Name:  "debug booking",
		RunAt: time.Now().Add(10 * time.Second),
		Action: func(ctx context.Context) {
			book(ctx, user, slot, date)
		},
	})
	log.Info().Time("date", date).Msg("debug task scheduled")
}

// sortTasks orders tasks by run instant for display.
func sortTasks(tasks []scheduler.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].RunAt.Before(tasks[j].RunAt) })
}
