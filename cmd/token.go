package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/example/court-scheduler/internal/clubspark"
	"github.com/example/court-scheduler/internal/credentials"
	"github.com/example/court-scheduler/internal/db"
	"github.com/example/court-scheduler/internal/migrate"
	"github.com/example/court-scheduler/internal/token"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored platform credentials",
	}
	cmd.AddCommand(newTokenRefreshCmd())
	return cmd
}

func newTokenRefreshCmd() *cobra.Command {
	var userID, provider string

	c := &cobra.Command{
		Use:   "refresh",
		Short: "Force-refresh a user's access token, bypassing the expiry check",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			cfg, aead, err := loadConfig()
			if err != nil {
				return err
			}
			p, ok := cfg.Providers[provider]
			if !ok {
				return fmt.Errorf("provider %q not configured", provider)
			}
			user, err := p.UserByID(userID)
			if err != nil {
				return err
			}

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := migrate.Up(ctx, d); err != nil {
				return err
			}

			store := credentials.NewStore(d, aead)
			tm := token.NewManager(user.ID, user.Username, user.Password, store, clubspark.NewAuthClient(p.Auth, log), log)

			cred, err := tm.ForceRefresh(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "refreshed token for %q (type=%s, expires_in=%ds, updated=%s)\n",
				user.ID, cred.TokenType, cred.ExpiresIn, cred.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().StringVar(&userID, "user", "", "user id from the config file")
	c.Flags().StringVar(&provider, "provider", "clubspark", "provider key")
	_ = c.MarkFlagRequired("user")
	return c
}
