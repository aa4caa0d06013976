package cmd

import (
	"fmt"
	"os"

	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/crypto"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var (
	configPath string
	debugLogs  bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "courtsched",
		Short: "Court booking scheduler that fires reservation attempts the moment slots are released",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "config.yml", "path to config file")
	root.PersistentFlags().BoolVar(&debugLogs, "debug", false, "enable debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newEncryptCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if debugLogs {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// encryptionAEAD builds the secret-field AEAD from ENCRYPTION_KEY, or nil
// when the environment carries no key.
func encryptionAEAD() (*crypto.AEAD, error) {
	v := os.Getenv("ENCRYPTION_KEY")
	if v == "" {
		return nil, nil
	}
	return crypto.New(crypto.KeyFromString(v))
}

func loadConfig() (config.Config, *crypto.AEAD, error) {
	aead, err := encryptionAEAD()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}
	cfg, err := config.Load(configPath, aead)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, aead, nil
}
