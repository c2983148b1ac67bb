package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinicflow/identity-service/internal/config"
	"github.com/clinicflow/identity-service/internal/logging"
)

const serviceName = "identity-service"

// Global flags available to all subcommands.
var envFile string

// NewRootCmd creates the root command of the identity service CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Clinic identity and session service",
		Long: `Identity and session lifecycle for the clinic platform: registration,
login, token refresh, password recovery and role administration.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMailerCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig reads the environment and builds the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.Setup(serviceName, version, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
