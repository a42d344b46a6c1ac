package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/fieldship/internal/config"
	"github.com/alfredjeanlab/fieldship/internal/ui"
)

var (
	configFile string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fieldship <command>",
	Short:         "Ship governed analytics events from your database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			os.Setenv(config.EnvConfigFile, configFile)
		}
		ui.SetColor(!jsonOutput && ui.ShouldUseColor(os.Stdout))

		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a TOML config file (overrides $"+config.EnvConfigFile+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "governance", Title: "Governance:"},
		&cobra.Group{ID: "backfill", Title: "Backfill:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Governance
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fieldsCmd)

	// Backfill
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(runsCmd)

	// System
	rootCmd.AddCommand(workerCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
