// Package main provides the fleetwatch command line entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "fleetwatch",
		Short:         "Fleet asset verification and change history service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Directory containing config.yaml")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newTokenCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
