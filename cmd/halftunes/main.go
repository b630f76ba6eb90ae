package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "halftunes",
		Short: "Search and download song previews",
		Long: `HalfTunes searches the iTunes catalog for songs and downloads their
audio previews. Downloads can be paused, resumed and cancelled, either
from the command line or through the HTTP API started by "serve".`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to configuration file (defaults plus HALFTUNES_* environment when empty)")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newSearchCmd(&configPath),
		newFetchCmd(&configPath),
	)

	return cmd
}
