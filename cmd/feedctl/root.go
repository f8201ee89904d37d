package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/Guizzs26/go-feed-sync/internal/app"
	"github.com/Guizzs26/go-feed-sync/internal/config"
	"github.com/Guizzs26/go-feed-sync/pkg/infra"
	"github.com/spf13/cobra"
)

const appName = "feedctl"

type rootFlags struct {
	JSON bool
}

var flags rootFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Operate the property feed sync: manual runs, feed checks, image queue and history",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&flags.JSON, "json", false, "print results as JSON")

	root.AddCommand(
		newSyncCmd(),
		newTestFeedCmd(),
		newReportsCmd(),
		newRemoveCmd(),
		newImagesCmd(),
	)
	return root
}

// withApp loads configuration, builds the service graph and runs fn against it
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg, appName)
	slog.SetDefault(logger)

	if err := app.RequireSharedStore(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
