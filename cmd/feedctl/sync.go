package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-feed-sync/internal/app"
	"github.com/Guizzs26/go-feed-sync/internal/config"
	"github.com/Guizzs26/go-feed-sync/internal/fetcher"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/service"
	"github.com/Guizzs26/go-feed-sync/pkg/infra"
	"github.com/spf13/cobra"
)

var errAlreadyRunning = errors.New("a sync run is already in progress")

func newSyncCmd() *cobra.Command {
	var (
		force bool
		url   string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a manual sync now",
		Long: `Runs a manual sync against the configured feed (or --url). A manual run fails
immediately when another run holds the lock. --force updates every existing
record regardless of its last_updated timestamp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := a.Orchestrator.ManualSync(ctx, service.ManualOptions{Force: force, FeedURL: url})
				if out.AlreadyRunning {
					if out.Holder != nil {
						return fmt.Errorf("%w (%s run, started %s)", errAlreadyRunning, out.Holder.RunType, out.Holder.AcquiredAt.Format("15:04:05"))
					}
					return errAlreadyRunning
				}
				if flags.JSON {
					return printJSON(out.Report)
				}
				printReport(*out.Report)
				if out.Report.Status == models.RunError {
					return errors.New(out.Report.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "update records even when unchanged")
	cmd.Flags().StringVar(&url, "url", "", "feed URL overriding FEED_URL")
	return cmd
}

func newTestFeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-feed [url]",
		Short: "Fetch and parse the feed without storing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := infra.SetupLogger(cfg, appName)
			slog.SetDefault(logger)

			url := cfg.FeedURL
			if len(args) == 1 {
				url = args[0]
			}

			// connectivity checks need neither the store nor the database
			orch := service.NewOrchestrator(fetcher.New(fetcher.DefaultBreaker, logger), nil, nil, nil, nil, nil, service.Options{
				FeedURL:     url,
				ItemElement: cfg.FeedItemElement,
				FeedTimeout: cfg.FeedTimeout,
			}, logger)

			res := orch.TestFeedConnectivity(cmd.Context(), url)
			if flags.JSON {
				if err := printJSON(res); err != nil {
					return err
				}
			} else if res.OK {
				fmt.Printf("OK    %s\n      status %d, %d bytes, %d items in %s\n", res.URL, res.Status, res.Bytes, res.ItemCount, res.Duration.Round(1e6))
			}
			if !res.OK {
				return errors.New(res.Error)
			}
			return nil
		},
	}
}

func newReportsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List recent sync run reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				reports, err := a.History.List(ctx, limit)
				if err != nil {
					return err
				}
				if flags.JSON {
					return printJSON(reports)
				}
				for _, r := range reports {
					printReport(r)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of reports to show (0 for all)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <external-id>",
		Short: "Remove a stored property by its feed id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				removed, err := a.Reconciler.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no stored property with external id %q", args[0])
				}
				fmt.Printf("removed %s\n", args[0])
				return nil
			})
		},
	}
}

func printReport(r models.SyncRunReport) {
	fmt.Printf("%s  %-6s %-7s total=%d added=%d updated=%d skipped=%d  %s  (%s)\n",
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		r.Type, r.Status,
		r.TotalItems, r.Added, r.Updated, r.Skipped,
		r.Duration.Round(1e6), r.RunID,
	)
	if r.Error != "" {
		fmt.Printf("    error: %s\n", r.Error)
	}
	for _, e := range r.Errors {
		fmt.Printf("    item #%d %s: %s\n", e.Index, e.ExternalID, e.Message)
	}
}
