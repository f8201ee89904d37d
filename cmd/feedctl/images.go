package main

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-feed-sync/internal/app"
	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/spf13/cobra"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Inspect and operate the image download queue",
	}
	cmd.AddCommand(
		newImagesStatusCmd(),
		newImagesProcessCmd(),
		newImagesRetryCmd(),
		newImagesClearCmd(),
	)
	return cmd
}

func newImagesStatusCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending and failed queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.Images.Status(ctx)
				if err != nil {
					return err
				}
				if flags.JSON {
					return printJSON(st)
				}
				fmt.Printf("pending=%d failed=%d\n", st.Pending, st.Failed)
				if verbose {
					for _, it := range st.Items {
						fmt.Printf("  %-7s %-36s %s attempts=%d %s\n", it.Status, it.EntityID, it.ImageURL, it.Attempts, it.LastReason)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every queued item")
	return cmd
}

func newImagesProcessCmd() *cobra.Command {
	var (
		limit      int
		continuous bool
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one batch of pending images, or run until the queue drains with --continuous",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if continuous {
					res, err := a.Images.RunContinuous(ctx)
					if err != nil {
						return err
					}
					if flags.JSON {
						return printJSON(res)
					}
					fmt.Printf("iterations=%d processed=%d failed=%d remaining=%d stopped_by=%s\n",
						res.Iterations, res.Processed, res.Failed, res.Remaining, res.StoppedBy)
					return nil
				}

				res, err := a.Images.ProcessBatch(ctx, limit)
				if err != nil {
					return err
				}
				if flags.JSON {
					return printJSON(res)
				}
				fmt.Printf("processed=%d failed=%d remaining=%d\n", res.Processed, res.Failed, res.Remaining)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "batch size (defaults to IMAGE_BATCH_SIZE)")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "keep processing within the time budget")
	return cmd
}

func newImagesRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Move failed images back to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Images.RetryFailed(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("requeued %d failed images\n", n)
				return nil
			})
		},
	}
}

func newImagesClearCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queued images (all, or only --status pending|failed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch models.ImageStatus(status) {
			case "", models.ImagePending, models.ImageFailed:
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Images.Clear(ctx, models.ImageStatus(status))
				if err != nil {
					return err
				}
				fmt.Printf("cleared %d images\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only clear items with this status")
	return cmd
}
