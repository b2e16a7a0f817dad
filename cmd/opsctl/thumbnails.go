package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/snapshot"
	"github.com/xenking/mataresit-ops/internal/thumbnail"
)

func newThumbnailsCmd(rt *cli.Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Generate receipt thumbnails or roll a run back",
	}
	cmd.AddCommand(newThumbnailsRunCmd(rt), newThumbnailsRollbackCmd(rt))
	return cmd
}

func newThumbnailsRunCmd(rt *cli.Runtime) *cobra.Command {
	var (
		limit int
		path  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create thumbnails for receipts that have an image but none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := rt.Env.Thumbnails(ctx, limit)
			if err != nil {
				return err
			}
			if path == "" {
				path = fmt.Sprintf("thumbnails-%s.jsonl.gz", time.Now().UTC().Format("20060102T150405Z"))
			}
			snap, err := snapshot.Create[thumbnail.Entry](path)
			if err != nil {
				return err
			}

			sum, runErr := svc.Run(ctx, snap)
			if err := snap.Close(); err != nil && runErr == nil {
				runErr = err
			}
			if sum != nil {
				printThumbnailSummary(rt.Out, sum)
				rt.Out.Line("Rollback snapshot: %s (%d entries)", path, snap.Count())
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum receipts to process")
	cmd.Flags().StringVar(&path, "snapshot", "", "rollback snapshot path (default thumbnails-<time>.jsonl.gz)")
	return cmd
}

func newThumbnailsRollbackCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <snapshot>",
		Short: "Restore thumbnail pointers recorded by a previous run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []thumbnail.Entry
			if err := snapshot.ReadFile(args[0], func(e thumbnail.Entry) error {
				entries = append(entries, e)
				return nil
			}); err != nil {
				return err
			}
			if len(entries) == 0 {
				rt.Out.Warn("Snapshot %s is empty", args[0])
				return nil
			}

			svc, err := rt.Env.Thumbnails(cmd.Context(), 0)
			if err != nil {
				return err
			}
			n, err := svc.Rollback(cmd.Context(), entries)
			rt.Out.Line("Restored %d of %d receipts", n, len(entries))
			return err
		},
	}
}

func printThumbnailSummary(out *console.Printer, sum *thumbnail.Summary) {
	out.Title("Thumbnails")
	out.Pairs(
		console.KV{Key: "Candidates", Value: strconv.Itoa(sum.Candidates)},
		console.KV{Key: "Generated", Value: strconv.Itoa(sum.Generated)},
		console.KV{Key: "Failed", Value: strconv.Itoa(len(sum.Failures))},
		console.KV{Key: "Duration", Value: sum.Duration.Round(time.Millisecond).String()},
	)
	if len(sum.Failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(sum.Failures))
	for _, f := range sum.Failures {
		rows = append(rows, []string{f.ReceiptID.String(), f.Err.Error()})
	}
	out.Table([]string{"Receipt", "Error"}, rows)
}
