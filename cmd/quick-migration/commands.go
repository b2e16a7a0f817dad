package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/mataresit-ops/internal/app"
	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/config"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
	"github.com/xenking/mataresit-ops/internal/migration"
	"github.com/xenking/mataresit-ops/pkg/health"
)

func newRootCmd(m *sdkapp.Telemetry) (*cobra.Command, *cli.Runtime) {
	root, rt := cli.NewRoot("quick-migration", "Backfill receipt embeddings", m)
	root.AddCommand(
		newCheckCmd(rt),
		newAnalyzeCmd(rt),
		newDryRunCmd(rt),
		newMigrateCmd(rt),
		newMonitorCmd(rt),
		newReportCmd(rt),
	)
	return root, rt
}

func priorityArg(args []string) (receipt.Priority, error) {
	if len(args) == 0 {
		return receipt.PriorityAll, nil
	}
	return receipt.ParsePriority(args[0])
}

var priorityArgs = cobra.MatchAll(cobra.MaximumNArgs(1), func(_ *cobra.Command, args []string) error {
	_, err := priorityArg(args)
	return err
})

func newCheckCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := rt.Config()
			out := rt.Out

			out.Title("Configuration")
			settings := []struct {
				name    string
				setting config.Setting
			}{
				{"Database", config.DatabaseURL},
				{"Project URL", config.SupabaseURL},
				{"Service key", config.ServiceKey},
			}
			var missing error
			for _, s := range settings {
				if err := cfg.Require(s.setting); err != nil {
					out.Fail("%s: %v", s.name, err)
					if missing == nil {
						missing = err
					}
					continue
				}
				out.Success("%s: set", s.name)
			}
			out.Pairs(console.KV{Key: "Environment", Value: cfg.Env})

			out.Title("Connectivity")
			results := rt.Env.Health(ctx).RunOnce(ctx)
			for _, r := range results {
				if r.OK() {
					out.Success("%s (%s)", r.Name, r.Duration.Round(time.Millisecond))
				} else {
					out.Fail("%s: %v", r.Name, r.Err)
				}
			}

			if missing != nil {
				return missing
			}
			if failed := health.Failed(results); len(failed) > 0 {
				return errors.Errorf("checks failed: %v", failed)
			}

			svc, err := rt.Env.Migration(ctx, rt.Env.MigrationConfig(), false, 0)
			if err != nil {
				return err
			}
			cov, err := svc.Coverage(ctx)
			if err != nil {
				return err
			}
			printCoverage(out, cov)
			return nil
		},
	}
}

func newAnalyzeCmd(rt *cli.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Show embedding coverage and remaining work by priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.Env.Migration(cmd.Context(), rt.Env.MigrationConfig(), false, 0)
			if err != nil {
				return err
			}
			a, err := svc.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			printCoverage(rt.Out, a.Coverage)
			printPriorities(rt.Out, a.ByPriority)
			return nil
		},
	}
}

func newDryRunCmd(rt *cli.Runtime) *cobra.Command {
	var show int
	cmd := &cobra.Command{
		Use:   "dry-run [high|medium|low|all]",
		Short: "List the receipts a migration would process",
		Args:  priorityArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, _ := priorityArg(args)
			svc, err := rt.Env.Migration(cmd.Context(), rt.Env.MigrationConfig(), false, 0)
			if err != nil {
				return err
			}
			res, err := svc.DryRun(cmd.Context(), priority)
			if err != nil {
				return err
			}

			out := rt.Out
			out.Title(fmt.Sprintf("Dry run: %s priority", priority))
			out.Pairs(
				console.KV{Key: "Receipts", Value: strconv.Itoa(len(res.Plan.Receipts))},
				console.KV{Key: "Batch size", Value: strconv.Itoa(res.BatchSize)},
				console.KV{Key: "Batches", Value: strconv.Itoa(res.Batches)},
				console.KV{Key: "Delay total", Value: res.Estimate.String()},
			)
			printReceipts(out, res.Plan.Receipts, show)
			return nil
		},
	}
	cmd.Flags().IntVar(&show, "show", 10, "number of receipts to list")
	return cmd
}

func newMigrateCmd(rt *cli.Runtime) *cobra.Command {
	var (
		batchSize  int
		delay      time.Duration
		maxRetries int
		rate       int
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "migrate [high|medium|low|all]",
		Short: "Generate embeddings for receipts that have none",
		Args:  priorityArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			priority, _ := priorityArg(args)

			cfg := rt.Env.MigrationConfig()
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("delay") {
				cfg.Delay = delay
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.MaxRetries = maxRetries
			}

			svc, err := rt.Env.Migration(ctx, cfg, true, rate)
			if err != nil {
				return err
			}
			plan, err := svc.Plan(ctx, priority)
			if err != nil {
				return err
			}
			out := rt.Out
			if len(plan.Receipts) == 0 {
				out.Success("No %s priority receipts need embeddings", priority)
				return nil
			}

			eff := svc.Config()
			out.Title(fmt.Sprintf("Migrating %d %s priority receipts", len(plan.Receipts), priority))
			out.Pairs(
				console.KV{Key: "Batch size", Value: strconv.Itoa(eff.BatchSize)},
				console.KV{Key: "Batches", Value: strconv.Itoa(plan.Batches(eff.BatchSize))},
				console.KV{Key: "Delay", Value: eff.Delay.String()},
				console.KV{Key: "Max retries", Value: strconv.Itoa(eff.MaxRetries)},
			)
			if !yes && !cli.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Proceed?") {
				out.Warn("Aborted")
				return nil
			}

			sum, err := svc.Execute(ctx, plan, func(batch, batches int, sum *migration.Summary) {
				pct := float64(sum.Processed()) / float64(sum.Total) * 100
				out.Line("%s batch %d/%d  ok %d  failed %d", console.Bar(pct, 20), batch, batches, sum.Succeeded, sum.Failed)
			})
			if sum != nil {
				printSummary(out, sum)
			}
			if err != nil {
				return err
			}
			if sum.Failed > 0 {
				return errors.Errorf("%d of %d receipts failed", sum.Failed, sum.Total)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&batchSize, "batch-size", 5, "receipts invoked concurrently per batch")
	f.DurationVar(&delay, "delay", 2*time.Second, "pause between batches")
	f.IntVar(&maxRetries, "max-retries", 2, "retries per receipt for temporary failures")
	f.IntVar(&rate, "rate", 0, "maximum invocations per second (0 for no limit)")
	f.BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newMonitorCmd(rt *cli.Runtime) *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll coverage until every receipt has embeddings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := rt.Env.Migration(ctx, rt.Env.MigrationConfig(), false, 0)
			if err != nil {
				return err
			}

			var latest atomic.Pointer[embedding.Coverage]
			onTick := func(cov embedding.Coverage) {
				latest.Store(&cov)
				rt.Out.Line("%s %s  %d/%d embedded, %d missing",
					time.Now().Format(time.TimeOnly),
					console.Bar(cov.Percent(), 30),
					cov.Embedded, cov.Receipts, cov.Missing(),
				)
			}

			if listen == "" {
				_, err := svc.Monitor(ctx, interval, onTick)
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			srvCtx, stop := context.WithCancel(gctx)
			defer stop()
			g.Go(func() error {
				return app.Serve(srvCtx, app.ServerConfig{Addr: listen}, rt.Env.Health(srvCtx), statusHandler(&latest))
			})
			g.Go(func() error {
				defer stop()
				_, err := svc.Monitor(gctx, interval, onTick)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			zctx.From(ctx).Info("Monitor finished")
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "poll interval")
	cmd.Flags().StringVar(&listen, "listen", "", "serve /livez, /readyz and /status on this address")
	return cmd
}

type statusResponse struct {
	Receipts int64   `json:"receipts"`
	Embedded int64   `json:"embedded"`
	Missing  int64   `json:"missing"`
	Percent  float64 `json:"percent"`
}

func statusHandler(latest *atomic.Pointer[embedding.Coverage]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cov := latest.Load()
		if cov == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statusResponse{
			Receipts: cov.Receipts,
			Embedded: cov.Embedded,
			Missing:  cov.Missing(),
			Percent:  cov.Percent(),
		}); err != nil {
			zctx.From(r.Context()).Warn("Write status", zap.Error(err))
		}
	})
}

func newReportCmd(rt *cli.Runtime) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise backfill progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.Env.Migration(cmd.Context(), rt.Env.MigrationConfig(), false, 0)
			if err != nil {
				return err
			}
			rep, err := svc.Report(cmd.Context())
			if err != nil {
				return err
			}

			out := rt.Out
			printCoverage(out, rep.Coverage())
			printPriorities(out, rep.Remaining)

			out.Title("Embeddings by content type")
			rows := make([][]string, 0, len(rep.ContentType))
			for _, c := range rep.ContentType {
				rows = append(rows, []string{c.ContentType, strconv.FormatInt(c.Count, 10)})
			}
			out.Table([]string{"Content type", "Rows"}, rows)

			lineItems := embedding.Coverage{Receipts: rep.Receipts, Embedded: rep.WithLineItems}
			out.Pairs(console.KV{
				Key:   "Receipts with line items",
				Value: fmt.Sprintf("%d (%s)", rep.WithLineItems, console.Percent(lineItems.Percent())),
			})

			if outPath == "" {
				return nil
			}
			f, err := os.Create(outPath)
			if err != nil {
				return errors.Wrap(err, "create report file")
			}
			if err := migration.Export(f, rep); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, "close report file")
			}
			out.Success("Report written to %s", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "also write the report as gzip-compressed JSON")
	return cmd
}

func printCoverage(out *console.Printer, cov embedding.Coverage) {
	out.Title("Embedding coverage")
	out.Pairs(
		console.KV{Key: "Receipts", Value: strconv.FormatInt(cov.Receipts, 10)},
		console.KV{Key: "With embeddings", Value: strconv.FormatInt(cov.Embedded, 10)},
		console.KV{Key: "Missing", Value: strconv.FormatInt(cov.Missing(), 10)},
		console.KV{Key: "Coverage", Value: console.Bar(cov.Percent(), 30) + " " + console.Percent(cov.Percent())},
	)
}

func printPriorities(out *console.Printer, hist map[receipt.Priority]int) {
	out.Title("Missing by priority")
	rows := make([][]string, 0, 3)
	for _, p := range receipt.Priorities() {
		rows = append(rows, []string{string(p), strconv.Itoa(hist[p])})
	}
	out.Table([]string{"Priority", "Receipts"}, rows)
}

func printReceipts(out *console.Printer, rs []receipt.Receipt, limit int) {
	if len(rs) == 0 || limit <= 0 {
		return
	}
	rows := make([][]string, 0, min(limit, len(rs)))
	for _, r := range rs[:min(limit, len(rs))] {
		rows = append(rows, []string{
			r.ID.String(),
			string(receipt.Classify(r)),
			r.Merchant,
			r.Total.StringFixed(2),
			r.CreatedAt.Format(time.DateOnly),
		})
	}
	out.Table([]string{"Receipt", "Priority", "Merchant", "Total", "Created"}, rows)
	if len(rs) > limit {
		out.Line("... and %d more", len(rs)-limit)
	}
}

func printSummary(out *console.Printer, sum *migration.Summary) {
	out.Title("Migration summary")
	out.Pairs(
		console.KV{Key: "Total", Value: strconv.Itoa(sum.Total)},
		console.KV{Key: "Succeeded", Value: strconv.Itoa(sum.Succeeded)},
		console.KV{Key: "Failed", Value: strconv.Itoa(sum.Failed)},
		console.KV{Key: "Duration", Value: sum.Duration.Round(time.Millisecond).String()},
	)
	if len(sum.Failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(sum.Failures))
	for _, f := range sum.Failures {
		rows = append(rows, []string{f.Receipt.ID.String(), strconv.Itoa(f.Attempts), f.Err.Error()})
	}
	out.Table([]string{"Receipt", "Attempts", "Error"}, rows)
}
