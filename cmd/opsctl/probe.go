package main

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/config"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/probe"
)

type probeFlags struct {
	requests    int
	concurrency int
	pause       time.Duration
	method      string
	body        string
	minSuccess  float64
}

func newProbeCmd(rt *cli.Runtime) *cobra.Command {
	var f probeFlags
	cmd := &cobra.Command{
		Use:   "probe <function|url>",
		Short: "Measure latency of an edge function or URL",
		Long: "A bare name is resolved against the project's function gateway and " +
			"sent with the service key. Anything starting with http:// or https:// " +
			"is requested as-is.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveTarget(rt.Config(), args[0], f)
			if err != nil {
				return err
			}
			samples, err := probe.Run(cmd.Context(), rt.Env.HTTPClient(), target, probe.Options{
				Requests:      f.requests,
				Concurrency:   f.concurrency,
				Pause:         f.pause,
				MeterProvider: rt.Env.MeterProvider(),
			})
			if err != nil {
				return err
			}
			st := probe.Summarize(samples)
			printStats(rt.Out, target, st)
			if rate := st.SuccessRate(); rate < f.minSuccess {
				return errors.Errorf("success rate %.1f%% below %.1f%%", rate, f.minSuccess)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.requests, "requests", "n", 10, "total requests")
	fl.IntVarP(&f.concurrency, "concurrency", "c", 1, "requests per batch")
	fl.DurationVar(&f.pause, "pause", 0, "pause between batches")
	fl.StringVarP(&f.method, "method", "X", "", "HTTP method (POST for functions, GET for URLs)")
	fl.StringVarP(&f.body, "data", "d", "", "request body (functions default to {})")
	fl.Float64Var(&f.minSuccess, "min-success", 0, "fail when the success rate is below this percentage")
	return cmd
}

func resolveTarget(cfg *config.Config, arg string, f probeFlags) (probe.Target, error) {
	t := probe.Target{Name: arg, Method: f.method, Header: http.Header{}}
	if f.body != "" {
		t.Body = []byte(f.body)
	}

	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		t.URL = arg
		if t.Method == "" {
			t.Method = http.MethodGet
		}
		if t.Body != nil {
			t.Header.Set("Content-Type", "application/json")
		}
		return t, nil
	}

	if err := cfg.Require(config.SupabaseURL, config.ServiceKey); err != nil {
		return probe.Target{}, err
	}
	t.URL = cfg.FunctionsURL() + "/" + strings.TrimPrefix(arg, "/")
	if t.Method == "" {
		t.Method = http.MethodPost
	}
	if t.Body == nil && t.Method != http.MethodGet {
		t.Body = []byte("{}")
	}
	t.Header.Set("Authorization", "Bearer "+cfg.Supabase.ServiceKey)
	t.Header.Set("apikey", cfg.Supabase.ServiceKey)
	t.Header.Set("Content-Type", "application/json")
	return t, nil
}

func printStats(out *console.Printer, t probe.Target, st probe.Stats) {
	out.Title(fmt.Sprintf("%s %s", t.Method, t.Name))
	ms := func(d time.Duration) string { return d.Round(100 * time.Microsecond).String() }
	out.Pairs(
		console.KV{Key: "Requests", Value: strconv.Itoa(st.Count)},
		console.KV{Key: "Succeeded", Value: fmt.Sprintf("%d (%s)", st.OK, console.Percent(st.SuccessRate()))},
		console.KV{Key: "Failed", Value: strconv.Itoa(st.Failed)},
		console.KV{Key: "Mean", Value: ms(st.Mean)},
		console.KV{Key: "Min", Value: ms(st.Min)},
		console.KV{Key: "Max", Value: ms(st.Max)},
		console.KV{Key: "P95", Value: ms(st.P95)},
	)

	codes := make([]int, 0, len(st.ByStatus))
	for c := range st.ByStatus {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	rows := make([][]string, 0, len(codes)+1)
	for _, c := range codes {
		rows = append(rows, []string{strconv.Itoa(c), strconv.Itoa(st.ByStatus[c])})
	}
	if st.Errors > 0 {
		rows = append(rows, []string{"transport error", strconv.Itoa(st.Errors)})
	}
	if len(rows) > 0 {
		out.Table([]string{"Status", "Count"}, rows)
	}
}
