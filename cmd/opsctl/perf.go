package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/console"
	"github.com/xenking/mataresit-ops/internal/perf"
)

func newPerfCmd(rt *cli.Runtime) *cobra.Command {
	var (
		iterations int
		th         = perf.DefaultThresholds
	)
	cmd := &cobra.Command{
		Use:   "perf [markdown files...]",
		Short: "Benchmark the markdown table parser and its cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readInputs(args)
			if err != nil {
				return err
			}
			res, err := perf.Run(cmd.Context(), perf.Options{
				Iterations: iterations,
				Inputs:     inputs,
				Thresholds: th,
			})
			if err != nil {
				return err
			}
			printPerf(rt.Out, res)
			if !res.Passed {
				return errors.Errorf("performance thresholds failed: %d", len(res.Failures))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10, "measurement rounds")
	cmd.Flags().DurationVar(&th.MaxColdMean, "max-cold-mean", th.MaxColdMean, "upper bound for the uncached mean parse time (0 disables)")
	cmd.Flags().Float64Var(&th.MinSpeedup, "min-speedup", th.MinSpeedup, "lower bound for cold/warm speedup (0 disables)")
	return cmd
}

func readInputs(paths []string) ([]perf.Input, error) {
	inputs := make([]perf.Input, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrap(err, "read input")
		}
		inputs = append(inputs, perf.Input{Name: filepath.Base(p), Data: data})
	}
	return inputs, nil
}

func printPerf(out *console.Printer, res *perf.Result) {
	out.Title("Markdown table parser")
	row := func(name string, t perf.Timing) []string {
		return []string{name, strconv.Itoa(t.N), t.Min.String(), t.Mean.String(), t.Max.String()}
	}
	out.Table([]string{"Pass", "N", "Min", "Mean", "Max"}, [][]string{
		row("cold", res.Cold),
		row("warm", res.Warm),
	})
	out.Pairs(
		console.KV{Key: "Tables per round", Value: strconv.Itoa(res.Tables)},
		console.KV{Key: "Speedup", Value: fmt.Sprintf("%.1fx", res.Speedup)},
		console.KV{Key: "Cache hit rate", Value: console.Percent(res.Cache.HitRate())},
	)
	if res.Passed {
		out.Success("All thresholds met")
		return
	}
	for _, f := range res.Failures {
		out.Fail("%s", f)
	}
}
