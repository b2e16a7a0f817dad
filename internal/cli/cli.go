// Package cli holds the plumbing shared by the cobra command trees: config
// loading, dependency setup and operator prompts.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	sdkapp "github.com/go-faster/sdk/app"
	"github.com/spf13/cobra"

	"github.com/xenking/mataresit-ops/internal/app"
	"github.com/xenking/mataresit-ops/internal/config"
	"github.com/xenking/mataresit-ops/internal/console"
)

// Runtime is populated before any subcommand runs.
type Runtime struct {
	EnvFiles    []string
	ConfigFiles []string

	Telemetry *sdkapp.Telemetry
	Env       *app.Env
	Out       *console.Printer
}

// Config returns the loaded configuration.
func (r *Runtime) Config() *config.Config { return r.Env.Config }

// NewRoot creates a root command whose subcommands get a loaded Runtime.
// m may be nil.
func NewRoot(use, short string, m *sdkapp.Telemetry) (*cobra.Command, *Runtime) {
	defaults := config.DefaultLoadOptions()
	rt := &Runtime{Telemetry: m}

	root := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{
				EnvFiles:    rt.EnvFiles,
				ConfigFiles: rt.ConfigFiles,
			})
			if err != nil {
				return err
			}
			rt.Env = app.New(cfg, rt.Telemetry)
			rt.Out = console.New(cmd.OutOrStdout())
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&rt.EnvFiles, "env-file", defaults.EnvFiles, "dotenv files loaded before the environment is read")
	root.PersistentFlags().StringSliceVar(&rt.ConfigFiles, "config", defaults.ConfigFiles, "YAML config files")
	return root, rt
}

// Close releases the dependencies opened by commands. It is safe to call
// when config never loaded.
func (r *Runtime) Close() {
	if r.Env != nil {
		r.Env.Close()
	}
}

// Execute runs root and closes rt afterwards, including when the command
// fails.
func Execute(ctx context.Context, root *cobra.Command, rt *Runtime) error {
	defer rt.Close()
	return root.ExecuteContext(ctx)
}

// Confirm asks a yes/no question on out and reads the answer from in.
// Anything but y or yes is a no.
func Confirm(in io.Reader, out io.Writer, question string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
