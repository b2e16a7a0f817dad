// Command opsctl bundles the smaller operational tools: environment
// switching, flag toggles, endpoint probes, thumbnails, parser benchmarks,
// API key checks and the external API client.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/cli"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		root, rt := newRootCmd(m)
		return cli.Execute(ctx, root, rt)
	})
}

func newRootCmd(m *app.Telemetry) (*cobra.Command, *cli.Runtime) {
	root, rt := cli.NewRoot("opsctl", "Operational tools for the receipts platform", m)
	root.AddCommand(
		newEnvCmd(rt),
		newToggleCmd(rt),
		newProbeCmd(rt),
		newThumbnailsCmd(rt),
		newPerfCmd(rt),
		newAPIKeyCmd(rt),
		newAPICmd(rt),
	)
	return root, rt
}
