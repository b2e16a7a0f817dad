// Command quick-migration backfills semantic-search embeddings for receipts
// that have none and reports on coverage.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/cli"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		root, rt := newRootCmd(m)
		return cli.Execute(ctx, root, rt)
	})
}
