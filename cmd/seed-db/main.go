// Command seed-db creates the development schema and fills it with a
// deterministic set of receipts, embeddings, notifications and an API key.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/cli"
	"github.com/xenking/mataresit-ops/internal/config"
	"github.com/xenking/mataresit-ops/internal/domain/auth"
	"github.com/xenking/mataresit-ops/internal/domain/embedding"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
	"github.com/xenking/mataresit-ops/internal/storage/postgres"
)

const seedKeyEnv = "MATARESIT_SEED_API_KEY"

// namespace makes seeded ids stable across runs.
var namespace = uuid.MustParse("6f1c9b7e-2d4a-4c1e-9a57-0b8f3e2d5c10")

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		root, rt := newRootCmd(m)
		return cli.Execute(ctx, root, rt)
	})
}

type options struct {
	receipts int
	embedded int
	apiKey   string
}

func newRootCmd(m *app.Telemetry) (*cobra.Command, *cli.Runtime) {
	var opts options
	root, rt := cli.NewRoot("seed-db", "Seed a development database", m)
	root.Args = cobra.NoArgs
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		if opts.apiKey == "" {
			opts.apiKey = os.Getenv(seedKeyEnv)
		}
		if opts.apiKey == "" {
			return &config.MissingVarError{Var: seedKeyEnv}
		}
		if err := rt.Config().Require(config.APIKeyPepper); err != nil {
			return err
		}
		pool, err := rt.Env.Pool(cmd.Context())
		if err != nil {
			return err
		}
		if err := seed(cmd.Context(), pool, []byte(rt.Config().APIKeyPepper), opts); err != nil {
			return err
		}
		rt.Out.Success("Seeded %d receipts (%d with embeddings) and key %s",
			opts.receipts, min(opts.embedded, opts.receipts), auth.DisplayPrefix(opts.apiKey))
		return nil
	}
	f := root.Flags()
	f.IntVar(&opts.receipts, "receipts", 40, "receipts to create")
	f.IntVar(&opts.embedded, "embedded", 10, "receipts that get an embedding")
	f.StringVar(&opts.apiKey, "api-key", "", "raw API key to store (or "+seedKeyEnv+")")
	return root, rt
}

func id(kind string, n int) uuid.UUID {
	return uuid.NewSHA1(namespace, fmt.Appendf(nil, "%s/%d", kind, n))
}

var merchants = []string{"Tesco", "Starbucks", "Shell", "IKEA", "", "Grab", "Guardian", "Mr DIY"}

func seed(ctx context.Context, pool *pgxpool.Pool, pepper []byte, opts options) error {
	lg := zctx.From(ctx)

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return err
	}

	userID := id("user", 0)
	profiles := postgres.NewProfileRepository(pool)
	if err := profiles.Upsert(ctx, userID, "dev@example.com", "Development User"); err != nil {
		return errors.Wrap(err, "seed profile")
	}

	receipts := postgres.NewReceiptRepository(pool)
	embeddings := postgres.NewEmbeddingRepository(pool)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range opts.receipts {
		r := sampleReceipt(i, userID, start)
		if err := receipts.Upsert(ctx, r); err != nil {
			return errors.Wrap(err, "seed receipt")
		}
		for j := range i % 4 {
			amount := r.Total.Div(decimal.NewFromInt(int64(i%4 + 1))).Round(2)
			if err := receipts.AddLineItem(ctx, id("line", i*10+j), r.ID, fmt.Sprintf("Item %d", j+1), amount); err != nil {
				return errors.Wrap(err, "seed line item")
			}
		}
		if i < opts.embedded {
			if err := embeddings.Insert(ctx, id("embedding", i), r.ID, userID, embedding.ContentFullText); err != nil {
				return errors.Wrap(err, "seed embedding")
			}
		}
	}
	lg.Info("Seeded receipts", zap.Int("count", opts.receipts), zap.Int("embedded", min(opts.embedded, opts.receipts)))

	if err := profiles.AddNotification(ctx, id("notification", 0), userID, "Welcome to Mataresit"); err != nil {
		return errors.Wrap(err, "seed notification")
	}

	keys := postgres.NewAPIKeyRepository(pool)
	if err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:     "dev",
		UserID: userID.String(),
		// Only the peppered hash is stored.
		KeyHash: auth.Hash(opts.apiKey, pepper),
		Prefix:  auth.DisplayPrefix(opts.apiKey),
		Name:    "Development key",
		Scopes:  []string{"receipts:read", "receipts:write", "claims:read", "search:read", "analytics:read"},
		Active:  true,
	}); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Seeded API key", zap.String("prefix", auth.DisplayPrefix(opts.apiKey)))
	return nil
}

// sampleReceipt spreads receipts over every priority bucket: complete with a
// high total, complete with a merchant, and pending or merchant-less.
func sampleReceipt(i int, userID uuid.UUID, start time.Time) receipt.Receipt {
	status := receipt.ProcessingComplete
	if i%5 == 4 {
		status = receipt.ProcessingPending
	}
	total := decimal.NewFromInt(int64(15 + (i*37)%180)).Add(decimal.New(int64(i%100), -2))
	r := receipt.Receipt{
		ID:               id("receipt", i),
		UserID:           userID,
		Merchant:         merchants[i%len(merchants)],
		Date:             start.AddDate(0, 0, i),
		Total:            total,
		Currency:         "MYR",
		Status:           "unreviewed",
		ProcessingStatus: status,
		ImageURL:         fmt.Sprintf("https://images.example.com/receipts/%d.jpg", i),
		CreatedAt:        start.AddDate(0, 0, i).Add(time.Hour),
	}
	if r.Merchant != "" {
		r.FullText = fmt.Sprintf("%s\nTOTAL %s %s", r.Merchant, r.Total.StringFixed(2), r.Currency)
	}
	return r
}
