//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/mataresit-ops/internal/domain/auth"
	"github.com/xenking/mataresit-ops/internal/domain/flag"
	"github.com/xenking/mataresit-ops/internal/domain/receipt"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ops",
				"POSTGRES_PASSWORD": "ops",
				"POSTGRES_DB":       "mataresit",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = c.Terminate(context.Background()) }()

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://ops:ops@%s:%s/mataresit?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

func seedUser(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, NewProfileRepository(testPool).Upsert(context.Background(), id, id.String()+"@example.com", "Test User"))
	return id
}

func newReceipt(userID uuid.UUID, merchant string, total string) receipt.Receipt {
	return receipt.Receipt{
		ID:               uuid.New(),
		UserID:           userID,
		Merchant:         merchant,
		Date:             time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Total:            decimal.RequireFromString(total),
		Currency:         "USD",
		Status:           "unreviewed",
		ProcessingStatus: receipt.ProcessingComplete,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestReceiptAndEmbeddingRepositories(t *testing.T) {
	ctx := context.Background()
	receipts := NewReceiptRepository(testPool)
	embeddings := NewEmbeddingRepository(testPool)
	user := seedUser(t)

	withImage := newReceipt(user, "Amazon", "129.99")
	withImage.ImageURL = "https://storage.example.com/receipt-images/a.jpg"
	plain := newReceipt(user, "Uber", "25.50")

	require.NoError(t, receipts.Upsert(ctx, withImage))
	require.NoError(t, receipts.Upsert(ctx, plain))
	require.NoError(t, receipts.AddLineItem(ctx, uuid.New(), plain.ID, "Ride", decimal.RequireFromString("25.50")))
	require.NoError(t, embeddings.Insert(ctx, uuid.New(), plain.ID, user, "full_text"))
	require.NoError(t, embeddings.Insert(ctx, uuid.New(), plain.ID, user, "merchant"))
	orphan := uuid.New()
	require.NoError(t, embeddings.Insert(ctx, uuid.New(), orphan, user, "full_text"))

	got, err := receipts.Get(ctx, withImage.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amazon", got.Merchant)
	assert.True(t, decimal.RequireFromString("129.99").Equal(got.Total))
	assert.Empty(t, got.ThumbnailURL)

	_, err = receipts.Get(ctx, uuid.New())
	require.ErrorIs(t, err, receipt.ErrNotFound)

	embedded, err := embeddings.FilterEmbedded(ctx, []uuid.UUID{withImage.ID, plain.ID})
	require.NoError(t, err)
	assert.Contains(t, embedded, plain.ID)
	assert.NotContains(t, embedded, withImage.ID)

	var streamed []uuid.UUID
	require.NoError(t, embeddings.EmbeddedReceiptIDs(ctx, func(id uuid.UUID) error {
		streamed = append(streamed, id)
		return nil
	}))
	assert.Contains(t, streamed, plain.ID)
	assert.NotContains(t, streamed, orphan, "embeddings of deleted receipts are skipped")

	embeddedCount, err := embeddings.CountEmbeddedReceipts(ctx)
	require.NoError(t, err)
	assert.Len(t, streamed, int(embeddedCount))

	breakdown, err := embeddings.ContentTypeBreakdown(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, breakdown)

	withLines, err := receipts.CountWithLineItems(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, withLines, int64(1))

	missing, err := receipts.ListMissingThumbnails(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, missing)
	assert.Equal(t, withImage.ID, missing[0].ID)

	require.NoError(t, receipts.SetThumbnailURL(ctx, withImage.ID, "https://storage.example.com/thumbnails/a.jpg"))
	got, err = receipts.Get(ctx, withImage.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.com/thumbnails/a.jpg", got.ThumbnailURL)

	require.NoError(t, receipts.SetThumbnailURL(ctx, withImage.ID, ""))
	got, err = receipts.Get(ctx, withImage.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ThumbnailURL)

	var paged []receipt.Receipt
	after := uuid.Nil
	for {
		page, err := receipts.Page(ctx, after, 1)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		after = page[len(page)-1].ID
	}
	count, err := receipts.Count(ctx)
	require.NoError(t, err)
	assert.Len(t, paged, int(count))
}

func TestFlagRepository(t *testing.T) {
	ctx := context.Background()
	keys := NewAPIKeyRepository(testPool)
	flags := NewFlagRepository(testPool)

	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "flag-test",
		KeyHash: auth.Hash("mk_test_flag", []byte("pepper")),
		Prefix:  "mk_test_flag",
		Name:    "flag test",
		Scopes:  []string{"receipts:read"},
		Active:  true,
	}))

	res, err := flag.NewToggler(flags).Toggle(ctx, flag.APIKeyActive, "flag-test", nil)
	require.NoError(t, err)
	assert.True(t, res.Before)
	assert.False(t, res.After)
	assert.True(t, res.Confirmed)

	_, err = flags.Get(ctx, flag.APIKeyActive, "missing")
	require.ErrorIs(t, err, flag.ErrNotFound)

	user := seedUser(t)
	on := true
	res, err = flag.NewToggler(flags).Toggle(ctx, flag.EmailNotifications, user.String(), &on)
	require.NoError(t, err)
	assert.False(t, res.Changed(), "preferences default to enabled")
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	keys := NewAPIKeyRepository(testPool)
	pepper := []byte("pepper")

	require.NoError(t, keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      "verify-test",
		KeyHash: auth.Hash("mk_live_verify", pepper),
		Prefix:  auth.DisplayPrefix("mk_live_verify"),
		Name:    "verify test",
		Scopes:  []string{"receipts:read", "claims:write"},
		Active:  true,
	}))

	info, err := auth.NewVerifier(keys, pepper).Verify(ctx, "mk_live_verify")
	require.NoError(t, err)
	assert.Equal(t, "verify-test", info.ID)
	assert.True(t, info.HasScope("claims:write"))

	_, err = keys.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrNotFound)

	all, err := keys.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)
}
