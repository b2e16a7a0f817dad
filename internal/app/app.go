// Package app wires configuration, storage, HTTP clients and telemetry into
// the services the command-line tools run.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/mataresit-ops/internal/config"
	"github.com/xenking/mataresit-ops/internal/domain/auth"
	"github.com/xenking/mataresit-ops/internal/domain/flag"
	"github.com/xenking/mataresit-ops/internal/functions"
	"github.com/xenking/mataresit-ops/internal/httpclient"
	"github.com/xenking/mataresit-ops/internal/mataresit"
	"github.com/xenking/mataresit-ops/internal/migration"
	"github.com/xenking/mataresit-ops/internal/objectstore"
	"github.com/xenking/mataresit-ops/internal/storage/postgres"
	"github.com/xenking/mataresit-ops/internal/thumbnail"
	"github.com/xenking/mataresit-ops/pkg/ratelimit"
)

// Env builds dependencies on first use, so each command only needs the
// settings it actually touches.
type Env struct {
	Config *config.Config

	tracer trace.TracerProvider
	meter  metric.MeterProvider

	httpOnce sync.Once
	http     *http.Client

	mu     sync.Mutex
	pool   *pgxpool.Pool
	closed bool
}

// ErrClosed is returned by Pool after Close.
var ErrClosed = errors.New("environment closed")

// New creates an Env. m may be nil.
func New(cfg *config.Config, m *app.Telemetry) *Env {
	e := &Env{Config: cfg}
	if m != nil {
		e.tracer = m.TracerProvider()
		e.meter = m.MeterProvider()
	}
	return e
}

// MeterProvider returns the meter provider, nil when telemetry is off.
func (e *Env) MeterProvider() metric.MeterProvider { return e.meter }

// HTTPClient returns the shared instrumented client.
func (e *Env) HTTPClient() *http.Client {
	e.httpOnce.Do(func() {
		e.http = httpclient.New(httpclient.Options{
			Timeout:        e.Config.HTTP.Timeout,
			TracerProvider: e.tracer,
			MeterProvider:  e.meter,
		})
	})
	return e.http
}

// Pool connects to the database on first call.
func (e *Env) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.pool != nil {
		return e.pool, nil
	}
	if err := e.Config.Require(config.DatabaseURL); err != nil {
		return nil, err
	}
	pool, err := postgres.NewPool(ctx, e.Config.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	e.pool = pool
	return pool, nil
}

// Close releases the database pool.
func (e *Env) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
}

// Functions returns an edge function client authenticated with the service
// key.
func (e *Env) Functions() (*functions.Client, error) {
	if err := e.Config.Require(config.SupabaseURL, config.ServiceKey); err != nil {
		return nil, err
	}
	return functions.NewClient(functions.Options{
		BaseURL:    e.Config.FunctionsURL(),
		ServiceKey: e.Config.Supabase.ServiceKey,
		HTTPClient: e.HTTPClient(),
	})
}

// ObjectStore returns a storage client authenticated with the service key.
func (e *Env) ObjectStore() (*objectstore.Client, error) {
	if err := e.Config.Require(config.SupabaseURL, config.ServiceKey); err != nil {
		return nil, err
	}
	return objectstore.NewClient(e.Config.StorageURL(), e.Config.Supabase.ServiceKey, e.HTTPClient())
}

// API returns a client for the external receipts API.
func (e *Env) API() (*mataresit.Client, error) {
	if err := e.Config.Require(config.APIKey, config.APIBaseURL); err != nil {
		return nil, err
	}
	return mataresit.NewClient(mataresit.Options{
		BaseURL:    e.Config.API.BaseURL,
		APIKey:     e.Config.API.Key,
		HTTPClient: e.HTTPClient(),
		MaxRetries: e.Config.API.MaxRetries,
		BatchPause: e.Config.API.BatchPause,

		PollInterval: e.Config.API.PollInterval,
	})
}

// Migration builds the embedding backfill service. Function credentials are
// only required when withInvoker is set, so read-only commands work with just
// a database URL. ratePerSecond caps invocations; zero disables the cap.
func (e *Env) Migration(ctx context.Context, cfg migration.Config, withInvoker bool, ratePerSecond int) (*migration.Service, error) {
	pool, err := e.Pool(ctx)
	if err != nil {
		return nil, err
	}

	var inv migration.Invoker
	if withInvoker {
		if err := e.Config.Require(config.SupabaseURL, config.ServiceKey); err != nil {
			return nil, err
		}
		fc, err := functions.NewClient(functions.Options{
			BaseURL:    e.Config.FunctionsURL(),
			ServiceKey: e.Config.Supabase.ServiceKey,
			HTTPClient: e.HTTPClient(),
			Limiter:    ratelimit.Every(ratePerSecond),
		})
		if err != nil {
			return nil, err
		}
		inv = fc
	}

	return migration.NewService(
		postgres.NewReceiptRepository(pool),
		postgres.NewEmbeddingRepository(pool),
		inv,
		cfg,
		e.meter,
	)
}

// MigrationConfig returns the backfill settings from configuration.
func (e *Env) MigrationConfig() migration.Config {
	m := e.Config.Migration
	return migration.Config{
		BatchSize:  m.BatchSize,
		Delay:      m.Delay,
		MaxRetries: m.MaxRetries,
		PageSize:   m.PageSize,
	}
}

// Thumbnails builds the thumbnail service.
func (e *Env) Thumbnails(ctx context.Context, limit int) (*thumbnail.Service, error) {
	pool, err := e.Pool(ctx)
	if err != nil {
		return nil, err
	}
	store, err := e.ObjectStore()
	if err != nil {
		return nil, err
	}
	t := e.Config.Thumbnail
	return thumbnail.NewService(postgres.NewReceiptRepository(pool), store, thumbnail.Config{
		Bucket:      t.Bucket,
		MaxSide:     t.MaxSide,
		Quality:     t.Quality,
		Concurrency: t.Concurrency,
		Limit:       limit,
	}), nil
}

// Toggler returns the flag toggler.
func (e *Env) Toggler(ctx context.Context) (*flag.Toggler, error) {
	pool, err := e.Pool(ctx)
	if err != nil {
		return nil, err
	}
	return flag.NewToggler(postgres.NewFlagRepository(pool)), nil
}

// APIKeys returns the key repository and a verifier using the configured
// pepper.
func (e *Env) APIKeys(ctx context.Context) (*postgres.APIKeyRepository, *auth.Verifier, error) {
	if err := e.Config.Require(config.APIKeyPepper); err != nil {
		return nil, nil, err
	}
	pool, err := e.Pool(ctx)
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.NewAPIKeyRepository(pool)
	return repo, auth.NewVerifier(repo, []byte(e.Config.APIKeyPepper)), nil
}
