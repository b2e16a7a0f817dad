package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/mataresit-ops/internal/config"
	"github.com/xenking/mataresit-ops/pkg/health"
	"github.com/xenking/mataresit-ops/pkg/httpmiddleware"
)

// Health builds the checks `check` runs and `monitor --listen` serves.
// Only dependencies whose settings are present get a check.
func (e *Env) Health(ctx context.Context) *health.Health {
	h := health.New()
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	if e.Config.Require(config.DatabaseURL) == nil {
		h.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			pool, err := e.Pool(ctx)
			if err != nil {
				return err
			}
			return pool.Ping(ctx)
		})
	}
	if e.Config.Require(config.SupabaseURL) == nil {
		url := e.Config.FunctionsURL() + "/"
		h.AddReadinessCheck("functions", 10*time.Second, health.HTTPCheck(e.HTTPClient(), func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodOptions, url, http.NoBody)
		}))
	}
	if e.Config.Require(config.APIBaseURL) == nil {
		url := e.Config.API.BaseURL + "/health"
		key := e.Config.API.Key
		h.AddReadinessCheck("external-api", 10*time.Second, health.HTTPCheck(e.HTTPClient(), func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return nil, err
			}
			if key != "" {
				req.Header.Set("X-API-Key", key)
			}
			return req, nil
		}))
	}
	return h
}

// ServerConfig controls the status server.
type ServerConfig struct {
	Addr            string
	ReadinessDelay  time.Duration
	ShutdownTimeout time.Duration
}

// Serve exposes /livez, /readyz and /status until ctx is done, then drains
// and shuts down.
func Serve(ctx context.Context, cfg ServerConfig, h *health.Health, status http.Handler) error {
	lg := zctx.From(ctx)
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", h.LiveEndpoint)
	mux.HandleFunc("/readyz", h.ReadyEndpoint)
	if status != nil {
		mux.Handle("/status", status)
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.LogRequests(),
		),
	}

	h.Start(ctx, 10*time.Second)
	h.SetReady(true)

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		h.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.ReadinessDelay))
		time.Sleep(cfg.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down status server", zap.Duration("timeout", cfg.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		h.Stop()
		close(shutdownDone)
	}()

	lg.Info("Status server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	<-shutdownDone
	return nil
}
