// Package app wires the terminal service together: database, backend client,
// domain services, HTTP surface, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/uzpos/kassa/internal/backend"
	"github.com/uzpos/kassa/internal/currency"
	"github.com/uzpos/kassa/internal/domain/catalog"
	"github.com/uzpos/kassa/internal/handler"
	"github.com/uzpos/kassa/internal/session"
	"github.com/uzpos/kassa/internal/storage/postgres"
	"github.com/uzpos/kassa/pkg/health"
	"github.com/uzpos/kassa/pkg/httpmiddleware"
)

// bloomFPR is the false positive rate for the barcode scan pre-filter. A
// false positive costs one extra backend search, never a wrong answer.
const bloomFPR = 0.001

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend.URL),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Stores.
	snapshots := postgres.NewSnapshotStore(pool)
	rates := postgres.NewRateStore(pool)
	codes := postgres.NewCodeStore(pool)

	// ERP backend client.
	erp := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)

	// Currency converter: stored rate wins, then config fallback; the backend
	// rate is pulled on start and on a refresh ticker.
	conv := currency.New(ctx, rates, cfg.Rate.Default, lg)
	if err := conv.Refresh(ctx, erp); err != nil {
		lg.Warn("Initial rate refresh failed, using stored/default rate", zap.Error(err))
	}
	go refreshRateLoop(ctx, conv, erp, cfg.Rate.Refresh, lg)

	// Catalog with the barcode scan pre-filter primed from known codes.
	cat := catalog.NewService(erp)
	if known, err := codes.All(ctx); err != nil {
		lg.Warn("Loading known barcodes failed, scans go straight to backend", zap.Error(err))
	} else if len(known) > 0 {
		cat.PrimeCodes(known, bloomFPR)
		lg.Info("Barcode filter primed", zap.Int("codes", len(known)))
	}

	// Sessions.
	registry := session.NewRegistry(snapshots, erp, conv, cfg.Session.TTL, lg)
	registry.StartEviction(ctx, cfg.Session.TTL/4)

	// HTTP surface.
	h := handler.NewHandler(registry, cat, conv, erp)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", "Authorization"},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
				httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
					Max:    cfg.RateLimit.Max,
					Window: cfg.RateLimit.Window,
				}),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.LogRequests(),
			),
			"kassa-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// refreshRateLoop keeps the exchange rate current. Failures keep the previous
// rate; the terminal never blocks on a rate fetch.
func refreshRateLoop(ctx context.Context, conv *currency.Converter, source currency.RateSource, interval time.Duration, lg *zap.Logger) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conv.Refresh(ctx, source); err != nil {
				lg.Warn("Rate refresh failed", zap.Error(err))
			}
		}
	}
}
