// Command watchtowerd runs the compliance core: it syncs the FDA sources on
// a fixed interval, mirrors sync telemetry into the store, and serves the
// health report and the workflow/export API over HTTP.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres Driver

	"github.com/pharmaforge/forge/pkg/audit"
	"github.com/pharmaforge/forge/pkg/auth"
	"github.com/pharmaforge/forge/pkg/config"
	"github.com/pharmaforge/forge/pkg/observability"
	"github.com/pharmaforge/forge/pkg/risk"
	"github.com/pharmaforge/forge/pkg/store"
	"github.com/pharmaforge/forge/pkg/watchtower"
	"github.com/pharmaforge/forge/pkg/watchtower/cache"
	"github.com/pharmaforge/forge/pkg/watchtower/provider"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profiles, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Fatalf("Failed to load source profiles: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("DB Ping failed: %v", err)
	}
	log.Println("[watchtowerd] postgres: connected")

	st := store.New(db)
	if err := st.Init(ctx); err != nil {
		log.Fatalf("Failed to init store: %v", err)
	}
	log.Println("[watchtowerd] store: ready")

	var obs *observability.Provider
	if cfg.TelemetryEnabled {
		obs, err = observability.New(ctx, &observability.Config{
			ServiceName:  "forge-watchtowerd",
			OTLPEndpoint: cfg.OTLPEndpoint,
			Enabled:      true,
			Insecure:     true,
		})
		if err != nil {
			log.Fatalf("Failed to init observability: %v", err)
		}
		defer func() { _ = obs.Shutdown(context.Background()) }()
		log.Println("[watchtowerd] observability: ready")
	}
	slos := observability.NewDefaultSLOTracker()

	fetcher := provider.NewFetcher(cfg.HTTPTimeout)
	adapters, err := provider.BuildAll(profiles, fetcher)
	if err != nil {
		log.Fatalf("Failed to build source adapters: %v", err)
	}

	engine := watchtower.New(st, openCache(ctx, cfg.RedisAddr), adapters, profiles, watchtower.Options{
		SyncDelay:     cfg.SyncDelay,
		SourceTimeout: cfg.SourceTimeout,
		Observability: obs,
		SLOs:          slos,
	})
	log.Printf("[watchtowerd] sources: %s", strings.Join(engine.EnabledSources(), ", "))

	auditLog := audit.NewStoreLogger(audit.NewLogger(), st)
	api := newAPIServer(
		risk.NewOrchestrator(st, auditLog, 0),
		risk.NewExporter(st, auditLog),
		obs, slos)

	go serveHTTP(ctx, engine, api, cfg.Port)

	log.Printf("[watchtowerd] syncing every %s, press ctrl+c to stop", cfg.SyncInterval)
	runSyncLoop(ctx, engine, slos, cfg.SyncInterval)

	log.Println("[watchtowerd] shutting down")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// openCache connects to redis, falling back to the no-op cache when the
// backend is unreachable. The daemon must run without redis.
func openCache(ctx context.Context, addr string) cache.Cache {
	if addr == "" {
		return cache.Noop{}
	}
	c := cache.NewRedis(addr)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		log.Printf("[watchtowerd] redis unavailable, caching disabled: %v", err)
		return cache.Noop{}
	}
	log.Println("[watchtowerd] redis: connected")
	return c
}

// runSyncLoop runs one immediate batch, then one per interval until the
// context is cancelled.
func runSyncLoop(ctx context.Context, engine *watchtower.Engine, slos *observability.SLOTracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		batch := engine.SyncAll(ctx, false)
		log.Printf("[watchtowerd] sync batch: status=%s added=%d ok=%d failed=%d",
			batch.Status, batch.TotalItemsAdded, batch.SourcesSucceeded, batch.SourcesFailed)
		if status, err := slos.Status(observability.OpSync); err == nil && status.BurnRate > 1.0 {
			log.Printf("[watchtowerd] sync SLO burning: burn_rate=%.2f budget_left=%.1f%%",
				status.BurnRate, status.ErrorBudgetLeft)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// serveHTTP exposes the health report and the workflow/export API.
func serveHTTP(ctx context.Context, engine *watchtower.Engine, api *apiServer, port string) {
	mux := http.NewServeMux()
	api.register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report, err := engine.GetHealth(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		code := http.StatusOK
		if report.OverallStatus == "down" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})

	var handler http.Handler = mux
	handler = auth.RateLimitMiddleware(auth.RateLimitPolicy{RPM: 120, Burst: 20})(handler)
	handler = auth.CORSMiddleware(nil)(handler)
	handler = auth.RequestIDMiddleware(handler)

	srv := &http.Server{Addr: ":" + port, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[watchtowerd] http server: :%s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[watchtowerd] health server error: %v", err)
	}
}
