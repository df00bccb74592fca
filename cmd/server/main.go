/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the policy engine server: ingestion scheduler,
  AI extraction, SQLite storage, and the HTTP API. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment configuration
  2. Parse command-line flags (flags win over environment)
  3. Initialize SQLite store
  4. Build the extractor (degrades gracefully without an API key)
  5. Assemble feed/page sources, pipeline, scheduler, retryer
  6. Start the scheduler and the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PE_PORT or 8080)
  -db      SQLite database path (default: PE_DB_PATH or policies.db)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler (in-flight ingestion pass finishes first)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with a file database
  ./server -db="./data/policies.db"

  # Run on a different port
  ./server -port=3000

ENVIRONMENT:
  See config/config.go for the full PE_* variable list. A .env file in
  the working directory is loaded first; real environment variables win.

SEE ALSO:
  - api/server.go: Router configuration
  - ingest/scheduler.go: Scheduled ingestion
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/budgetlens/policy-engine/api"
	"github.com/budgetlens/policy-engine/config"
	"github.com/budgetlens/policy-engine/extract"
	"github.com/budgetlens/policy-engine/ingest"
	"github.com/budgetlens/policy-engine/source"
	"github.com/budgetlens/policy-engine/store/sqlite"
)

func main() {
	// .env is a convenience for development; real env vars win.
	_ = godotenv.Load()

	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Extractor: without a key, ingestion still runs and records persist
	// unanalyzed until a retry pass with credentials heals them.
	var extractor extract.Extractor
	if cfg.GeminiAPIKey == "" {
		logger.Warn("no Gemini API key configured, new records will be stored unanalyzed")
		extractor = extract.Disabled{}
	} else {
		gem, err := extract.NewGemini(context.Background(), extract.Options{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			Timeout:     cfg.RequestTimeout,
			BackoffBase: cfg.BackoffBase,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize extractor", "error", err)
			os.Exit(1)
		}
		defer gem.Close()
		extractor = gem
	}

	// Ingestion wiring
	pipeline := ingest.NewPipeline(store, buildSources(cfg, logger), extractor, logger)
	scheduler := ingest.NewScheduler(pipeline, store, ingest.SchedulerOptions{
		Interval:     cfg.ScanInterval,
		StartupDelay: cfg.StartupDelay,
		Cooldown:     cfg.FailureCooldown,
		RunOnStartup: cfg.RunOnStartup,
		Enabled:      &cfg.Enabled,
	}, logger)
	retryer := ingest.NewRetryer(store, extractor, logger)

	scheduler.Start()

	// HTTP wiring
	handler := api.NewHandler(store, scheduler, retryer, logger)
	handler.RetryLimit = cfg.RetryLimit
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"db", *dbPath,
			"interval", cfg.ScanInterval.String(),
			"scheduler_enabled", cfg.Enabled)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Interrupts scheduler sleeps; an in-flight pass runs to completion.
	scheduler.Stop()

	logger.Info("server stopped")
}

// buildSources assembles one adapter per configured RSS feed and listing
// page, fanned out behind a Multi. All adapters share the default
// money-keyword filter.
func buildSources(cfg config.Config, logger *slog.Logger) source.Source {
	filter := source.NewKeywordFilter()

	var sources []source.Source
	for _, u := range cfg.FeedURLs {
		sources = append(sources, source.NewRSS(sourceName(u), u, cfg.RequestTimeout, filter))
	}
	for _, u := range cfg.PageURLs {
		sources = append(sources, source.NewHTML(sourceName(u), u, "", 0, cfg.RequestTimeout, filter))
	}
	return source.NewMulti(logger, sources...)
}

// sourceName derives a stable adapter name from the URL host.
func sourceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}
