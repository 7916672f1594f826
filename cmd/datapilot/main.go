package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/datapilot-ai/datapilot/internal/auth"
	"github.com/datapilot-ai/datapilot/internal/config"
	"github.com/datapilot-ai/datapilot/internal/engine"
	"github.com/datapilot-ai/datapilot/internal/ratelimit"
	"github.com/datapilot-ai/datapilot/internal/server"
	"github.com/datapilot-ai/datapilot/internal/service/embedding"
	"github.com/datapilot-ai/datapilot/internal/service/suggest"
	"github.com/datapilot-ai/datapilot/internal/storage"
	"github.com/datapilot-ai/datapilot/internal/telemetry"
	"github.com/datapilot-ai/datapilot/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("DATAPILOT_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("datapilot starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	// Run migrations. RunMigrations tracks applied files in schema_migrations
	// and skips duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Create the AI service transport and decision engine.
	aiClient, err := engine.NewClient(engine.ClientConfig{
		BaseURL:         cfg.AIBaseURL,
		Username:        cfg.AIUsername,
		Password:        cfg.AIPassword,
		Timeout:         cfg.AITimeout,
		MetadataTimeout: cfg.AIMetadataTimeout,
		MaxRetries:      cfg.AIMaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	eng := engine.New(aiClient, engine.DefaultQueryConfig(), logger)

	// Kick off the metadata bootstrap. The server starts serving immediately;
	// /health reports "pending" until the AI SDK's vector store is loaded.
	bootstrapper := engine.NewBootstrapper(aiClient, cfg.AIDatabases, logger)
	bootstrapper.Start(ctx)

	// Create the similar-question service.
	embedder := newEmbeddingProvider(cfg, logger)
	suggestSvc := suggest.New(db, embedder, logger)

	// Create rate limiters.
	authLimiter, askLimiter := newLimiters(cfg, logger)
	defer func() { _ = authLimiter.Close() }()
	defer func() { _ = askLimiter.Close() }()

	// Create and start HTTP server.
	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Engine:              eng,
		Bootstrapper:        bootstrapper,
		SuggestSvc:          suggestSvc,
		AuthLimiter:         authLimiter,
		AskLimiter:          askLimiter,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("datapilot shutting down")

	// The write timeout is generous because engine runs can take minutes;
	// shutdown should not wait that long for stragglers.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("datapilot stopped")
	return nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "noop", or "auto" (default). Auto mode uses
// Ollama when reachable, else noop; with noop the similar-question search
// returns no results but nothing else degrades.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (similar-question search disabled)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		logger.Warn("no embedding provider available, using noop (similar-question search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// newLimiters builds the auth and ask rate limiters.
func newLimiters(cfg config.Config, logger *slog.Logger) (authLimiter, askLimiter ratelimit.Limiter) {
	if !cfg.RateLimitEnabled {
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}, ratelimit.NoopLimiter{}
	}
	logger.Info("rate limiting: memory (in-process token bucket)",
		"auth_rps", cfg.AuthRateRPS, "auth_burst", cfg.AuthRateBurst,
		"ask_rps", cfg.AskRateRPS, "ask_burst", cfg.AskRateBurst)
	return ratelimit.NewMemoryLimiter(cfg.AuthRateRPS, cfg.AuthRateBurst),
		ratelimit.NewMemoryLimiter(cfg.AskRateRPS, cfg.AskRateBurst)
}
