package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	jsonfileAdapter "progresskit/adapters/jsonfile"
	mem "progresskit/adapters/memory"
	redisAdapter "progresskit/adapters/redis"
	sqlxAdapter "progresskit/adapters/sqlx"
	"progresskit/api/httpapi"
	"progresskit/config"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/leaderboard"
	"progresskit/progression"
	"progresskit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Service *engine.ProgressionService
	Ranker  *leaderboard.Ranker
	Board   leaderboard.Board
	Handler http.Handler
	Server  *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	return setupStorage(ctx, cfg)
}

func provideCatalog(cfg *config.Config) (engine.Catalog, error) {
	return setupCatalog(cfg)
}

func provideService(hub *realtime.Hub, storage engine.Storage, catalog engine.Catalog, cfg *config.Config) *engine.ProgressionService {
	return progression.New(
		progression.WithRealtime(hub),
		progression.WithStorage(storage),
		progression.WithCatalog(catalog),
		progression.WithDispatchMode(engine.DispatchAsync),
		progression.WithBaseThreshold(cfg.Progression.BaseThreshold),
		progression.WithRetryAttempts(cfg.Progression.RetryAttempts),
		progression.WithLazyProgressInit(cfg.Progression.LazyProgressInit),
	)
}

func provideRanker(svc *engine.ProgressionService) *leaderboard.Ranker {
	return leaderboard.NewRanker(svc.Storage(), nil)
}

func provideBoard(svc *engine.ProgressionService) leaderboard.Board {
	board := leaderboard.NewSkipList()
	// Keep the live board fed from the event stream.
	svc.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) {
		board.Update(e.UserID, e.Total)
	})
	return board
}

func provideHandler(svc *engine.ProgressionService, hub *realtime.Hub, ranker *leaderboard.Ranker, board leaderboard.Board, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, ranker, board, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	case "file":
		return jsonfileAdapter.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// catalogFile is the on-disk shape of the achievement/badge catalogue.
type catalogFile struct {
	Achievements []core.AchievementDefinition `json:"achievements"`
	Badges       []core.BadgeDefinition       `json:"badges"`
}

// setupCatalog loads achievement and badge definitions from the configured
// file, or starts with an empty catalogue when no path is set.
func setupCatalog(cfg *config.Config) (engine.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return engine.NewStaticCatalog(nil, nil)
	}
	data, err := os.ReadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", cfg.Catalog.Path, err)
	}
	return engine.NewStaticCatalog(file.Achievements, file.Badges)
}
