// Command aksver-proxy serves cached AKS Kubernetes version listings
// for Azure regions, backed by a background-refreshed management token.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aksver/aksver/pkg/cache"
	"github.com/aksver/aksver/pkg/config"
	"github.com/aksver/aksver/pkg/health"
	"github.com/aksver/aksver/pkg/logging"
	"github.com/aksver/aksver/pkg/server"
	"github.com/aksver/aksver/pkg/token"
	"github.com/aksver/aksver/pkg/upstream"
)

const (
	bootstrapTimeout = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("Configuration invalid")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger.Info().
		Str("subscription", cfg.SubscriptionID).
		Bool("show_preview", cfg.ShowPreview).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("Starting aksver-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Credentials. The bootstrap exchange is synchronous: the service
	// never listens without a usable token.
	exchanger, err := token.NewAzureExchanger()
	if err != nil {
		logger.Fatal().Err(err).Msg("Credential setup failed")
	}

	tokens := token.NewStore(cfg.TokenLeeway)
	refresher := token.NewRefresher(tokens, exchanger, token.RefresherConfig{
		Interval:     cfg.RefreshInterval,
		Trigger:      cfg.RefreshTrigger,
		RestartDelay: cfg.RestartDelay,
	}, logging.NewLogger("token"))

	bootCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	if err := refresher.Bootstrap(bootCtx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("Initial token exchange failed")
	}
	cancel()
	refresher.Start(ctx)

	// Optional shared cache layer.
	var store *cache.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Redis unreachable")
		}
		defer rdb.Close()
		store = cache.NewStore(rdb)
		logger.Info().Str("addr", opts.Addr).Msg("Shared cache layer enabled")
	}

	client, err := upstream.New(upstream.Config{
		BaseURL:        cfg.MgmtBaseURL,
		SubscriptionID: cfg.SubscriptionID,
		Timeout:        cfg.HTTPTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Upstream client setup failed")
	}

	srv := server.New(
		server.Config{
			Port:             cfg.Port,
			SubscriptionID:   cfg.SubscriptionID,
			ShowPreview:      cfg.ShowPreview,
			MaxRetryAttempts: cfg.MaxRetryAttempts,
		},
		cache.New(cfg.CacheTTL, cache.DefaultMaxEntries, store),
		client,
		tokens,
		health.NewReporter(tokens, refresher, cfg.RefreshInterval),
		logging.NewLogger("http"),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
	}
	logger.Info().Msg("Stopped")
}
