// Command habr-ingest fetches a range of habr.com articles and exports
// the parsed records to a JSON, CSV, or Parquet artifact.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/habr-tools/habr-ingest/pkg/cache"
	"github.com/habr-tools/habr-ingest/pkg/client"
	"github.com/habr-tools/habr-ingest/pkg/config"
	"github.com/habr-tools/habr-ingest/pkg/export"
	"github.com/habr-tools/habr-ingest/pkg/ingest"
	"github.com/habr-tools/habr-ingest/pkg/logging"
	"github.com/habr-tools/habr-ingest/pkg/metrics"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "habr-ingest",
		Short: "Ingest a range of habr.com articles into one artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging.SinkConfig())
	logger.Info().Str("config", configPath).Msg("habr-ingest starting")

	if cfg.Metrics.Enabled {
		server := metrics.Serve(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	var pageCache *cache.Manager
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis %s: %w", cfg.Cache.Addr, err)
		}
		defer redisClient.Close()
		pageCache = cache.NewManager(redisClient, cfg.Cache.TTL)
		logger.Info().Str("addr", cfg.Cache.Addr).Msg("Page cache enabled")
	}

	fetcher, err := client.New(client.Config{
		BaseURL: cfg.BaseURL,
		Headers: cfg.Headers.Build(),
		Retry: client.RetryPolicy{
			MaxAttempts: cfg.Request.RetryAttempts,
			MinDelay:    cfg.Request.MinDelay,
			MaxDelay:    cfg.Request.MaxDelay,
		},
		MaxConcurrentRequests: cfg.Request.MaxConcurrentRequests,
		Timeout:               cfg.Request.Timeout,
		ConnLimit:             cfg.Request.Session.Limit,
		ConnLimitPerHost:      cfg.Request.Session.LimitPerHost,
		IdleConnTimeout:       cfg.Request.Session.IdleConnTimeout,
		ForceClose:            cfg.Request.Session.ForceClose,
		Cache:                 pageCache,
	})
	if err != nil {
		return err
	}
	defer fetcher.Close()

	exporter := export.New(cfg.Save.ArtifactPath(), cfg.Request.BufferSize)

	scheduler, err := ingest.New(fetcher, exporter, ingest.Config{
		First:     cfg.Pages.First,
		Last:      cfg.Pages.Last,
		BatchSize: cfg.Request.BatchSize,
		Skip:      cfg.Save.Skip,
		Pace: client.RetryPolicy{
			MaxAttempts: cfg.Request.RetryAttempts,
			MinDelay:    cfg.Request.MinDelay,
			MaxDelay:    cfg.Request.MaxDelay,
		},
	})
	if err != nil {
		return err
	}

	return scheduler.Run(ctx)
}
