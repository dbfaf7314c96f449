// Command hearthd runs the cache-aside KV service over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goflare.io/hearth"
	"goflare.io/hearth/internal/httpapi"
)

func main() {
	var (
		addr          = flag.String("addr", "0.0.0.0:8080", "listen address")
		cacheCapacity = flag.Int("cache-capacity", 10000, "maximum number of cached entries")
		redisAddr     = flag.String("redis-addr", "127.0.0.1:6379", "durable store address")
		redisPassword = flag.String("redis-password", "", "durable store password")
		redisDB       = flag.Int("redis-db", 0, "durable store database number")
		poolSize      = flag.Int("pool-size", 4, "number of store connections")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := hearth.New(ctx, &redis.Options{
		Addr:     *redisAddr,
		Password: *redisPassword,
		DB:       *redisDB,
	},
		hearth.WithLogger(logger),
		hearth.WithCacheCapacity(*cacheCapacity),
		hearth.WithPoolSize(*poolSize),
	)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Error("close failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           httpapi.NewHandler(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("stopped")
}
