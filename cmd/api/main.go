package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/infra"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/outbox"
	"github.com/congo-pay/walletledger/internal/routes"
	"github.com/congo-pay/walletledger/internal/server"
	"github.com/congo-pay/walletledger/internal/storage"
	"github.com/congo-pay/walletledger/internal/storage/memory"
	"github.com/congo-pay/walletledger/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var (
		db    *pgxpool.Pool
		store storage.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL,
			infra.WithMaxConns(int32(cfg.DatabaseMaxConns)),
			infra.WithApplicationName(cfg.AppName),
		)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = postgres.NewStore(db, cfg.LockTimeout)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger store")
		store = memory.New(memory.WithLockTimeout(cfg.LockTimeout))
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	var publisher outbox.Publisher = outbox.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		writer, err := infra.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Error("build kafka writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		publisher = outbox.NewKafkaPublisher(writer)
	}

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Store: store, Logger: logger})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay := outbox.NewRelay(store, publisher, cfg.RelayBatchSize, logger)
		if err := relay.Run(relayCtx, cfg.RelayInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", "error", err)
		}
	}()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		stopRelay()
		<-relayDone
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	stopRelay()
	<-relayDone

	logger.Info("server exited cleanly")
}
