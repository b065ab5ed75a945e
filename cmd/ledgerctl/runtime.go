package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/infra"
	"github.com/congo-pay/walletledger/internal/outbox"
	"github.com/congo-pay/walletledger/internal/storage"
	"github.com/congo-pay/walletledger/internal/storage/postgres"
)

// runtime holds what the commands need. Tests replace the openers.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	openStore     func(ctx context.Context) (storage.Store, func(), error)
	migrate       func(ctx context.Context) error
	openPublisher func() (outbox.Publisher, func(), error)
}

func newRuntime(cfg config.Config, logger *slog.Logger) *runtime {
	rt := &runtime{cfg: cfg, logger: logger, out: os.Stdout}

	connect := func(ctx context.Context) (*pgxpool.Pool, error) {
		return infra.NewPostgresPool(ctx, cfg.DatabaseURL,
			infra.WithMaxConns(int32(cfg.DatabaseMaxConns)),
			infra.WithApplicationName(cfg.AppName+"-ctl"),
		)
	}

	rt.openStore = func(ctx context.Context) (storage.Store, func(), error) {
		db, err := connect(ctx)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(db, cfg.LockTimeout), db.Close, nil
	}

	rt.migrate = func(ctx context.Context) error {
		db, err := connect(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		return postgres.Migrate(ctx, db)
	}

	rt.openPublisher = func() (outbox.Publisher, func(), error) {
		if len(cfg.KafkaBrokers) == 0 {
			return outbox.NewLogPublisher(logger), func() {}, nil
		}
		writer, err := infra.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := writer.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}
		return outbox.NewKafkaPublisher(writer), closeFn, nil
	}

	return rt
}

func (rt *runtime) printf(format string, args ...any) {
	fmt.Fprintf(rt.out, format, args...)
}
