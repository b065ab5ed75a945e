package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/walletledger/internal/storage"
)

// DefaultBatchSize is used when the relay is built with a non-positive batch.
const DefaultBatchSize = 100

// Relay moves pending outbox events to a Publisher. Delivery is
// at-least-once: an event published just before a crash is sent again.
type Relay struct {
	store     storage.Store
	publisher Publisher
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// NewRelay builds a relay.
func NewRelay(store storage.Store, publisher Publisher, batchSize int, logger *slog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Stats summarises one dispatch pass.
type Stats struct {
	Dispatched int
	Failed     int
}

// DispatchOnce publishes up to one batch of pending events, oldest first.
// Publish failures are recorded on the event and do not stop the batch.
func (r *Relay) DispatchOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		events, err := tx.Outbox().FetchPending(ctx, r.batchSize)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				stats.Failed++
				r.logger.Warn("outbox publish failed",
					slog.String("event_id", ev.ID.String()),
					slog.String("event_type", ev.EventType),
					slog.Int("attempts", ev.Attempts+1),
					slog.String("error", err.Error()),
				)
				if err := tx.Outbox().MarkFailed(ctx, ev.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := tx.Outbox().MarkDispatched(ctx, ev.ID, r.now()); err != nil {
				return err
			}
			stats.Dispatched++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if stats.Dispatched > 0 || stats.Failed > 0 {
		r.logger.Info("outbox batch dispatched", slog.Int("dispatched", stats.Dispatched), slog.Int("failed", stats.Failed))
	}
	return stats, nil
}

// DefaultInterval is used when Run is given a non-positive interval.
const DefaultInterval = 2 * time.Second

// Run dispatches on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.DispatchOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("outbox dispatch failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

