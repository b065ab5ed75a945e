package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

type auditRepo struct {
	q querier
}

func (r auditRepo) Record(ctx context.Context, entry model.AuditLog) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	const query = `INSERT INTO audit_logs (id, actor_id, operation, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.Exec(ctx, query, entry.ID, entry.ActorID, entry.Operation, metadata, entry.CreatedAt)
	return mapError(err)
}

type outboxRepo struct {
	q querier
}

func (r outboxRepo) Append(ctx context.Context, ev model.OutboxEvent) error {
	const query = `
        INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.Exec(ctx, query, ev.ID, ev.AggregateID, ev.EventType, []byte(ev.Payload), ev.CreatedAt)
	return mapError(err)
}

// FetchPending returns undispatched events oldest first. Rows locked by a
// concurrent relay are skipped.
func (r outboxRepo) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	const query = `
        SELECT id, aggregate_id, event_type, payload, created_at, dispatched_at, attempts, last_error
        FROM outbox_events
        WHERE dispatched_at IS NULL
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.OutboxEvent
	for rows.Next() {
		var (
			ev      model.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &payload, &ev.CreatedAt, &ev.DispatchedAt, &ev.Attempts, &ev.LastError); err != nil {
			return nil, mapError(err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, mapError(rows.Err())
}

func (r outboxRepo) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE outbox_events SET dispatched_at = $1, last_error = '' WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.q.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`, reason, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type reconcileRepo struct {
	q querier
}

func (r reconcileRepo) Save(ctx context.Context, job model.ReconcileJob) error {
	const query = `
        INSERT INTO reconcile_jobs (id, scope, scope_id, status, recorded_balance, ledger_balance, drift, wallets_checked, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query, job.ID, string(job.Scope), job.ScopeID, string(job.Status),
		job.RecordedBalance, job.LedgerBalance, job.Drift, job.WalletsChecked, job.CreatedAt)
	return mapError(err)
}

func (r reconcileRepo) ListByScope(ctx context.Context, scopeID uuid.UUID, limit int) ([]model.ReconcileJob, error) {
	if limit <= 0 {
		limit = model.DefaultPageSize
	}
	const query = `
        SELECT id, scope, scope_id, status, recorded_balance, ledger_balance, drift, wallets_checked, created_at
        FROM reconcile_jobs WHERE scope_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.q.Query(ctx, query, scopeID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.ReconcileJob
	for rows.Next() {
		var j model.ReconcileJob
		if err := rows.Scan(&j.ID, &j.Scope, &j.ScopeID, &j.Status, &j.RecordedBalance, &j.LedgerBalance, &j.Drift, &j.WalletsChecked, &j.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, j)
	}
	return out, mapError(rows.Err())
}
