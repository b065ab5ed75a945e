package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

const transactionColumns = `id, org_id, type, status, sender_wallet_id, receiver_wallet_id, amount, currency,
        description, COALESCE(reference_id, ''), failure_reason, actor_id, created_at, completed_at`

type transactionRepo struct {
	q querier
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.OrgID, &t.Type, &t.Status, &t.SenderWalletID, &t.ReceiverWalletID, &t.Amount, &t.Currency,
		&t.Description, &t.ReferenceID, &t.FailureReason, &t.ActorID, &t.CreatedAt, &t.CompletedAt)
	return t, mapError(err)
}

func (r transactionRepo) Create(ctx context.Context, t model.Transaction) error {
	const query = `
        INSERT INTO transactions (id, org_id, type, status, sender_wallet_id, receiver_wallet_id, amount, currency,
            description, reference_id, failure_reason, actor_id, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query, t.ID, t.OrgID, string(t.Type), string(t.Status), t.SenderWalletID, t.ReceiverWalletID,
		t.Amount, t.Currency, t.Description, nullString(t.ReferenceID), t.FailureReason, t.ActorID, t.CreatedAt, t.CompletedAt)
	return mapError(err)
}

func (r transactionRepo) Get(ctx context.Context, id uuid.UUID) (model.Transaction, error) {
	return scanTransaction(r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (r transactionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (model.Transaction, error) {
	return scanTransaction(r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

func (r transactionRepo) FindActiveByReference(ctx context.Context, key model.ReferenceKey) (model.Transaction, error) {
	if key.ReferenceID == "" {
		return model.Transaction{}, storage.ErrNotFound
	}
	const query = `SELECT ` + transactionColumns + ` FROM transactions
        WHERE org_id = $1 AND sender_wallet_id = $2 AND reference_id = $3 AND status <> 'FAILED'`
	return scanTransaction(r.q.QueryRow(ctx, query, key.OrgID, key.SenderWalletID, key.ReferenceID))
}

func (r transactionRepo) UpdateStatus(ctx context.Context, t model.Transaction) error {
	const query = `UPDATE transactions SET status = $1, failure_reason = $2, completed_at = $3 WHERE id = $4`
	tag, err := r.q.Exec(ctx, query, string(t.Status), t.FailureReason, t.CompletedAt, t.ID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r transactionRepo) List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error) {
	f = f.Normalize()

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OrgID != uuid.Nil {
		add("org_id = $%d", f.OrgID)
	}
	if f.WalletID != uuid.Nil {
		args = append(args, f.WalletID)
		conds = append(conds, fmt.Sprintf("(sender_wallet_id = $%d OR receiver_wallet_id = $%d)", len(args), len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		transactionColumns, where, f.PageSize, f.Offset())
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, mapError(rows.Err())
}

const entryColumns = `id, transaction_id, wallet_id, direction, amount, balance_after, created_at`

type ledgerRepo struct {
	q querier
}

func (r ledgerRepo) Append(ctx context.Context, entries ...model.LedgerEntry) error {
	const query = `INSERT INTO ledger_entries (` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, e := range entries {
		if _, err := r.q.Exec(ctx, query, e.ID, e.TransactionID, e.WalletID, string(e.Direction), e.Amount, e.BalanceAfter, e.CreatedAt); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r ledgerRepo) SumForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	const query = `
        SELECT COALESCE(SUM(CASE WHEN e.direction = 'CREDIT' THEN e.amount ELSE -e.amount END), 0)
        FROM ledger_entries e
        INNER JOIN transactions t ON t.id = e.transaction_id
        WHERE e.wallet_id = $1 AND t.status = 'COMPLETED'`
	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, mapError(err)
	}
	return sum, nil
}

func (r ledgerRepo) list(ctx context.Context, query string, args ...any) ([]model.LedgerEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.Direction, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err())
}

func (r ledgerRepo) ListByTransaction(ctx context.Context, txID uuid.UUID) ([]model.LedgerEntry, error) {
	return r.list(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY direction DESC`, txID)
}

func (r ledgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = model.MaxPageSize
	}
	const query = `SELECT ` + entryColumns + ` FROM ledger_entries WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, walletID, limit)
}
