package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

const walletColumns = `id, owner_id, org_id, currency, balance, type, status, version, created_at, updated_at`

type walletRepo struct {
	q querier
}

func scanWallet(row pgx.Row) (model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(&w.ID, &w.OwnerID, &w.OrgID, &w.Currency, &w.Balance, &w.Type, &w.Status, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	return w, mapError(err)
}

func (r walletRepo) list(ctx context.Context, query string, args ...any) ([]model.Wallet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, mapError(rows.Err())
}

func (r walletRepo) Get(ctx context.Context, id uuid.UUID) (model.Wallet, error) {
	return scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r walletRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (model.Wallet, error) {
	return scanWallet(r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

func (r walletRepo) Create(ctx context.Context, w model.Wallet) error {
	const query = `
        INSERT INTO wallets (id, owner_id, org_id, currency, balance, type, status, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query, w.ID, w.OwnerID, w.OrgID, w.Currency, w.Balance, string(w.Type), string(w.Status), w.Version, w.CreatedAt, w.UpdatedAt)
	return mapError(err)
}

func (r walletRepo) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error {
	const query = `
        UPDATE wallets SET balance = $1, version = version + 1, updated_at = now()
        WHERE id = $2 AND version = $3`
	tag, err := r.q.Exec(ctx, query, balance, id, expectedVersion)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (r walletRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus, expectedVersion int64) error {
	const query = `
        UPDATE wallets SET status = $1, version = version + 1, updated_at = now()
        WHERE id = $2 AND version = $3`
	tag, err := r.q.Exec(ctx, query, string(status), id, expectedVersion)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (r walletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Wallet, error) {
	return r.list(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_at`, ownerID)
}

func (r walletRepo) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Wallet, error) {
	return r.list(ctx, `SELECT `+walletColumns+` FROM wallets WHERE org_id = $1 ORDER BY created_at`, orgID)
}

func (r walletRepo) FindPrimary(ctx context.Context, ownerID uuid.UUID) (model.Wallet, error) {
	const query = `SELECT ` + walletColumns + ` FROM wallets
        WHERE owner_id = $1 AND type = 'PRIMARY' AND status <> 'CLOSED'`
	return scanWallet(r.q.QueryRow(ctx, query, ownerID))
}
