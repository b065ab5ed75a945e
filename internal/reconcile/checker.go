// Package reconcile compares stored wallet balances with the balances derived
// from the ledger. Drift is reported, never corrected.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

// ErrWalletNotFound is returned when the wallet does not exist or belongs to
// another organization.
var ErrWalletNotFound = errors.New("wallet not found")

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 20

// Checker runs reconciliation passes.
type Checker struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker builds a Checker.
func NewChecker(store storage.Store, logger *slog.Logger) *Checker {
	return &Checker{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Result bundles an organization pass: the aggregate job plus one job per
// wallet.
type Result struct {
	Job     model.ReconcileJob
	Wallets []model.ReconcileJob
}

// DriftPayload is the body of reconcile.drift_detected events.
type DriftPayload struct {
	JobID           string `json:"job_id"`
	Scope           string `json:"scope"`
	ScopeID         string `json:"scope_id"`
	RecordedBalance string `json:"recorded_balance"`
	LedgerBalance   string `json:"ledger_balance"`
	Drift           string `json:"drift"`
	DetectedAt      string `json:"detected_at"`
}

// ReconcileWallet checks one wallet. A zero orgID skips the scope check,
// which is how the operator CLI runs it.
func (c *Checker) ReconcileWallet(ctx context.Context, orgID, walletID uuid.UUID) (model.ReconcileJob, error) {
	var job model.ReconcileJob
	err := c.store.WithinSnapshot(ctx, func(ctx context.Context, tx storage.Tx) error {
		w, err := tx.Wallets().Get(ctx, walletID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && orgID != uuid.Nil && w.OrgID != orgID) {
			return ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		job, err = c.check(ctx, tx, w)
		return err
	})
	if err != nil {
		return model.ReconcileJob{}, err
	}
	if err := c.persist(ctx, []model.ReconcileJob{job}); err != nil {
		return model.ReconcileJob{}, err
	}
	return job, nil
}

// ReconcileOrganization checks every wallet of the organization against one
// snapshot. The aggregate job reports DRIFT_DETECTED when any wallet drifted.
func (c *Checker) ReconcileOrganization(ctx context.Context, orgID uuid.UUID) (Result, error) {
	var res Result
	err := c.store.WithinSnapshot(ctx, func(ctx context.Context, tx storage.Tx) error {
		wallets, err := tx.Wallets().ListByOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		res.Wallets = make([]model.ReconcileJob, 0, len(wallets))
		for _, w := range wallets {
			job, err := c.check(ctx, tx, w)
			if err != nil {
				return err
			}
			res.Wallets = append(res.Wallets, job)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	agg := model.ReconcileJob{
		ID:              uuid.New(),
		Scope:           model.ScopeOrganization,
		ScopeID:         orgID,
		Status:          model.ReconcileOK,
		RecordedBalance: decimal.Zero,
		LedgerBalance:   decimal.Zero,
		Drift:           decimal.Zero,
		WalletsChecked:  len(res.Wallets),
		CreatedAt:       c.now(),
	}
	for _, j := range res.Wallets {
		agg.RecordedBalance = agg.RecordedBalance.Add(j.RecordedBalance)
		agg.LedgerBalance = agg.LedgerBalance.Add(j.LedgerBalance)
		agg.Drift = agg.Drift.Add(j.Drift.Abs())
		if j.HasDrift() {
			agg.Status = model.ReconcileDrift
		}
	}
	res.Job = agg

	if err := c.persist(ctx, append(append([]model.ReconcileJob(nil), res.Wallets...), agg)); err != nil {
		return Result{}, err
	}
	c.logger.Info("organization reconciled",
		slog.String("organization_id", orgID.String()),
		slog.Int("wallets", agg.WalletsChecked),
		slog.String("status", string(agg.Status)),
	)
	return res, nil
}

// History returns the most recent jobs recorded for a wallet or organization.
func (c *Checker) History(ctx context.Context, scopeID uuid.UUID, limit int) ([]model.ReconcileJob, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return c.store.Reconciliations().ListByScope(ctx, scopeID, limit)
}

// WalletHistory is History restricted to a wallet of orgID.
func (c *Checker) WalletHistory(ctx context.Context, orgID, walletID uuid.UUID, limit int) ([]model.ReconcileJob, error) {
	w, err := c.store.Wallets().Get(ctx, walletID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && w.OrgID != orgID) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return c.History(ctx, walletID, limit)
}

func (c *Checker) check(ctx context.Context, tx storage.Tx, w model.Wallet) (model.ReconcileJob, error) {
	ledger, err := tx.Ledger().SumForWallet(ctx, w.ID)
	if err != nil {
		return model.ReconcileJob{}, err
	}
	job := model.ReconcileJob{
		ID:              uuid.New(),
		Scope:           model.ScopeWallet,
		ScopeID:         w.ID,
		Status:          model.ReconcileOK,
		RecordedBalance: w.Balance,
		LedgerBalance:   ledger,
		Drift:           w.Balance.Sub(ledger),
		WalletsChecked:  1,
		CreatedAt:       c.now(),
	}
	if !w.Balance.Equal(ledger) {
		job.Status = model.ReconcileDrift
	}
	return job, nil
}

// persist saves jobs and raises an alert for each drifted one in a single
// unit of work.
func (c *Checker) persist(ctx context.Context, jobs []model.ReconcileJob) error {
	return c.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, job := range jobs {
			if err := tx.Reconciliations().Save(ctx, job); err != nil {
				return err
			}
			if !job.HasDrift() {
				continue
			}
			if err := c.alert(ctx, tx, job); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Checker) alert(ctx context.Context, tx storage.Tx, job model.ReconcileJob) error {
	payload := DriftPayload{
		JobID:           job.ID.String(),
		Scope:           string(job.Scope),
		ScopeID:         job.ScopeID.String(),
		RecordedBalance: job.RecordedBalance.StringFixed(model.MinorUnits),
		LedgerBalance:   job.LedgerBalance.StringFixed(model.MinorUnits),
		Drift:           job.Drift.StringFixed(model.MinorUnits),
		DetectedAt:      job.CreatedAt.Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := tx.Audit().Record(ctx, model.AuditLog{
		ID:        uuid.New(),
		ActorID:   model.SystemReconciler,
		Operation: model.OpReconcileDrift,
		Metadata: map[string]any{
			"job_id":           payload.JobID,
			"scope":            payload.Scope,
			"scope_id":         payload.ScopeID,
			"recorded_balance": payload.RecordedBalance,
			"ledger_balance":   payload.LedgerBalance,
			"drift":            payload.Drift,
		},
		CreatedAt: job.CreatedAt,
	}); err != nil {
		return err
	}
	if err := tx.Outbox().Append(ctx, model.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: job.ScopeID,
		EventType:   model.EventDriftDetected,
		Payload:     body,
		CreatedAt:   job.CreatedAt,
	}); err != nil {
		return err
	}
	c.logger.Warn("ledger drift detected",
		slog.String("scope", payload.Scope),
		slog.String("scope_id", payload.ScopeID),
		slog.String("recorded_balance", payload.RecordedBalance),
		slog.String("ledger_balance", payload.LedgerBalance),
		slog.String("drift", payload.Drift),
	)
	return nil
}
