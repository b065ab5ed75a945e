package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconcileScope tells whether a job covered one wallet or an organization.
type ReconcileScope string

const (
	ScopeWallet       ReconcileScope = "WALLET"
	ScopeOrganization ReconcileScope = "ORGANIZATION"
)

// ReconcileStatus is the outcome of a reconciliation run.
type ReconcileStatus string

const (
	ReconcileOK    ReconcileStatus = "OK"
	ReconcileDrift ReconcileStatus = "DRIFT_DETECTED"
)

// ReconcileJob records one comparison of recorded balances against the
// ledger. Drift is recorded minus ledger.
type ReconcileJob struct {
	ID              uuid.UUID
	Scope           ReconcileScope
	ScopeID         uuid.UUID
	Status          ReconcileStatus
	RecordedBalance decimal.Decimal
	LedgerBalance   decimal.Decimal
	Drift           decimal.Decimal
	WalletsChecked  int
	CreatedAt       time.Time
}

// HasDrift reports whether the job found a mismatch.
func (j ReconcileJob) HasDrift() bool {
	return j.Status == ReconcileDrift
}
