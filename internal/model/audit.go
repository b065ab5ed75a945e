package model

import (
	"time"

	"github.com/google/uuid"
)

// Audited operation names.
const (
	OpTransferCompleted = "transfer.completed"
	OpTransferFailed    = "transfer.failed"
	OpTransferCancelled = "transfer.cancelled"
	OpWalletCreated     = "wallet.created"
	OpWalletStatus      = "wallet.status_changed"
	OpReconcileDrift    = "reconcile.drift_detected"
	OpReconcileRun      = "reconcile.completed"
)

// SystemReconciler is the actor id used for reconciliation records.
const SystemReconciler = "system:reconciler"

// AuditLog records who did what and when. Rows are append-only.
type AuditLog struct {
	ID        uuid.UUID
	ActorID   string
	Operation string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Actor is the authenticated caller resolved by the auth layer.
type Actor struct {
	ID    uuid.UUID
	OrgID uuid.UUID
}

// String returns the id used in audit records.
func (a Actor) String() string {
	return a.ID.String()
}
