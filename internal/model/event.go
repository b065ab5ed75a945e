package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox event types.
const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
	EventDriftDetected        = "reconcile.drift_detected"
)

// OutboxEvent is a durably recorded event awaiting downstream delivery.
type OutboxEvent struct {
	ID           uuid.UUID
	AggregateID  uuid.UUID
	EventType    string
	Payload      json.RawMessage
	CreatedAt    time.Time
	DispatchedAt *time.Time
	Attempts     int
	LastError    string
}

// TransactionEventPayload is the body of transaction.* events.
type TransactionEventPayload struct {
	TransactionID    string `json:"transaction_id"`
	Type             string `json:"type"`
	Status           string `json:"status"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	SenderWalletID   string `json:"sender_wallet_id"`
	ReceiverWalletID string `json:"receiver_wallet_id"`
	FailureReason    string `json:"failure_reason,omitempty"`
	OccurredAt       string `json:"occurred_at"`
}

// NewTransactionEvent builds the outbox record for a terminal transaction.
func NewTransactionEvent(t Transaction, at time.Time) (OutboxEvent, error) {
	eventType := EventTransactionCompleted
	if t.Status == TransactionFailed {
		eventType = EventTransactionFailed
	}
	body, err := json.Marshal(TransactionEventPayload{
		TransactionID:    t.ID.String(),
		Type:             string(t.Type),
		Status:           string(t.Status),
		Amount:           t.Amount.StringFixed(MinorUnits),
		Currency:         t.Currency,
		SenderWalletID:   t.SenderWalletID.String(),
		ReceiverWalletID: t.ReceiverWalletID.String(),
		FailureReason:    t.FailureReason,
		OccurredAt:       at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		ID:          uuid.New(),
		AggregateID: t.ID,
		EventType:   eventType,
		Payload:     body,
		CreatedAt:   at.UTC(),
	}, nil
}
