package memory

import "github.com/congo-pay/walletledger/internal/model"

// AuditLogs returns a copy of every committed audit row.
func AuditLogs(s *Store) []model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditLog(nil), s.audit...)
}

// OutboxEvents returns a copy of every committed outbox event.
func OutboxEvents(s *Store) []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OutboxEvent(nil), s.outbox...)
}
