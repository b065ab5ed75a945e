package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/model"
)

// User is an account that owns wallets inside one organization.
type User struct {
	ID           uuid.UUID
	OrgID        uuid.UUID
	Email        string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Actor returns the identity the ledger services scope requests by.
func (u User) Actor() model.Actor {
	return model.Actor{ID: u.ID, OrgID: u.OrgID}
}

// Credentials request structure. A zero OrgID on registration starts a new
// organization.
type Credentials struct {
	Email    string
	Password string
	OrgID    uuid.UUID
}
