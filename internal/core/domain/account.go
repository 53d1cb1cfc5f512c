package domain

import "time"

// AccountRole is the marketplace role an account registered for.
type AccountRole string

const (
	RoleSeller    AccountRole = "seller"
	RoleWarehouse AccountRole = "warehouse"
)

// ProfileHashAlgo is the only hash algorithm profile hashes are published with.
const ProfileHashAlgo = "blake3"

// Account is a normalized registration event.
type Account struct {
	Address          string
	Role             AccountRole
	ProfileHashAlgo  string
	ProfileHashValue string
	ProfileURI       string
	RegisteredBy     string
	TxnHash          string
	ChainTimestamp   time.Time
	Position         Position
}

func (a *Account) EventPosition() Position { return a.Position }
