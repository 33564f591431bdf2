// Package ledger keeps the account state the redemption protocol runs
// against: balances, owning programs and opaque account data, changed
// only inside atomic transactions.
package ledger

import (
	"errors"

	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// SystemProgramID owns plain balance-carrying accounts.
var SystemProgramID = types.Address{}

// Ledger errors.
var (
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrMissingSignature   = errors.New("missing required signature")
	ErrNotSystemAccount   = errors.New("account is not a system account")
	ErrBalanceOverflow    = errors.New("balance overflow")
	ErrSelfClose          = errors.New("close destination equals closed account")
	ErrReadOnly           = errors.New("write in read-only transaction")
	ErrInvalidAccountSize = errors.New("invalid account size")
)

// MaxAccountSize bounds the data length of any single account.
const MaxAccountSize = 10 * 1024 * 1024

// Account is a ledger entry.
type Account struct {
	Balance uint64        `json:"balance"`
	Owner   types.Address `json:"owner"`
	Data    []byte        `json:"data,omitempty"`
}

// IsSystem reports whether the account is a data-less system account.
func (a *Account) IsSystem() bool {
	return a.Owner == SystemProgramID && len(a.Data) == 0
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

// Signers is the set of addresses that authorized a transaction.
type Signers map[types.Address]struct{}

// NewSigners builds a signer set.
func NewSigners(addrs ...types.Address) Signers {
	s := make(Signers, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

// Has reports whether addr signed.
func (s Signers) Has(addr types.Address) bool {
	_, ok := s[addr]
	return ok
}

// Add marks addr as a signer.
func (s Signers) Add(addr types.Address) {
	s[addr] = struct{}{}
}
