package redemption

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Key prefixes for protocol bookkeeping kept beside the ledger accounts.
var (
	prefixJournal  = []byte("rdm/j/") // rdm/j/<mint(32)> -> []Receipt JSON
	prefixResolved = []byte("rdm/t/") // rdm/t/<mint(32)> -> Receipt JSON of the resolving op
)

func mintKey(prefix []byte, mint types.Address) []byte {
	key := make([]byte, len(prefix)+types.AddressSize)
	copy(key, prefix)
	copy(key[len(prefix):], mint[:])
	return key
}

// Receipt describes one committed transition.
type Receipt struct {
	Op                  Op            `json:"op"`
	Mint                types.Address `json:"mint"`
	Record              types.Address `json:"record"`
	Escrow              types.Address `json:"escrow"`
	BuyerTokenAccount   types.Address `json:"buyer_token_account"`
	BuyerPaymentAccount types.Address `json:"buyer_payment_account"`
	// RentPaid is what the payment account spent creating the accounts.
	RentPaid uint64 `json:"rent_paid,omitempty"`
	// Reclaimed is what closing the accounts returned to it.
	Reclaimed uint64 `json:"reclaimed,omitempty"`
	Time      int64  `json:"time"`
}

func readJournal(kv storage.Reader, mint types.Address) ([]Receipt, error) {
	data, err := kv.Get(mintKey(prefixJournal, mint))
	if errors.Is(err, storage.ErrNotFound) {
		return []Receipt{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal get: %w", err)
	}
	var entries []Receipt
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("journal unmarshal: %w", err)
	}
	return entries, nil
}

func appendJournal(kv storage.Txn, r *Receipt) error {
	entries, err := readJournal(kv, r.Mint)
	if err != nil {
		return err
	}
	entries = append(entries, *r)
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("journal marshal: %w", err)
	}
	if err := kv.Put(mintKey(prefixJournal, r.Mint), data); err != nil {
		return fmt.Errorf("journal put: %w", err)
	}
	return nil
}

// markResolved records that mint reached Terminal. The tombstone is
// never removed.
func markResolved(kv storage.Txn, r *Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("tombstone marshal: %w", err)
	}
	if err := kv.Put(mintKey(prefixResolved, r.Mint), data); err != nil {
		return fmt.Errorf("tombstone put: %w", err)
	}
	return nil
}

func isResolved(kv storage.Reader, mint types.Address) (bool, error) {
	ok, err := kv.Has(mintKey(prefixResolved, mint))
	if err != nil {
		return false, fmt.Errorf("tombstone has: %w", err)
	}
	return ok, nil
}
