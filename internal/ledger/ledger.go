package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	klog "github.com/Klingon-tech/klingnet-redemption/internal/log"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

var prefixAccount = []byte("acct/") // acct/<address(32)> -> Account JSON

func accountKey(addr types.Address) []byte {
	key := make([]byte, len(prefixAccount)+types.AddressSize)
	copy(key, prefixAccount)
	copy(key[len(prefixAccount):], addr[:])
	return key
}

// Ledger is the account state. All mutation goes through Update.
type Ledger struct {
	db   storage.DB
	rent Rent
}

// New creates a ledger backed by db.
func New(db storage.DB, rent Rent) *Ledger {
	return &Ledger{db: db, rent: rent}
}

// Rent returns the rent parameters in force.
func (l *Ledger) Rent() Rent {
	return l.rent
}

// Update runs fn in one atomic transaction. If fn returns an error no
// write made through the Txn is persisted.
func (l *Ledger) Update(ctx context.Context, fn func(txn *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.Update(func(kv storage.Txn) error {
		return fn(&Txn{kv: kv, rent: l.rent})
	})
}

// View runs fn against a consistent snapshot. Writes fail with ErrReadOnly.
func (l *Ledger) View(ctx context.Context, fn func(txn *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(func(r storage.Reader) error {
		return fn(&Txn{kv: readOnly{r}, rent: l.rent})
	})
}

// Account is a convenience snapshot read of one account.
func (l *Ledger) Account(ctx context.Context, addr types.Address) (*Account, error) {
	var acct *Account
	err := l.View(ctx, func(txn *Txn) error {
		a, err := txn.Account(addr)
		acct = a
		return err
	})
	return acct, err
}

// ForEach iterates over every account in the ledger.
func (l *Ledger) ForEach(fn func(addr types.Address, acct *Account) error) error {
	return l.db.ForEach(prefixAccount, func(key, value []byte) error {
		if len(key) != len(prefixAccount)+types.AddressSize {
			return nil // Malformed key, skip.
		}
		var addr types.Address
		copy(addr[:], key[len(prefixAccount):])
		var acct Account
		if err := json.Unmarshal(value, &acct); err != nil {
			return fmt.Errorf("account %s unmarshal: %w", addr, err)
		}
		return fn(addr, &acct)
	})
}

// readOnly adapts a storage.Reader to storage.Txn for View.
type readOnly struct {
	storage.Reader
}

func (readOnly) Put(_, _ []byte) error { return ErrReadOnly }
func (readOnly) Delete(_ []byte) error { return ErrReadOnly }

// Txn is a ledger transaction.
type Txn struct {
	kv   storage.Txn
	rent Rent
}

// KV exposes the underlying key-value transaction so that programs can
// keep auxiliary state that commits together with account changes.
func (t *Txn) KV() storage.Txn {
	return t.kv
}

// Rent returns the rent parameters in force.
func (t *Txn) Rent() Rent {
	return t.rent
}

// Account loads an account. Returns ErrAccountNotFound if absent.
func (t *Txn) Account(addr types.Address) (*Account, error) {
	data, err := t.kv.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("account get: %w", err)
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("account %s unmarshal: %w", addr, err)
	}
	return &acct, nil
}

// SetAccount stores acct at addr, replacing any previous entry.
func (t *Txn) SetAccount(addr types.Address, acct *Account) error {
	if len(acct.Data) > MaxAccountSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidAccountSize, len(acct.Data))
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("account marshal: %w", err)
	}
	if err := t.kv.Put(accountKey(addr), data); err != nil {
		return fmt.Errorf("account put: %w", err)
	}
	return nil
}

// CreateAccount allocates space bytes at addr, assigns it to owner and
// funds it to the rent-exempt minimum from payer, who must have signed.
//
// An address that only holds a plain system balance (someone sent funds
// to it ahead of time) is taken over and topped up. Any other existing
// account makes the call fail with ErrAccountExists.
func (t *Txn) CreateAccount(payer, addr types.Address, space int, owner types.Address, signers Signers) error {
	if !signers.Has(payer) {
		return fmt.Errorf("%w: payer %s", ErrMissingSignature, payer)
	}
	if space < 0 || space > MaxAccountSize {
		return fmt.Errorf("%w: %d", ErrInvalidAccountSize, space)
	}
	if payer == addr {
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}

	var existing uint64
	cur, err := t.Account(addr)
	switch {
	case err == nil:
		if !cur.IsSystem() {
			return fmt.Errorf("%w: %s", ErrAccountExists, addr)
		}
		existing = cur.Balance
		klog.Ledger.Debug().
			Str("addr", addr.String()).
			Uint64("balance", existing).
			Msg("Taking over pre-funded account")
	case errors.Is(err, ErrAccountNotFound):
	default:
		return err
	}

	need := t.rent.MinimumBalance(space)
	var lamports uint64
	if need > existing {
		lamports = need - existing
	}

	if lamports > 0 {
		from, err := t.Account(payer)
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: payer %s has no account, need %d", ErrInsufficientFunds, payer, lamports)
		}
		if err != nil {
			return err
		}
		if !from.IsSystem() {
			return fmt.Errorf("%w: payer %s", ErrNotSystemAccount, payer)
		}
		if from.Balance < lamports {
			return fmt.Errorf("%w: payer %s has %d, need %d", ErrInsufficientFunds, payer, from.Balance, lamports)
		}
		from.Balance -= lamports
		if err := t.SetAccount(payer, from); err != nil {
			return err
		}
	}

	return t.SetAccount(addr, &Account{
		Balance: existing + lamports,
		Owner:   owner,
		Data:    make([]byte, space),
	})
}

// CloseAccount deletes the account at addr and credits its full balance
// to dest. Returns the amount moved.
func (t *Txn) CloseAccount(addr, dest types.Address) (uint64, error) {
	if addr == dest {
		return 0, fmt.Errorf("%w: %s", ErrSelfClose, addr)
	}
	acct, err := t.Account(addr)
	if err != nil {
		return 0, err
	}
	if err := t.Credit(dest, acct.Balance); err != nil {
		return 0, err
	}
	if err := t.kv.Delete(accountKey(addr)); err != nil {
		return 0, fmt.Errorf("account delete: %w", err)
	}
	return acct.Balance, nil
}

// Credit adds amount to the balance at addr, creating a system account
// if none exists.
func (t *Txn) Credit(addr types.Address, amount uint64) error {
	acct, err := t.Account(addr)
	if errors.Is(err, ErrAccountNotFound) {
		acct = &Account{Owner: SystemProgramID}
	} else if err != nil {
		return err
	}
	if acct.Balance+amount < acct.Balance {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, addr)
	}
	acct.Balance += amount
	return t.SetAccount(addr, acct)
}
