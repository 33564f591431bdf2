package token

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// GetMint loads the mint at addr.
func GetMint(txn *ledger.Txn, addr types.Address) (*Mint, error) {
	acct, err := txn.Account(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, addr)
	}
	if err != nil {
		return nil, err
	}
	if acct.Owner != ProgramID {
		return nil, fmt.Errorf("%w: mint %s", ErrNotTokenProgram, addr)
	}
	if len(acct.Data) != MintSize {
		return nil, fmt.Errorf("%w: %s is not a mint", ErrInvalidData, addr)
	}
	m, err := DecodeMint(acct.Data)
	if err != nil {
		return nil, err
	}
	if !m.Initialized {
		return nil, fmt.Errorf("%w: mint %s", ErrUninitialized, addr)
	}
	return m, nil
}

// GetAccount loads the token account at addr.
func GetAccount(txn *ledger.Txn, addr types.Address) (*Account, error) {
	acct, err := txn.Account(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, err
	}
	if acct.Owner != ProgramID {
		return nil, fmt.Errorf("%w: account %s", ErrNotTokenProgram, addr)
	}
	if len(acct.Data) != AccountSize {
		return nil, fmt.Errorf("%w: %s is not a token account", ErrInvalidData, addr)
	}
	a, err := DecodeAccount(acct.Data)
	if err != nil {
		return nil, err
	}
	if a.State == StateUninitialized {
		return nil, fmt.Errorf("%w: %s", ErrUninitialized, addr)
	}
	return a, nil
}

// PutMint writes m at addr. A missing account is created with the
// rent-exempt balance; used for fixtures, not reachable from any
// redemption operation.
func PutMint(txn *ledger.Txn, addr types.Address, m *Mint) error {
	return putData(txn, addr, EncodeMint(m))
}

// PutAccount writes a at addr, creating the ledger account if needed.
func PutAccount(txn *ledger.Txn, addr types.Address, a *Account) error {
	return putData(txn, addr, EncodeAccount(a))
}

func putData(txn *ledger.Txn, addr types.Address, data []byte) error {
	acct, err := txn.Account(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		acct = &ledger.Account{Balance: txn.Rent().MinimumBalance(len(data))}
	} else if err != nil {
		return err
	}
	acct.Owner = ProgramID
	acct.Data = data
	return txn.SetAccount(addr, acct)
}

// storeAccount rewrites the data of an existing token account.
func storeAccount(txn *ledger.Txn, addr types.Address, a *Account) error {
	acct, err := txn.Account(addr)
	if err != nil {
		return err
	}
	acct.Data = EncodeAccount(a)
	return txn.SetAccount(addr, acct)
}

func storeMint(txn *ledger.Txn, addr types.Address, m *Mint) error {
	acct, err := txn.Account(addr)
	if err != nil {
		return err
	}
	acct.Data = EncodeMint(m)
	return txn.SetAccount(addr, acct)
}

// authorize checks that authority owns a and signed.
func authorize(addr types.Address, a *Account, authority types.Address, signers ledger.Signers) error {
	if a.Owner != authority {
		return fmt.Errorf("%w: %s owned by %s, not %s", ErrOwnerMismatch, addr, a.Owner, authority)
	}
	if !signers.Has(authority) {
		return fmt.Errorf("%w: authority %s", ledger.ErrMissingSignature, authority)
	}
	return nil
}

// InitializeAccount creates a token account for mint at addr, owned by
// owner and funded by payer.
func InitializeAccount(txn *ledger.Txn, payer, addr, mint, owner types.Address, signers ledger.Signers) error {
	if _, err := GetMint(txn, mint); err != nil {
		return err
	}
	if err := txn.CreateAccount(payer, addr, AccountSize, ProgramID, signers); err != nil {
		return err
	}
	return storeAccount(txn, addr, &Account{
		Mint:  mint,
		Owner: owner,
		State: StateInitialized,
	})
}

// Transfer moves amount units from one token account to another. The
// authority must own the source account and be among signers.
func Transfer(txn *ledger.Txn, from, to, authority types.Address, amount uint64, signers ledger.Signers) error {
	src, err := GetAccount(txn, from)
	if err != nil {
		return err
	}
	dst, err := GetAccount(txn, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s holds %s, %s holds %s", ErrMintMismatch, from, src.Mint, to, dst.Mint)
	}
	if src.State == StateFrozen || dst.State == StateFrozen {
		return ErrAccountFrozen
	}
	if err := authorize(from, src, authority, signers); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientTokens, from, src.Amount, amount)
	}
	if from == to {
		return nil
	}
	if dst.Amount+amount < dst.Amount {
		return fmt.Errorf("%w: %s", ErrAmountOverflow, to)
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := storeAccount(txn, from, src); err != nil {
		return err
	}
	return storeAccount(txn, to, dst)
}

// Burn destroys amount units held in account and lowers the mint supply.
func Burn(txn *ledger.Txn, account, mint, authority types.Address, amount uint64, signers ledger.Signers) error {
	a, err := GetAccount(txn, account)
	if err != nil {
		return err
	}
	if a.Mint != mint {
		return fmt.Errorf("%w: %s holds %s, not %s", ErrMintMismatch, account, a.Mint, mint)
	}
	if a.State == StateFrozen {
		return ErrAccountFrozen
	}
	m, err := GetMint(txn, mint)
	if err != nil {
		return err
	}
	if err := authorize(account, a, authority, signers); err != nil {
		return err
	}
	if a.Amount < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientTokens, account, a.Amount, amount)
	}
	if m.Supply < amount {
		return fmt.Errorf("%w: supply %d, burn %d", ErrSupplyUnderflow, m.Supply, amount)
	}

	a.Amount -= amount
	m.Supply -= amount
	if err := storeAccount(txn, account, a); err != nil {
		return err
	}
	return storeMint(txn, mint, m)
}

// CloseAccount deletes an empty token account and sends its balance to
// dest. Returns the balance reclaimed.
func CloseAccount(txn *ledger.Txn, account, dest, authority types.Address, signers ledger.Signers) (uint64, error) {
	a, err := GetAccount(txn, account)
	if err != nil {
		return 0, err
	}
	if err := authorize(account, a, authority, signers); err != nil {
		return 0, err
	}
	if a.Amount != 0 {
		return 0, fmt.Errorf("%w: %s holds %d", ErrNonEmptyAccount, account, a.Amount)
	}
	return txn.CloseAccount(account, dest)
}
