// Package token implements the token program the redemption protocol
// delegates custody to: mints, token accounts and the transfer, burn
// and close primitives that act on them.
//
// Mints and token accounts are ledger accounts owned by ProgramID whose
// Data holds a fixed binary layout. Every primitive runs inside the
// caller's ledger transaction, so a failure anywhere in the caller
// aborts the token movement too.
package token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// ProgramID owns every mint and token account.
var ProgramID = types.Address(crypto.Hash([]byte("klingnet/token-program/v1")))

// Layout sizes.
const (
	MintSize    = types.AddressSize + 8 + 1 + 1
	AccountSize = types.AddressSize + types.AddressSize + 8 + 1
)

// Token program errors.
var (
	ErrMintNotFound       = errors.New("mint not found")
	ErrAccountNotFound    = errors.New("token account not found")
	ErrNotTokenProgram    = errors.New("account not owned by token program")
	ErrInvalidData        = errors.New("invalid token account data")
	ErrUninitialized      = errors.New("token account not initialized")
	ErrMintMismatch       = errors.New("token account mint mismatch")
	ErrOwnerMismatch      = errors.New("token account owner mismatch")
	ErrInsufficientTokens = errors.New("insufficient token balance")
	ErrNonEmptyAccount    = errors.New("token account not empty")
	ErrAccountFrozen      = errors.New("token account frozen")
	ErrSupplyUnderflow    = errors.New("mint supply underflow")
	ErrAmountOverflow     = errors.New("token amount overflow")
)

// AccountState is the lifecycle state of a token account.
type AccountState uint8

// Account states.
const (
	StateUninitialized AccountState = iota
	StateInitialized
	StateFrozen
)

// String returns the state name.
func (s AccountState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Mint describes a token: how many units exist and who may issue more.
type Mint struct {
	Authority   types.Address `json:"authority"`
	Supply      uint64        `json:"supply"`
	Decimals    uint8         `json:"decimals"`
	Initialized bool          `json:"initialized"`
}

// Account holds an amount of one mint on behalf of an owner.
type Account struct {
	Mint   types.Address `json:"mint"`
	Owner  types.Address `json:"owner"`
	Amount uint64        `json:"amount"`
	State  AccountState  `json:"state"`
}

// EncodeMint serializes a mint.
//
// Layout:
//
//	[32 bytes: authority]
//	[8 bytes:  supply, little endian]
//	[1 byte:   decimals]
//	[1 byte:   initialized flag]
func EncodeMint(m *Mint) []byte {
	buf := make([]byte, MintSize)
	off := 0
	copy(buf[off:], m.Authority[:])
	off += types.AddressSize
	binary.LittleEndian.PutUint64(buf[off:], m.Supply)
	off += 8
	buf[off] = m.Decimals
	off++
	if m.Initialized {
		buf[off] = 1
	}
	return buf
}

// DecodeMint parses a mint. Trailing bytes are ignored.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint is %d bytes, want %d", ErrInvalidData, len(data), MintSize)
	}
	var m Mint
	off := 0
	copy(m.Authority[:], data[off:off+types.AddressSize])
	off += types.AddressSize
	m.Supply = binary.LittleEndian.Uint64(data[off:])
	off += 8
	m.Decimals = data[off]
	off++
	switch data[off] {
	case 0:
	case 1:
		m.Initialized = true
	default:
		return nil, fmt.Errorf("%w: initialized flag %d", ErrInvalidData, data[off])
	}
	return &m, nil
}

// EncodeAccount serializes a token account.
//
// Layout:
//
//	[32 bytes: mint]
//	[32 bytes: owner]
//	[8 bytes:  amount, little endian]
//	[1 byte:   state]
func EncodeAccount(a *Account) []byte {
	buf := make([]byte, AccountSize)
	off := 0
	copy(buf[off:], a.Mint[:])
	off += types.AddressSize
	copy(buf[off:], a.Owner[:])
	off += types.AddressSize
	binary.LittleEndian.PutUint64(buf[off:], a.Amount)
	off += 8
	buf[off] = byte(a.State)
	return buf
}

// DecodeAccount parses a token account.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) < AccountSize {
		return nil, fmt.Errorf("%w: account is %d bytes, want %d", ErrInvalidData, len(data), AccountSize)
	}
	var a Account
	off := 0
	copy(a.Mint[:], data[off:off+types.AddressSize])
	off += types.AddressSize
	copy(a.Owner[:], data[off:off+types.AddressSize])
	off += types.AddressSize
	a.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	a.State = AccountState(data[off])
	if a.State > StateFrozen {
		return nil, fmt.Errorf("%w: state %d", ErrInvalidData, data[off])
	}
	return &a, nil
}
