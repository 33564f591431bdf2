package redemption

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
)

// Kind classifies a failed operation for the caller. Every failure leaves
// the mint's state unchanged; the kind says what the caller must fix
// before trying again, if anything.
type Kind uint8

// Error kinds.
const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota
	// KindAuthorization: an account, signature or derivation does not
	// match. Retrying without different inputs fails the same way.
	KindAuthorization
	// KindResourceState: the redemption is not in the state the operation
	// needs (already active, already resolved, escrow not holding one unit).
	KindResourceState
	// KindResourceExhausted: the payer cannot fund account creation.
	// Retryable once funded.
	KindResourceExhausted
	// KindInternal: storage or encoding failure.
	KindInternal
	// KindConflict: concurrent operations on shared accounts kept
	// invalidating this one. Nothing changed; retry as is.
	KindConflict
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthorization:
		return "authorization"
	case KindResourceState:
		return "resource_state"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindInternal:
		return "internal"
	case KindConflict:
		return "conflict"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Authorization errors.
var (
	ErrInvalidInstruction          = errors.New("invalid instruction")
	ErrMintMismatch                = errors.New("token account mint mismatch")
	ErrRecordAddressMismatch       = errors.New("record address does not match derivation")
	ErrEscrowAddressMismatch       = errors.New("escrow address does not match derivation")
	ErrBumpMismatch                = errors.New("stored bump does not reproduce address")
	ErrBuyerTokenAccountMismatch   = errors.New("buyer token account does not match record")
	ErrBuyerPaymentAccountMismatch = errors.New("buyer payment account does not match record")
	ErrBuyerNotOwner               = errors.New("buyer token account not owned by payment account")
	ErrHoldingMismatch             = errors.New("buyer token account must hold exactly one unit")
	ErrMissingSignature            = errors.New("missing required signature")
	ErrInvalidSignature            = errors.New("invalid signature")
	ErrInvalidRecord               = errors.New("account is not a redemption record")
)

// Resource-state errors.
var (
	ErrRecordExists       = errors.New("redemption already active")
	ErrEscrowExists       = errors.New("escrow account already exists")
	ErrRecordNotFound     = errors.New("no active redemption")
	ErrRedemptionResolved = errors.New("redemption already resolved")
	ErrEscrowBalance      = errors.New("escrow does not hold exactly one unit")
)

// Resource-exhaustion errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for account creation")
)

// Internal errors.
var (
	ErrNoViableAddress = errors.New("no viable derived address")
)

// classes is checked in order; protocol sentinels come before the
// collaborator errors they may wrap.
var classes = []struct {
	err  error
	kind Kind
}{
	{ErrRecordExists, KindResourceState},
	{ErrEscrowExists, KindResourceState},
	{ErrRecordNotFound, KindResourceState},
	{ErrRedemptionResolved, KindResourceState},
	{ErrEscrowBalance, KindResourceState},

	{ErrInsufficientFunds, KindResourceExhausted},

	{ErrInvalidInstruction, KindAuthorization},
	{ErrMintMismatch, KindAuthorization},
	{ErrRecordAddressMismatch, KindAuthorization},
	{ErrEscrowAddressMismatch, KindAuthorization},
	{ErrBumpMismatch, KindAuthorization},
	{ErrBuyerTokenAccountMismatch, KindAuthorization},
	{ErrBuyerPaymentAccountMismatch, KindAuthorization},
	{ErrBuyerNotOwner, KindAuthorization},
	{ErrHoldingMismatch, KindAuthorization},
	{ErrMissingSignature, KindAuthorization},
	{ErrInvalidSignature, KindAuthorization},
	{ErrInvalidRecord, KindAuthorization},

	{ErrNoViableAddress, KindInternal},

	{ledger.ErrInsufficientFunds, KindResourceExhausted},
	{ledger.ErrAccountExists, KindResourceState},
	{ledger.ErrMissingSignature, KindAuthorization},
	{ledger.ErrNotSystemAccount, KindAuthorization},
	{token.ErrMintMismatch, KindAuthorization},
	{token.ErrOwnerMismatch, KindAuthorization},
	{token.ErrNotTokenProgram, KindAuthorization},
	{token.ErrInvalidData, KindAuthorization},
	{token.ErrMintNotFound, KindAuthorization},
	{token.ErrAccountNotFound, KindAuthorization},
	{token.ErrUninitialized, KindAuthorization},
	{token.ErrAccountFrozen, KindResourceState},
	{token.ErrInsufficientTokens, KindResourceState},
	{token.ErrNonEmptyAccount, KindResourceState},
	{token.ErrSupplyUnderflow, KindResourceState},

	{storage.ErrConflict, KindConflict},
}

// KindOf classifies err. Errors from the ledger and token program are
// classified too; anything unrecognized is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}
