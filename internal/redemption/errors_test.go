package redemption

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrRecordExists, KindResourceState},
		{fmt.Errorf("%w: %w", ErrRecordExists, ledger.ErrAccountExists), KindResourceState},
		{fmt.Errorf("%w: %w", ErrInsufficientFunds, ledger.ErrInsufficientFunds), KindResourceExhausted},
		{ledger.ErrInsufficientFunds, KindResourceExhausted},
		{fmt.Errorf("wrapped: %w", ErrRedemptionResolved), KindResourceState},
		{ErrBuyerTokenAccountMismatch, KindAuthorization},
		{token.ErrMintMismatch, KindAuthorization},
		{token.ErrNonEmptyAccount, KindResourceState},
		{ledger.ErrMissingSignature, KindAuthorization},
		{ErrNoViableAddress, KindInternal},
		{fmt.Errorf("badger update: %w after 65 attempts", storage.ErrConflict), KindConflict},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestKind_String(t *testing.T) {
	want := map[Kind]string{
		KindAuthorization:     "authorization",
		KindResourceState:     "resource_state",
		KindResourceExhausted: "resource_exhausted",
		KindInternal:          "internal",
		KindConflict:          "conflict",
	}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), s)
		}
	}
}
