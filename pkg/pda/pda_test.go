package pda

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

var testProgram = types.Address{0x50, 0x52, 0x4f, 0x47}

func TestFindAddress_Deterministic(t *testing.T) {
	seeds := [][]byte{[]byte("mint-1"), []byte("escrow")}

	a1, b1, err := FindAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("FindAddress: %v", err)
	}
	a2, b2, err := FindAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("FindAddress: %v", err)
	}
	if a1 != a2 || b1 != b2 {
		t.Errorf("FindAddress not deterministic: (%s,%d) vs (%s,%d)", a1, b1, a2, b2)
	}
}

func TestFindAddress_OffCurve(t *testing.T) {
	for i := 0; i < 32; i++ {
		seeds := [][]byte{{byte(i)}, []byte("redemption")}
		addr, _, err := FindAddress(seeds, testProgram)
		if err != nil {
			t.Fatalf("FindAddress(%d): %v", i, err)
		}
		if crypto.IsOnCurve(addr) {
			t.Fatalf("derived address %s is on curve", addr)
		}
	}
}

func TestFindAddress_MatchesCreateWithBump(t *testing.T) {
	seeds := [][]byte{[]byte("mint-2"), []byte("redemption")}
	addr, bump, err := FindAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("FindAddress: %v", err)
	}

	got, err := CreateAddress(WithBump(seeds, bump), testProgram)
	if err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	if got != addr {
		t.Errorf("CreateAddress with stored bump = %s, want %s", got, addr)
	}
}

func TestFindAddress_SeparatesInputs(t *testing.T) {
	mint := []byte("mint-3")
	escrow, _, _ := FindAddress([][]byte{mint, []byte("escrow")}, testProgram)
	record, _, _ := FindAddress([][]byte{mint, []byte("redemption")}, testProgram)
	if escrow == record {
		t.Error("different roles must derive different addresses")
	}

	other, _, _ := FindAddress([][]byte{mint, []byte("escrow")}, types.Address{0x01})
	if other == escrow {
		t.Error("different programs must derive different addresses")
	}

	otherMint, _, _ := FindAddress([][]byte{[]byte("mint-4"), []byte("escrow")}, testProgram)
	if otherMint == escrow {
		t.Error("different mints must derive different addresses")
	}
}

func TestCreateAddress_WrongBumpDiffers(t *testing.T) {
	seeds := [][]byte{[]byte("mint-5")}
	addr, bump, err := FindAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("FindAddress: %v", err)
	}
	for b := 0; b < 256; b++ {
		if uint8(b) == bump {
			continue
		}
		got, err := CreateAddress(WithBump(seeds, uint8(b)), testProgram)
		if err != nil {
			continue
		}
		if got == addr {
			t.Fatalf("bump %d re-derived the address of bump %d", b, bump)
		}
	}
}

func TestCreateAddress_Limits(t *testing.T) {
	tooMany := make([][]byte, MaxSeeds+1)
	if _, err := CreateAddress(tooMany, testProgram); !errors.Is(err, ErrTooManySeeds) {
		t.Errorf("expected ErrTooManySeeds, got %v", err)
	}

	long := [][]byte{make([]byte, MaxSeedLen+1)}
	if _, err := CreateAddress(long, testProgram); !errors.Is(err, ErrSeedTooLong) {
		t.Errorf("expected ErrSeedTooLong, got %v", err)
	}

	full := make([][]byte, MaxSeeds)
	if _, _, err := FindAddress(full, testProgram); !errors.Is(err, ErrTooManySeeds) {
		t.Errorf("FindAddress with no room for bump: expected ErrTooManySeeds, got %v", err)
	}
}

func TestWithBump_DoesNotAlias(t *testing.T) {
	seeds := make([][]byte, 1, 4)
	seeds[0] = []byte("a")
	x := WithBump(seeds, 1)
	y := WithBump(seeds, 2)
	if x[1][0] != 1 || y[1][0] != 2 {
		t.Error("WithBump results share backing storage")
	}
}
