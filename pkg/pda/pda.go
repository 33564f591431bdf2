// Package pda derives program-controlled addresses.
//
// A derived address is the hash of a seed list, a program ID and a fixed
// marker, retried with a one-byte bump until the result is off the
// secp256k1 curve. No private key exists for an off-curve address, so the
// only way to act for it is to present the seeds and bump to the program
// that owns it.
package pda

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Seed limits.
const (
	MaxSeeds     = 16
	MaxSeedLen   = 32
	maxBumpValue = 255
)

var marker = []byte("ProgramDerivedAddress")

// Derivation errors.
var (
	ErrTooManySeeds = errors.New("too many seeds")
	ErrSeedTooLong  = errors.New("seed exceeds maximum length")
	ErrOnCurve      = errors.New("derived address is on curve")
	ErrNoViableBump = errors.New("no viable bump found")
)

// CreateAddress hashes seeds with programID and returns the address if
// it is off curve. The bump, when used, must already be the last seed.
func CreateAddress(seeds [][]byte, programID types.Address) (types.Address, error) {
	if len(seeds) > MaxSeeds {
		return types.Address{}, fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return types.Address{}, fmt.Errorf("%w: seed %d is %d bytes", ErrSeedTooLong, i, len(s))
		}
		parts = append(parts, s)
	}
	parts = append(parts, programID[:], marker)

	addr := types.Address(crypto.HashParts(parts...))
	if crypto.IsOnCurve(addr) {
		return types.Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump.
func FindAddress(seeds [][]byte, programID types.Address) (types.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.Address{}, 0, fmt.Errorf("%w: %d seeds leave no room for bump", ErrTooManySeeds, len(seeds))
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for b := maxBumpValue; b >= 0; b-- {
		bump := uint8(b)
		withBump[len(seeds)] = []byte{bump}
		addr, err := CreateAddress(withBump, programID)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return types.Address{}, 0, err
		}
		return addr, bump, nil
	}
	return types.Address{}, 0, ErrNoViableBump
}

// WithBump returns a copy of seeds with bump appended, the form
// CreateAddress expects when re-deriving from a stored bump.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, len(seeds)+1)
	copy(out, seeds)
	out[len(seeds)] = []byte{bump}
	return out
}
