// Package redemption implements the custody handoff a buyer goes through
// to redeem a token for the physical item it stands for.
//
// Initialize moves the buyer's single unit into an escrow account and
// writes a redemption record next to it. The custodian then resolves the
// redemption exactly once: Return gives the unit back, Burn destroys it.
// Either way the escrow and the record are closed and their rent goes
// back to the buyer's payment account.
//
// The escrow and record live at addresses derived from the mint, so
// anyone can find them and no private key can sign for them. The escrow
// is its own token authority; only the processor, holding the stored
// bump, can act for it.
package redemption

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/pkg/pda"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Role labels separating the two derived addresses of a mint.
const (
	RoleEscrow     = "escrow"
	RoleRedemption = "redemption"
)

func seeds(mint types.Address, role string) [][]byte {
	return [][]byte{mint.Bytes(), []byte(role)}
}

// Addresses are the derived accounts of one mint.
type Addresses struct {
	Mint       types.Address `json:"mint"`
	Escrow     types.Address `json:"escrow"`
	EscrowBump uint8         `json:"escrow_bump"`
	Record     types.Address `json:"record"`
	RecordBump uint8         `json:"record_bump"`
}

// EscrowAddress returns the escrow address of mint and its bump.
func EscrowAddress(programID, mint types.Address) (types.Address, uint8, error) {
	return derive(programID, mint, RoleEscrow)
}

// RecordAddress returns the redemption record address of mint and its bump.
func RecordAddress(programID, mint types.Address) (types.Address, uint8, error) {
	return derive(programID, mint, RoleRedemption)
}

// DeriveAddresses returns both derived accounts of mint.
func DeriveAddresses(programID, mint types.Address) (Addresses, error) {
	escrow, eb, err := EscrowAddress(programID, mint)
	if err != nil {
		return Addresses{}, err
	}
	record, rb, err := RecordAddress(programID, mint)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{
		Mint:       mint,
		Escrow:     escrow,
		EscrowBump: eb,
		Record:     record,
		RecordBump: rb,
	}, nil
}

func derive(programID, mint types.Address, role string) (types.Address, uint8, error) {
	addr, bump, err := pda.FindAddress(seeds(mint, role), programID)
	if err != nil {
		return types.Address{}, 0, fmt.Errorf("%w: %s %s: %w", ErrNoViableAddress, role, mint, err)
	}
	return addr, bump, nil
}

// authority rebuilds the derived account for (mint, role) from a stored
// bump. The result is the only identity the processor signs with when
// moving escrowed tokens.
func authority(programID, mint types.Address, role string, bump uint8) (types.Address, error) {
	addr, err := pda.CreateAddress(pda.WithBump(seeds(mint, role), bump), programID)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %s bump %d: %w", ErrBumpMismatch, role, bump, err)
	}
	return addr, nil
}
