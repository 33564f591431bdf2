package wallet

import "fmt"

// Role is the part a key plays in a redemption.
type Role string

const (
	// RolePayer keys fund the escrow and record accounts and receive the
	// reclaimed rent. They also own buyer token accounts.
	RolePayer Role = "payer"
	// RoleCustodian keys co-sign Return and Burn.
	RoleCustodian Role = "custodian"
)

// Account returns the BIP-44 account number of the role.
func (r Role) Account() (uint32, error) {
	switch r {
	case RolePayer:
		return 0, nil
	case RoleCustodian:
		return 1, nil
	default:
		return 0, fmt.Errorf("unknown role %q", string(r))
	}
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, err := r.Account(); err != nil {
		return "", err
	}
	return r, nil
}
