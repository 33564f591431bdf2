// Package crypto provides cryptographic primitives for the redemption ledger.
package crypto

import (
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the concatenation of parts without allocating
// the joined buffer.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = x-coordinate of the key (the 32 bytes after the parity prefix).
// Returns the zero address for malformed input.
func AddressFromPubKey(pubKey []byte) types.Address {
	var addr types.Address
	if len(pubKey) != 33 {
		return addr
	}
	copy(addr[:], pubKey[1:])
	return addr
}
