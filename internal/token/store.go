package token

import (
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

var prefixToken = []byte("t/") // t/<mint(32)> -> Metadata JSON

// Metadata describes the physical asset a mint stands for. It is
// informational only; no program reads it.
type Metadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri,omitempty"`
	// Custodian is the party holding the physical item. Display only:
	// Return and Burn are gated by the program-wide custodian, never this.
	Custodian types.Address `json:"custodian"`
}

// Store persists mint metadata outside the ledger.
type Store struct {
	db storage.DB
}

// NewStore creates a token metadata store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put stores metadata for a mint.
func (s *Store) Put(mint types.Address, meta *Metadata) error {
	return s.db.Update(func(txn storage.Txn) error {
		return WriteMetadata(txn, mint, meta)
	})
}

// WriteMetadata stores metadata for a mint inside an open transaction,
// so it commits together with the ledger writes that create the mint.
func WriteMetadata(txn storage.Txn, mint types.Address, meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return txn.Put(tokenKey(mint), data)
}

// Get retrieves metadata for a mint.
func (s *Store) Get(mint types.Address) (*Metadata, error) {
	data, err := s.db.Get(tokenKey(mint))
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &meta, nil
}

// MetadataEntry pairs a mint with its metadata.
type MetadataEntry struct {
	Mint types.Address `json:"mint"`
	Metadata
}

// ForEach iterates over all token metadata entries.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(types.Address, *Metadata) error) error {
	return s.db.ForEach(prefixToken, func(key, value []byte) error {
		// Key layout: "t/" + mint(32).
		if len(key) < len(prefixToken)+types.AddressSize {
			return nil // Malformed key, skip.
		}
		var mint types.Address
		copy(mint[:], key[len(prefixToken):])

		var meta Metadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return nil // Skip corrupt entries.
		}
		return fn(mint, &meta)
	})
}

// List returns all token metadata entries.
func (s *Store) List() ([]MetadataEntry, error) {
	var entries []MetadataEntry
	err := s.ForEach(func(mint types.Address, meta *Metadata) error {
		entries = append(entries, MetadataEntry{Mint: mint, Metadata: *meta})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []MetadataEntry{}
	}
	return entries, nil
}

func tokenKey(mint types.Address) []byte {
	key := make([]byte, len(prefixToken)+types.AddressSize)
	copy(key, prefixToken)
	copy(key[len(prefixToken):], mint[:])
	return key
}
