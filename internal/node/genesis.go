package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// genesisKey holds the hash of the genesis a ledger was created from.
var genesisKey = []byte("node/genesis")

// ErrGenesisMismatch is returned when a ledger is reopened with a
// genesis other than the one that created it.
var ErrGenesisMismatch = errors.New("ledger was created from a different genesis")

// applyGenesis seeds an empty ledger from g in one transaction. On a
// ledger that already carries a genesis it only checks that the hashes
// match. Reports whether anything was written.
func applyGenesis(ctx context.Context, l *ledger.Ledger, g *config.Genesis) (bool, error) {
	hash, err := g.Hash()
	if err != nil {
		return false, fmt.Errorf("genesis hash: %w", err)
	}

	applied := false
	err = l.Update(ctx, func(txn *ledger.Txn) error {
		stored, err := txn.KV().Get(genesisKey)
		switch {
		case err == nil:
			if !bytes.Equal(stored, hash.Bytes()) {
				return fmt.Errorf("%w: have %x, want %s", ErrGenesisMismatch, stored, hash)
			}
			return nil
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}

		if err := applyAlloc(txn, g.Alloc); err != nil {
			return err
		}
		for i := range g.Mints {
			if err := applyMint(txn, &g.Mints[i]); err != nil {
				return fmt.Errorf("mint %d: %w", i, err)
			}
		}
		applied = true
		return txn.KV().Put(genesisKey, hash.Bytes())
	})
	return applied, err
}

func applyAlloc(txn *ledger.Txn, alloc map[string]uint64) error {
	addrs := make([]string, 0, len(alloc))
	for a := range alloc {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	for _, a := range addrs {
		addr, err := types.ParseAddress(a)
		if err != nil {
			return fmt.Errorf("alloc %s: %w", a, err)
		}
		if err := txn.Credit(addr, alloc[a]); err != nil {
			return fmt.Errorf("alloc %s: %w", a, err)
		}
	}
	return nil
}

func applyMint(txn *ledger.Txn, m *config.MintAlloc) error {
	mint, err := types.ParseAddress(m.Address)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	authority, err := parseOptional(m.Authority)
	if err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	custodian, err := parseOptional(m.Custodian)
	if err != nil {
		return fmt.Errorf("custodian: %w", err)
	}
	supply, err := m.Supply()
	if err != nil {
		return err
	}

	if err := token.PutMint(txn, mint, &token.Mint{
		Authority:   authority,
		Supply:      supply,
		Decimals:    m.Decimals,
		Initialized: true,
	}); err != nil {
		return err
	}

	for _, h := range m.Holders {
		account, err := types.ParseAddress(h.Account)
		if err != nil {
			return fmt.Errorf("holder account: %w", err)
		}
		owner, err := types.ParseAddress(h.Owner)
		if err != nil {
			return fmt.Errorf("holder owner: %w", err)
		}
		if err := token.PutAccount(txn, account, &token.Account{
			Mint:   mint,
			Owner:  owner,
			Amount: h.Amount,
			State:  token.StateInitialized,
		}); err != nil {
			return err
		}
	}

	return token.WriteMetadata(txn.KV(), mint, &token.Metadata{
		Name:      m.Name,
		Symbol:    m.Symbol,
		URI:       m.URI,
		Custodian: custodian,
	})
}

func parseOptional(s string) (types.Address, error) {
	if s == "" {
		return types.Address{}, nil
	}
	return types.ParseAddress(s)
}
