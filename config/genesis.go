package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes sharing a ledger.
// =============================================================================

// Denomination of the native balance that pays rent.
// 1 coin = 10^9 base units. All ledger balances are in base units.
const (
	Decimals  = 9
	Coin      = 1_000_000_000
	MilliCoin = 1_000_000
)

// MaxMintDecimals bounds the decimals of a genesis mint.
const MaxMintDecimals = 18

// Genesis holds the initial ledger and the protocol rules.
// It is immutable once a ledger has been created from it.
type Genesis struct {
	// Ledger identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Timestamp uint64 `json:"timestamp"`

	// ProgramID is the redemption program every derived address is bound to.
	ProgramID string `json:"program_id"`

	// Rent schedule for account storage.
	Rent ledger.Rent `json:"rent"`

	// Initial native balances (address -> base units).
	Alloc map[string]uint64 `json:"alloc"`

	// Mints created at genesis with their initial holders.
	Mints []MintAlloc `json:"mints,omitempty"`
}

// MintAlloc describes a token mint created at genesis.
type MintAlloc struct {
	Address   string `json:"address"`
	Authority string `json:"authority"`
	Decimals  uint8  `json:"decimals"`

	// Informational metadata. Custodian is shown by token_getMint but
	// does not authorize anything; see program.custodian.
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	URI       string `json:"uri,omitempty"`
	Custodian string `json:"custodian,omitempty"`

	Holders []HolderAlloc `json:"holders,omitempty"`
}

// HolderAlloc is a token account created at genesis.
type HolderAlloc struct {
	Account string `json:"account"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// Supply returns the sum of all holder amounts.
func (m *MintAlloc) Supply() (uint64, error) {
	var total uint64
	for _, h := range m.Holders {
		if h.Amount > math.MaxUint64-total {
			return 0, fmt.Errorf("mint %s: supply overflows", m.Address)
		}
		total += h.Amount
	}
	return total, nil
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet operator.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetPubKey is the compressed public key (hex) derived from TestnetMnemonic.
	TestnetPubKey = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// TestnetPrivKey is the private key (hex) derived from TestnetMnemonic.
	TestnetPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"

	// TestnetAddress is the x-only public key of TestnetPubKey in base58.
	TestnetAddress = "obDmWjZprehdYJPFUMJjB53VwDfXX54rvbVFTqMYodQ"
)

// Well-known program and demo addresses.
const (
	MainnetProgramID = "5TFgpmM82dk4c4FuiHuGiVCjiR9LxjVRMD9Z3VVdGgwE"
	TestnetProgramID = "EU4aCLAgu3wyTxThURpUoe8eBCYYiupuzWyQ4qZUfGoM"

	MainnetCustodian = "45FQezzEtEApYbLWVKTNYsB1chhZYaXbRWWGERZxugpH"

	// Testnet demo mint: one redeemable bottle held by TestnetAddress.
	TestnetDemoMint         = "BmDoSCFLHbN8HPPMnHjHuVGspHjHnMUrAd8jDV9ZpWtB"
	TestnetDemoTokenAccount = "AKbXX1pN4fAANDdCM2Rh6DT1Kfu8JEyHDg81rS2GjkWT"
)

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "klingnet-redemption-1",
		ChainName: "Klingnet Redemption",
		Timestamp: 1770734103, // 2026-02-10
		ProgramID: MainnetProgramID,
		Rent:      ledger.DefaultRent(),
		Alloc: map[string]uint64{
			MainnetCustodian: 1_000 * Coin,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "klingnet-redemption-testnet-1"
	g.ChainName = "Klingnet Redemption Testnet"
	g.ProgramID = TestnetProgramID

	g.Alloc = map[string]uint64{
		TestnetAddress: 200_000 * Coin,
	}
	g.Mints = []MintAlloc{{
		Address:   TestnetDemoMint,
		Authority: TestnetAddress,
		Decimals:  0,
		Name:      "Bottle 0001",
		Symbol:    "BTL",
		URI:       "https://klingnet.io/redemption/bottle-0001.json",
		Custodian: TestnetAddress,
		Holders: []HolderAlloc{{
			Account: TestnetDemoTokenAccount,
			Owner:   TestnetAddress,
			Amount:  1,
		}},
	}}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Program parses the genesis program id.
func (g *Genesis) Program() (types.Address, error) {
	addr, err := types.ParseAddress(g.ProgramID)
	if err != nil {
		return types.Address{}, fmt.Errorf("program_id: %w", err)
	}
	if addr.IsZero() {
		return types.Address{}, fmt.Errorf("program_id must not be zero")
	}
	return addr, nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if _, err := g.Program(); err != nil {
		return err
	}
	if g.Rent.BytePrice == 0 || g.Rent.ExemptionFactor == 0 {
		return fmt.Errorf("rent byte_price and exemption_factor must be positive")
	}

	seen := make(map[types.Address]string)
	claim := func(s, what string) (types.Address, error) {
		addr, err := types.ParseAddress(s)
		if err != nil {
			return types.Address{}, fmt.Errorf("invalid %s %q: %w", what, s, err)
		}
		if prev, ok := seen[addr]; ok {
			return types.Address{}, fmt.Errorf("%s %s already used as %s", what, s, prev)
		}
		seen[addr] = what
		return addr, nil
	}

	var totalAlloc uint64
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if v > math.MaxUint64-totalAlloc {
			return fmt.Errorf("genesis allocations overflow")
		}
		totalAlloc += v
	}

	for i := range g.Mints {
		m := &g.Mints[i]
		if _, err := claim(m.Address, "mint"); err != nil {
			return err
		}
		if _, err := types.ParseAddress(m.Authority); err != nil {
			return fmt.Errorf("mint %s: invalid authority: %w", m.Address, err)
		}
		if m.Custodian != "" {
			if _, err := types.ParseAddress(m.Custodian); err != nil {
				return fmt.Errorf("mint %s: invalid custodian: %w", m.Address, err)
			}
		}
		if m.Decimals > MaxMintDecimals {
			return fmt.Errorf("mint %s: decimals %d exceeds %d", m.Address, m.Decimals, MaxMintDecimals)
		}
		if _, err := m.Supply(); err != nil {
			return err
		}
		for _, h := range m.Holders {
			if _, err := claim(h.Account, "token account"); err != nil {
				return err
			}
			if _, err := types.ParseAddress(h.Owner); err != nil {
				return fmt.Errorf("holder %s: invalid owner: %w", h.Account, err)
			}
		}
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to detect a ledger being reopened with a different genesis.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
