// derive_key.go prints the pubkey and ledger address for a hex-encoded
// private key file. With -genesis it also writes a local genesis that
// funds the key and gives it one redeemable demo unit.
//
// Usage: go run scripts/derive_key.go [-genesis out.json] <keyfile>
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

func main() {
	genesisOut := flag.String("genesis", "", "write a local genesis for this key to this file")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: derive_key [-genesis out.json] <keyfile>")
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fail(err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		fail(err)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		fail(err)
	}
	defer key.Zero()

	pub := key.PublicKey()
	addr := crypto.AddressFromPubKey(pub)
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", addr)

	if *genesisOut == "" {
		return
	}
	g := localGenesis(addr)
	if err := g.Validate(); err != nil {
		fail(err)
	}
	if err := g.Save(*genesisOut); err != nil {
		fail(err)
	}
	fmt.Printf("genesis=%s\n", *genesisOut)
	fmt.Printf("mint=%s\n", g.Mints[0].Address)
	fmt.Printf("token_account=%s\n", g.Mints[0].Holders[0].Account)
}

// localGenesis is the testnet genesis with every well-known address
// replaced by ones tied to addr.
func localGenesis(addr types.Address) *config.Genesis {
	g := config.TestnetGenesis()
	g.ChainID = "klingnet-redemption-local"
	g.ChainName = "Klingnet Redemption Local"
	g.ProgramID = types.Address(crypto.HashParts([]byte("local-program"), addr[:])).String()
	g.Alloc = map[string]uint64{addr.String(): 1_000 * config.Coin}

	mint := types.Address(crypto.HashParts([]byte("local-mint"), addr[:]))
	account := types.Address(crypto.HashParts([]byte("local-token-account"), addr[:]))
	m := &g.Mints[0]
	m.Address = mint.String()
	m.Authority = addr.String()
	m.Custodian = addr.String()
	m.Holders = []config.HolderAlloc{{
		Account: account.String(),
		Owner:   addr.String(),
		Amount:  1,
	}}
	return g
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
