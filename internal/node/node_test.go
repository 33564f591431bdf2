package node

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.klingnet-redemption/genesis.json", filepath.Join(home, ".klingnet-redemption/genesis.json")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func newLedger() (*ledger.Ledger, storage.DB) {
	db := storage.NewMemory()
	return ledger.New(db, ledger.DefaultRent()), db
}

func TestApplyGenesis_Testnet(t *testing.T) {
	l, db := newLedger()
	ctx := context.Background()

	applied, err := applyGenesis(ctx, l, config.TestnetGenesis())
	if err != nil {
		t.Fatalf("applyGenesis: %v", err)
	}
	if !applied {
		t.Fatal("applyGenesis on empty ledger reported nothing applied")
	}

	operator := types.MustParseAddress(config.TestnetAddress)
	acct, err := l.Account(ctx, operator)
	if err != nil {
		t.Fatalf("operator account: %v", err)
	}
	if acct.Balance != 200_000*config.Coin {
		t.Errorf("operator balance = %d, want %d", acct.Balance, uint64(200_000*config.Coin))
	}

	mintAddr := types.MustParseAddress(config.TestnetDemoMint)
	btaAddr := types.MustParseAddress(config.TestnetDemoTokenAccount)
	err = l.View(ctx, func(txn *ledger.Txn) error {
		mint, err := token.GetMint(txn, mintAddr)
		if err != nil {
			return err
		}
		if mint.Supply != 1 || mint.Authority != operator {
			t.Errorf("mint = %+v", mint)
		}
		bta, err := token.GetAccount(txn, btaAddr)
		if err != nil {
			return err
		}
		if bta.Amount != 1 || bta.Owner != operator || bta.Mint != mintAddr {
			t.Errorf("token account = %+v", bta)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	meta, err := token.NewStore(db).Get(mintAddr)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Symbol != "BTL" || meta.Custodian != operator {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestApplyGenesis_Idempotent(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()
	g := config.TestnetGenesis()

	if _, err := applyGenesis(ctx, l, g); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	applied, err := applyGenesis(ctx, l, g)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Error("second apply wrote to the ledger")
	}

	acct, err := l.Account(ctx, types.MustParseAddress(config.TestnetAddress))
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 200_000*config.Coin {
		t.Errorf("balance after reapply = %d", acct.Balance)
	}
}

func TestApplyGenesis_Mismatch(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	if _, err := applyGenesis(ctx, l, config.MainnetGenesis()); err != nil {
		t.Fatalf("apply mainnet: %v", err)
	}
	_, err := applyGenesis(ctx, l, config.TestnetGenesis())
	if !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("err = %v, want ErrGenesisMismatch", err)
	}
}

func TestApplyGenesis_RollsBackOnBadMint(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	g := config.TestnetGenesis()
	g.Mints[0].Holders[0].Owner = "not-an-address"

	if _, err := applyGenesis(ctx, l, g); err == nil {
		t.Fatal("expected error for bad holder owner")
	}
	_, err := l.Account(ctx, types.MustParseAddress(config.TestnetAddress))
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("alloc survived a failed genesis: err = %v", err)
	}
}

func TestResolveProgram(t *testing.T) {
	g := config.TestnetGenesis()
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"empty uses genesis", "", false},
		{"matching", config.TestnetProgramID, false},
		{"other program", config.MainnetProgramID, true},
		{"garbage", "0OIl", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default(config.Testnet)
			cfg.Program.ID = tt.id
			got, err := resolveProgram(cfg, g)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != types.MustParseAddress(config.TestnetProgramID) {
				t.Errorf("program = %s", got)
			}
		})
	}
}

func TestOpenStorage_Unsupported(t *testing.T) {
	cfg := config.Default(config.Testnet)
	cfg.Storage.Backend = "leveldb"
	if _, err := openStorage(cfg); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(config.Testnet)
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = config.BackendMemory
	cfg.RPC.Port = 0
	cfg.Log.Level = "error"
	cfg.Log.File = filepath.Join(cfg.DataDir, "node.log")
	return cfg
}

func TestNew_ServesRPC(t *testing.T) {
	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	client := rpcclient.New("http://" + n.RPCAddr() + "/")
	info, err := client.NodeInfo(context.Background())
	if err != nil {
		t.Fatalf("NodeInfo: %v", err)
	}
	if info.ChainID != "klingnet-redemption-testnet-1" {
		t.Errorf("chain_id = %q", info.ChainID)
	}
	if info.ProgramID != config.TestnetProgramID {
		t.Errorf("program_id = %q", info.ProgramID)
	}

	mint, err := client.Mint(context.Background(), types.MustParseAddress(config.TestnetDemoMint))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if mint.Supply != 1 {
		t.Errorf("demo supply = %d, want 1", mint.Supply)
	}
}

func TestNew_BadgerResumes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendBadger
	cfg.RPC.Enabled = false

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.RPCAddr() != "" {
		t.Errorf("RPCAddr = %q with rpc disabled", n.RPCAddr())
	}
	n.Stop()

	n, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer n.Stop()

	acct, err := n.Ledger().Account(context.Background(), types.MustParseAddress(config.TestnetAddress))
	if err != nil {
		t.Fatalf("account after reopen: %v", err)
	}
	if acct.Balance != 200_000*config.Coin {
		t.Errorf("balance after reopen = %d", acct.Balance)
	}
}

func TestNew_GenesisFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.RPC.Enabled = false

	g := config.TestnetGenesis()
	g.ChainID = "klingnet-redemption-local"
	cfg.GenesisFile = filepath.Join(cfg.DataDir, "genesis.json")
	if err := g.Save(cfg.GenesisFile); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if n.Genesis().ChainID != "klingnet-redemption-local" {
		t.Errorf("chain_id = %q", n.Genesis().ChainID)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"program mismatch", func(cfg *config.Config) { cfg.Program.ID = config.MainnetProgramID }},
		{"bad custodian", func(cfg *config.Config) { cfg.Program.Custodian = "nope" }},
		{"missing genesis file", func(cfg *config.Config) { cfg.GenesisFile = filepath.Join(cfg.DataDir, "absent.json") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.RPC.Enabled = false
			tt.mutate(cfg)
			n, err := New(cfg)
			if err == nil {
				n.Stop()
				t.Fatal("expected error")
			}
		})
	}
}

// The demo mint's metadata names the testnet key as custodian; only
// program.custodian is asked to co-sign Return.
func TestNew_MintCustodianNotEnforced(t *testing.T) {
	custodian, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.RPC.Enabled = false
	cfg.Program.Custodian = custodian.Address().String()

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()

	raw, err := hex.DecodeString(config.TestnetPrivKey)
	if err != nil {
		t.Fatal(err)
	}
	buyer, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		t.Fatal(err)
	}
	mint := types.MustParseAddress(config.TestnetDemoMint)
	bta := types.MustParseAddress(config.TestnetDemoTokenAccount)

	meta, err := n.TokenStore().Get(mint)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Custodian != buyer.Address() {
		t.Fatalf("metadata custodian = %s, want %s", meta.Custodian, buyer.Address())
	}

	ctx := context.Background()
	proc := n.Processor()
	ins, err := redemption.NewInitialize(proc.ProgramID(), mint, bta, buyer.Address())
	if err != nil {
		t.Fatal(err)
	}
	if err := ins.Sign(buyer); err != nil {
		t.Fatal(err)
	}
	if _, err := proc.Initialize(ctx, ins); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ret, err := redemption.NewReturn(proc.ProgramID(), mint, bta, buyer.Address())
	if err != nil {
		t.Fatal(err)
	}
	if err := ret.Sign(custodian); err != nil {
		t.Fatal(err)
	}
	if _, err := proc.Return(ctx, ret); err != nil {
		t.Fatalf("Return signed by program custodian only: %v", err)
	}
}
