// redemption-cli is a command-line client for a redemptiond node.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpcclient"
)

// globals are the flags accepted before the subcommand.
type globals struct {
	rpcURL  string
	dataDir string
	network string
}

// keystoreDir returns the keystore path matching redemptiond's layout:
// <datadir>/<network>/keystore
func (g *globals) keystoreDir() string {
	return filepath.Join(g.dataDir, g.network, "keystore")
}

// parseGlobals consumes the leading global flags and returns the rest.
func parseGlobals(args []string) (*globals, []string, error) {
	g := &globals{
		dataDir: config.DefaultDataDir(),
		network: string(config.Mainnet),
	}
	for len(args) > 0 {
		name, value, consumed, ok := splitFlag(args, "--rpc", "--datadir", "--network")
		if !ok {
			break
		}
		switch name {
		case "--rpc":
			g.rpcURL = value
		case "--datadir":
			g.dataDir = value
		case "--network":
			g.network = value
		}
		args = args[consumed:]
	}
	if g.network != string(config.Mainnet) && g.network != string(config.Testnet) {
		return nil, nil, fmt.Errorf("invalid network %q", g.network)
	}
	if g.rpcURL == "" {
		port := config.Default(config.NetworkType(g.network)).RPC.Port
		g.rpcURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	return g, args, nil
}

// splitFlag matches "--name value" and "--name=value" forms.
func splitFlag(args []string, names ...string) (name, value string, consumed int, ok bool) {
	for _, n := range names {
		switch {
		case args[0] == n && len(args) > 1:
			return n, args[1], 2, true
		case strings.HasPrefix(args[0], n+"="):
			return n, args[0][len(n)+1:], 1, true
		}
	}
	return "", "", 0, false
}

func main() {
	g, args, err := parseGlobals(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(g.rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "info":
		cmdInfo(client)
	case "wallet":
		cmdWallet(cmdArgs, g)
	case "derive":
		cmdDerive(client, cmdArgs)
	case "initialize", "return", "burn":
		cmdRedeem(client, cmd, cmdArgs, g)
	case "sign":
		cmdSign(cmdArgs, g)
	case "submit":
		cmdSubmit(client, cmdArgs)
	case "record":
		cmdRecord(client, cmdArgs)
	case "status":
		cmdStatus(client, cmdArgs)
	case "history":
		cmdHistory(client, cmdArgs)
	case "supply":
		cmdSupply(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "tokens":
		cmdTokens(client)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: redemption-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:9545, testnet 9645)
  --datadir <path>    Data directory (default: ~/.klingnet-redemption)
  --network <net>     mainnet (default) or testnet

Commands:
  info                            Show node and program identity

  wallet create --name <n> [--mnemonic "..."]
                                  Create a wallet (or import a mnemonic)
  wallet list                     List wallets
  wallet address --wallet <w> [--new --role payer|custodian --label <l>]
                                  List keys, or derive the next one

  derive <mint> [--program <id>]  Show escrow and record addresses of a mint
  initialize <mint> --wallet <w> --payer <addr> --token-account <addr> [--out <file>]
                                  Escrow the buyer's unit and open the record
  return <mint> [--wallet <w> --signer <addr>] [--out <file>]
                                  Give the unit back to the buyer
  burn <mint> [--wallet <w> --signer <addr>] [--out <file>]
                                  Destroy the unit after physical delivery
  sign --file <f> --wallet <w> --signer <addr>
                                  Co-sign an instruction file
  submit --file <f>               Submit a signed instruction file

  record <mint>                   Show the redemption record
  status <mint>                   Show the redemption state
  history <mint>                  Show committed transitions
  supply <mint>                   Show mint supply and metadata
  balance <address>               Show a ledger account
  tokens                          List mints with metadata
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
