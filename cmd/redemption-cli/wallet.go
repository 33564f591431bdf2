package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/Klingon-tech/klingnet-redemption/internal/wallet"
	"golang.org/x/term"
)

const walletUsage = "Usage: redemption-cli wallet <create|list|address> [flags]"

func cmdWallet(args []string, g *globals) {
	if len(args) < 1 {
		fatal(walletUsage)
	}
	ks, err := wallet.NewKeystore(g.keystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}

	switch args[0] {
	case "create":
		cmdWalletCreate(ks, args[1:])
	case "list":
		cmdWalletList(ks)
	case "address":
		cmdWalletAddress(ks, args[1:])
	default:
		fatal("Unknown wallet command: %s\n%s", args[0], walletUsage)
	}
}

func cmdWalletCreate(ks *wallet.Keystore, args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "Import this BIP-39 mnemonic instead of generating one")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: redemption-cli wallet create --name <name> [--mnemonic \"...\"]")
	}

	phrase := *mnemonic
	if phrase == "" {
		var err error
		phrase, err = wallet.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", phrase)
	}

	seed, err := wallet.SeedFromMnemonic(phrase, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	defer zero(seed)

	password := readNewPassword()
	if err := ks.Create(*name, seed, password, wallet.DefaultParams()); err != nil {
		fatal("create wallet: %v", err)
	}

	entry, err := ks.NewKey(*name, password, wallet.RolePayer, "default")
	if err != nil {
		fatal("derive payer key: %v", err)
	}

	fmt.Printf("\nWallet created: %s\n", *name)
	fmt.Printf("Payer:   %s\n", entry.Address)
	fmt.Printf("Path:    %s\n", entry.Path())
}

func cmdWalletList(ks *wallet.Keystore) {
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdWalletAddress(ks *wallet.Keystore, args []string) {
	fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	newKey := fs.Bool("new", false, "Derive the next key of --role")
	roleName := fs.String("role", string(wallet.RolePayer), "Key role: payer or custodian")
	label := fs.String("label", "", "Label for the new key")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: redemption-cli wallet address --wallet <name> [--new --role payer|custodian]")
	}

	if *newKey {
		role, err := wallet.ParseRole(*roleName)
		if err != nil {
			fatal("%v", err)
		}
		password := readPassword("Enter password: ")
		entry, err := ks.NewKey(*walletName, password, role, *label)
		if err != nil {
			fatal("derive key: %v", err)
		}
		fmt.Printf("New %s key [%d]: %s\n", entry.Role, entry.Index, entry.Address)
		return
	}

	keys, err := ks.Keys(*walletName)
	if err != nil {
		fatal("list keys: %v", err)
	}
	if len(keys) == 0 {
		fmt.Println("No keys found.")
		return
	}
	for _, k := range keys {
		fmt.Printf("  %-9s [%d] %s  %s", k.Role, k.Index, k.Address, k.Path())
		if k.Label != "" {
			fmt.Printf("  (%s)", k.Label)
		}
		fmt.Println()
	}
}

// ── Password helpers ────────────────────────────────────────────────────

func readPassword(prompt string) []byte {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		fatal("read password: %v", err)
	}
	return password
}

func readNewPassword() []byte {
	password := readPassword("Enter password: ")
	confirm := readPassword("Confirm password: ")
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
