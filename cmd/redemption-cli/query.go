package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// ── info ────────────────────────────────────────────────────────────────

func cmdInfo(client *rpcclient.Client) {
	info, err := client.NodeInfo(context.Background())
	if err != nil {
		fatal("node_getInfo: %v", err)
	}
	fmt.Printf("Chain:      %s (%s)\n", info.ChainName, info.ChainID)
	fmt.Printf("Program:    %s\n", info.ProgramID)
	fmt.Printf("Token prog: %s\n", info.TokenProgramID)
	if info.Custodian != "" {
		fmt.Printf("Custodian:  %s\n", info.Custodian)
	}
	fmt.Printf("Version:    %s\n", info.Version)
}

// ── derive ──────────────────────────────────────────────────────────────

func cmdDerive(client *rpcclient.Client, args []string) {
	mint, rest := mintArg(args, "Usage: redemption-cli derive <mint> [--program <id>]")
	fs := flag.NewFlagSet("derive", flag.ExitOnError)
	program := fs.String("program", "", "Derive locally for this program id")
	fs.Parse(rest)

	var addrs redemption.Addresses
	if *program != "" {
		var err error
		addrs, err = redemption.DeriveAddresses(parseAddress("program", *program), mint)
		if err != nil {
			fatal("derive: %v", err)
		}
	} else {
		res, err := client.DeriveAddresses(context.Background(), mint)
		if err != nil {
			fatal("redemption_deriveAddresses: %v", err)
		}
		addrs = res.Addresses
	}

	fmt.Printf("Mint:    %s\n", addrs.Mint)
	fmt.Printf("Escrow:  %s (bump %d)\n", addrs.Escrow, addrs.EscrowBump)
	fmt.Printf("Record:  %s (bump %d)\n", addrs.Record, addrs.RecordBump)
}

// ── record / status / history ───────────────────────────────────────────

func cmdRecord(client *rpcclient.Client, args []string) {
	mint, _ := mintArg(args, "Usage: redemption-cli record <mint>")
	res, err := client.Record(context.Background(), mint)
	if err != nil {
		fatal("redemption_getRecord: %v", err)
	}
	fmt.Printf("Mint:          %s\n", res.Mint)
	fmt.Printf("Record:        %s (bump %d)\n", res.Record, res.Data.RecordBump)
	fmt.Printf("Escrow:        %s (bump %d)\n", res.Escrow, res.Data.EscrowBump)
	fmt.Printf("Token account: %s\n", res.Data.BuyerTokenAccount)
	fmt.Printf("Payer:         %s\n", res.Data.BuyerPaymentAccount)
}

func cmdStatus(client *rpcclient.Client, args []string) {
	mint, _ := mintArg(args, "Usage: redemption-cli status <mint>")
	res, err := client.Status(context.Background(), mint)
	if err != nil {
		fatal("redemption_getStatus: %v", err)
	}
	fmt.Printf("Mint:   %s\n", res.Mint)
	fmt.Printf("State:  %s\n", res.State)
	if res.State == redemption.StateActive {
		fmt.Printf("Escrow: %d unit(s)\n", res.EscrowAmount)
	}
}

func cmdHistory(client *rpcclient.Client, args []string) {
	mint, _ := mintArg(args, "Usage: redemption-cli history <mint>")
	entries, err := client.History(context.Background(), mint)
	if err != nil {
		fatal("redemption_getHistory: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No transitions recorded.")
		return
	}
	for i := range entries {
		printReceipt(&entries[i])
		fmt.Println()
	}
}

func printReceipt(r *redemption.Receipt) {
	fmt.Printf("%-10s %s  %s\n", r.Op, r.Mint, formatTime(r.Time))
	fmt.Printf("  Escrow:    %s\n", r.Escrow)
	fmt.Printf("  Record:    %s\n", r.Record)
	fmt.Printf("  Payer:     %s\n", r.BuyerPaymentAccount)
	if r.RentPaid > 0 {
		fmt.Printf("  Rent paid: %s\n", formatAmount(r.RentPaid))
	}
	if r.Reclaimed > 0 {
		fmt.Printf("  Reclaimed: %s\n", formatAmount(r.Reclaimed))
	}
}

// ── supply / balance / tokens ───────────────────────────────────────────

func cmdSupply(client *rpcclient.Client, args []string) {
	mint, _ := mintArg(args, "Usage: redemption-cli supply <mint>")
	res, err := client.Mint(context.Background(), mint)
	if err != nil {
		fatal("token_getMint: %v", err)
	}
	fmt.Printf("Mint:      %s\n", res.Address)
	fmt.Printf("Supply:    %d\n", res.Supply)
	fmt.Printf("Decimals:  %d\n", res.Decimals)
	if !res.Authority.IsZero() {
		fmt.Printf("Authority: %s\n", res.Authority)
	}
	if m := res.Metadata; m != nil {
		fmt.Printf("Name:      %s (%s)\n", m.Name, m.Symbol)
		if m.URI != "" {
			fmt.Printf("URI:       %s\n", m.URI)
		}
		if !m.Custodian.IsZero() {
			fmt.Printf("Custodian: %s\n", m.Custodian)
		}
	}
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: redemption-cli balance <address>")
	}
	addr := parseAddress("address", args[0])
	res, err := client.Account(context.Background(), addr)
	if err != nil {
		fatal("ledger_getAccount: %v", err)
	}
	fmt.Printf("Address: %s\n", res.Address)
	fmt.Printf("Balance: %s\n", formatAmount(res.Balance))
	fmt.Printf("Owner:   %s\n", res.Owner)
	if res.Space > 0 {
		fmt.Printf("Space:   %d bytes (rent exempt: %v)\n", res.Space, res.Exempt)
	}
}

func cmdTokens(client *rpcclient.Client) {
	res, err := client.Tokens(context.Background())
	if err != nil {
		fatal("token_list: %v", err)
	}
	if len(res.Tokens) == 0 {
		fmt.Println("No tokens found.")
		return
	}
	for _, t := range res.Tokens {
		fmt.Printf("  %-8s %s  %s\n", t.Symbol, t.Mint, t.Name)
	}
}

// ── Argument helpers ────────────────────────────────────────────────────

// mintArg takes the leading positional mint address.
func mintArg(args []string, usageLine string) (types.Address, []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("%s", usageLine)
	}
	return parseAddress("mint", args[0]), args[1:]
}

func parseAddress(what, s string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		fatal("invalid %s address %q: %v", what, s, err)
	}
	return addr
}

// formatAmount converts raw units to a decimal string.
func formatAmount(units uint64) string {
	return fmt.Sprintf("%d.%0*d", units/config.Coin, config.Decimals, units%config.Coin)
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
