package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-redemption/internal/wallet"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// cmdRedeem builds, signs and submits (or writes) one operation.
func cmdRedeem(client *rpcclient.Client, op string, args []string, g *globals) {
	usageLine := fmt.Sprintf("Usage: redemption-cli %s <mint> [flags]", op)
	mint, rest := mintArg(args, usageLine)

	fs := flag.NewFlagSet(op, flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet holding the signing key")
	signer := fs.String("signer", "", "Address of the signing key (return/burn: custodian)")
	payer := fs.String("payer", "", "Buyer payment account (initialize)")
	tokenAccount := fs.String("token-account", "", "Buyer token account (initialize)")
	program := fs.String("program", "", "Program id (default: ask the node)")
	out := fs.String("out", "", "Write the signed instruction to this file instead of submitting")
	fs.Parse(rest)

	ctx := context.Background()
	programID := resolveProgram(ctx, client, *program)

	var (
		ins *redemption.Instruction
		err error
	)
	switch op {
	case "initialize":
		if *walletName == "" || *payer == "" || *tokenAccount == "" {
			fatal("Usage: redemption-cli initialize <mint> --wallet <w> --payer <addr> --token-account <addr>")
		}
		bpa := parseAddress("payer", *payer)
		ins, err = redemption.NewInitialize(programID, mint, parseAddress("token-account", *tokenAccount), bpa)
		if err != nil {
			fatal("build instruction: %v", err)
		}
		if *signer == "" {
			*signer = *payer
		}
	case "return", "burn":
		bta, bpa := recordAccounts(ctx, client, mint, *tokenAccount, *payer)
		build := redemption.NewReturn
		if op == "burn" {
			build = redemption.NewBurn
		}
		ins, err = build(programID, mint, bta, bpa)
		if err != nil {
			fatal("build instruction: %v", err)
		}
	}

	if *walletName != "" {
		if *signer == "" {
			fatal("--signer is required with --wallet")
		}
		signWith(ins, g, *walletName, parseAddress("signer", *signer))
	}

	if *out != "" {
		writeInstruction(*out, ins)
		fmt.Printf("Instruction written to %s (%d signature(s))\n", *out, len(ins.Signatures))
		return
	}
	submit(ctx, client, ins)
}

// cmdSign adds a signature to an instruction file in place.
func cmdSign(args []string, g *globals) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	file := fs.String("file", "", "Instruction file")
	walletName := fs.String("wallet", "", "Wallet holding the signing key")
	signer := fs.String("signer", "", "Address of the signing key")
	fs.Parse(args)

	if *file == "" || *walletName == "" || *signer == "" {
		fatal("Usage: redemption-cli sign --file <f> --wallet <w> --signer <addr>")
	}

	ins := readInstruction(*file)
	signWith(ins, g, *walletName, parseAddress("signer", *signer))
	writeInstruction(*file, ins)
	fmt.Printf("Signed %s %s (%d signature(s))\n", ins.Op, ins.Mint, len(ins.Signatures))
}

// cmdSubmit sends a signed instruction file.
func cmdSubmit(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	file := fs.String("file", "", "Instruction file")
	fs.Parse(args)

	if *file == "" {
		fatal("Usage: redemption-cli submit --file <f>")
	}
	submit(context.Background(), client, readInstruction(*file))
}

func submit(ctx context.Context, client *rpcclient.Client, ins *redemption.Instruction) {
	receipt, err := client.Submit(ctx, ins)
	if err != nil {
		if kind := rpcclient.KindOf(err); kind != "" {
			fatal("%s rejected (%s): %v", ins.Op, kind, err)
		}
		fatal("%s: %v", ins.Op, err)
	}
	printReceipt(receipt)
}

func signWith(ins *redemption.Instruction, g *globals, walletName string, addr types.Address) {
	ks, err := wallet.NewKeystore(g.keystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password := readPassword("Enter password: ")
	defer zero(password)

	key, err := ks.Signer(walletName, password, addr)
	if err != nil {
		fatal("load key: %v", err)
	}
	defer key.Zero()

	if err := ins.Sign(key); err != nil {
		fatal("%v", err)
	}
}

// recordAccounts returns the buyer accounts for return/burn. Each flag
// that is set wins; the other account is read from the record.
func recordAccounts(ctx context.Context, client *rpcclient.Client, mint types.Address, bta, bpa string) (types.Address, types.Address) {
	if bta != "" && bpa != "" {
		return parseAddress("token-account", bta), parseAddress("payer", bpa)
	}
	rec, err := client.Record(ctx, mint)
	if err != nil {
		fatal("redemption_getRecord: %v", err)
	}
	return pickAccount("token-account", bta, rec.Data.BuyerTokenAccount),
		pickAccount("payer", bpa, rec.Data.BuyerPaymentAccount)
}

// pickAccount parses flagValue, or returns stored when the flag is empty.
func pickAccount(what, flagValue string, stored types.Address) types.Address {
	if flagValue == "" {
		return stored
	}
	return parseAddress(what, flagValue)
}

func resolveProgram(ctx context.Context, client *rpcclient.Client, flagValue string) types.Address {
	if flagValue != "" {
		return parseAddress("program", flagValue)
	}
	info, err := client.NodeInfo(ctx)
	if err != nil {
		fatal("node_getInfo: %v (pass --program to work offline)", err)
	}
	return parseAddress("program", info.ProgramID)
}

func readInstruction(path string) *redemption.Instruction {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read instruction: %v", err)
	}
	var ins redemption.Instruction
	if err := json.Unmarshal(data, &ins); err != nil {
		fatal("parse instruction: %v", err)
	}
	return &ins
}

func writeInstruction(path string, ins *redemption.Instruction) {
	data, err := json.MarshalIndent(ins, "", "  ")
	if err != nil {
		fatal("marshal instruction: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		fatal("write instruction: %v", err)
	}
}
