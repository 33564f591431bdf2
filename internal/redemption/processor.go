package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-redemption/internal/log"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// State is the lifecycle state of a mint's redemption.
type State uint8

// Lifecycle states.
const (
	StateUninitialized State = iota
	StateActive
	StateTerminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uninitialized":
		*s = StateUninitialized
	case "active":
		*s = StateActive
	case "terminal":
		*s = StateTerminal
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// Config configures a Processor.
type Config struct {
	// ProgramID is the identity every derived address is bound to. It
	// must not change while records exist.
	ProgramID types.Address
	// Custodian, when non-zero, must co-sign Return and Burn.
	Custodian types.Address
}

// Processor executes redemption instructions against a ledger.
type Processor struct {
	ledger    *ledger.Ledger
	programID types.Address
	custodian types.Address
	now       func() time.Time
}

// NewProcessor creates a processor bound to cfg.ProgramID.
func NewProcessor(l *ledger.Ledger, cfg Config) *Processor {
	return &Processor{
		ledger:    l,
		programID: cfg.ProgramID,
		custodian: cfg.Custodian,
		now:       time.Now,
	}
}

// ProgramID returns the program identity.
func (p *Processor) ProgramID() types.Address { return p.programID }

// Custodian returns the configured custodian, or the zero address.
func (p *Processor) Custodian() types.Address { return p.custodian }

// Ledger returns the ledger the processor runs against.
func (p *Processor) Ledger() *ledger.Ledger { return p.ledger }

// Execute dispatches ins by its Op.
func (p *Processor) Execute(ctx context.Context, ins *Instruction) (*Receipt, error) {
	if ins == nil {
		return nil, fmt.Errorf("%w: nil instruction", ErrInvalidInstruction)
	}
	switch ins.Op {
	case OpInitialize:
		return p.Initialize(ctx, ins)
	case OpReturn:
		return p.Return(ctx, ins)
	case OpBurn:
		return p.Burn(ctx, ins)
	default:
		return nil, p.reject(ins, fmt.Errorf("%w: unknown op %d", ErrInvalidInstruction, uint8(ins.Op)))
	}
}

// prepare checks everything about ins that does not need ledger state:
// op, program, signatures and the derived addresses it names.
func (p *Processor) prepare(ins *Instruction, want Op) (Addresses, ledger.Signers, error) {
	if ins == nil {
		return Addresses{}, nil, fmt.Errorf("%w: nil instruction", ErrInvalidInstruction)
	}
	if ins.Op != want {
		return Addresses{}, nil, fmt.Errorf("%w: op %s, want %s", ErrInvalidInstruction, ins.Op, want)
	}
	if ins.ProgramID != p.programID {
		return Addresses{}, nil, fmt.Errorf("%w: program %s, want %s", ErrInvalidInstruction, ins.ProgramID, p.programID)
	}
	signers, err := ins.Signers()
	if err != nil {
		return Addresses{}, nil, err
	}
	addrs, err := DeriveAddresses(p.programID, ins.Mint)
	if err != nil {
		return Addresses{}, nil, err
	}
	if ins.Record != addrs.Record {
		return Addresses{}, nil, fmt.Errorf("%w: got %s, derived %s", ErrRecordAddressMismatch, ins.Record, addrs.Record)
	}
	if ins.Escrow != addrs.Escrow {
		return Addresses{}, nil, fmt.Errorf("%w: got %s, derived %s", ErrEscrowAddressMismatch, ins.Escrow, addrs.Escrow)
	}
	return addrs, signers, nil
}

// Initialize moves the buyer's unit into escrow and opens the record.
func (p *Processor) Initialize(ctx context.Context, ins *Instruction) (*Receipt, error) {
	addrs, signers, err := p.prepare(ins, OpInitialize)
	if err != nil {
		return nil, p.reject(ins, err)
	}
	if !signers.Has(ins.BuyerPaymentAccount) {
		return nil, p.reject(ins, fmt.Errorf("%w: buyer payment account %s", ErrMissingSignature, ins.BuyerPaymentAccount))
	}

	now := p.now().Unix()
	var receipt *Receipt
	err = p.ledger.Update(ctx, func(txn *ledger.Txn) error {
		kv := txn.KV()
		if done, err := isResolved(kv, ins.Mint); err != nil {
			return err
		} else if done {
			return fmt.Errorf("%w: mint %s", ErrRedemptionResolved, ins.Mint)
		}
		if err := recordFree(txn, addrs.Record); err != nil {
			return err
		}

		if _, err := token.GetMint(txn, ins.Mint); err != nil {
			return err
		}
		buyer, err := token.GetAccount(txn, ins.BuyerTokenAccount)
		if err != nil {
			return err
		}
		if buyer.Mint != ins.Mint {
			return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, ins.BuyerTokenAccount, buyer.Mint)
		}
		if buyer.Owner != ins.BuyerPaymentAccount {
			return fmt.Errorf("%w: owner is %s", ErrBuyerNotOwner, buyer.Owner)
		}
		if buyer.Amount != 1 {
			return fmt.Errorf("%w: holds %d", ErrHoldingMismatch, buyer.Amount)
		}

		payerBefore, err := txn.Account(ins.BuyerPaymentAccount)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}

		// The escrow is its own authority.
		err = token.InitializeAccount(txn, ins.BuyerPaymentAccount, addrs.Escrow, ins.Mint, addrs.Escrow, signers)
		if err != nil {
			return creationError(err, ErrEscrowExists)
		}

		err = txn.CreateAccount(ins.BuyerPaymentAccount, addrs.Record, RecordSpace, p.programID, signers)
		if err != nil {
			return creationError(err, ErrRecordExists)
		}
		rec := &Record{
			BuyerTokenAccount:   ins.BuyerTokenAccount,
			BuyerPaymentAccount: ins.BuyerPaymentAccount,
			EscrowBump:          addrs.EscrowBump,
			RecordBump:          addrs.RecordBump,
		}
		recAcct, err := txn.Account(addrs.Record)
		if err != nil {
			return err
		}
		recAcct.Data = rec.Encode()
		if err := txn.SetAccount(addrs.Record, recAcct); err != nil {
			return err
		}

		err = token.Transfer(txn, ins.BuyerTokenAccount, addrs.Escrow, ins.BuyerPaymentAccount, 1, signers)
		if err != nil {
			return err
		}

		payerAfter, err := txn.Account(ins.BuyerPaymentAccount)
		if err != nil {
			return err
		}
		receipt = newReceipt(ins, now)
		receipt.RentPaid = payerBefore.Balance - payerAfter.Balance
		return appendJournal(kv, receipt)
	})
	if err != nil {
		return nil, p.reject(ins, err)
	}

	mintLog := klog.WithMint(receipt.Mint.String())
	mintLog.Info().
		Str("op", receipt.Op.String()).
		Str("record", receipt.Record.String()).
		Str("escrow", receipt.Escrow.String()).
		Str("payer", receipt.BuyerPaymentAccount.String()).
		Uint64("rent_paid", receipt.RentPaid).
		Msg("Redemption initialized")
	return receipt, nil
}

// Return gives the escrowed unit back to the buyer and closes the
// redemption.
func (p *Processor) Return(ctx context.Context, ins *Instruction) (*Receipt, error) {
	return p.resolve(ctx, ins, OpReturn)
}

// Burn destroys the escrowed unit and closes the redemption.
func (p *Processor) Burn(ctx context.Context, ins *Instruction) (*Receipt, error) {
	return p.resolve(ctx, ins, OpBurn)
}

func (p *Processor) resolve(ctx context.Context, ins *Instruction, op Op) (*Receipt, error) {
	_, signers, err := p.prepare(ins, op)
	if err != nil {
		return nil, p.reject(ins, err)
	}
	if !p.custodian.IsZero() && !signers.Has(p.custodian) {
		return nil, p.reject(ins, fmt.Errorf("%w: custodian %s", ErrMissingSignature, p.custodian))
	}

	now := p.now().Unix()
	var receipt *Receipt
	err = p.ledger.Update(ctx, func(txn *ledger.Txn) error {
		kv := txn.KV()
		if done, err := isResolved(kv, ins.Mint); err != nil {
			return err
		} else if done {
			return fmt.Errorf("%w: mint %s", ErrRedemptionResolved, ins.Mint)
		}

		rec, err := p.loadRecord(txn, ins.Record)
		if err != nil {
			return err
		}
		recordAddr, err := authority(p.programID, ins.Mint, RoleRedemption, rec.RecordBump)
		if err != nil {
			return err
		}
		if recordAddr != ins.Record {
			return fmt.Errorf("%w: record bump %d", ErrBumpMismatch, rec.RecordBump)
		}
		escrowAuth, err := authority(p.programID, ins.Mint, RoleEscrow, rec.EscrowBump)
		if err != nil {
			return err
		}
		if escrowAuth != ins.Escrow {
			return fmt.Errorf("%w: escrow bump %d", ErrBumpMismatch, rec.EscrowBump)
		}

		if rec.BuyerTokenAccount != ins.BuyerTokenAccount {
			return fmt.Errorf("%w: record has %s", ErrBuyerTokenAccountMismatch, rec.BuyerTokenAccount)
		}
		if rec.BuyerPaymentAccount != ins.BuyerPaymentAccount {
			return fmt.Errorf("%w: record has %s", ErrBuyerPaymentAccountMismatch, rec.BuyerPaymentAccount)
		}
		buyer, err := token.GetAccount(txn, ins.BuyerTokenAccount)
		if err != nil {
			return err
		}
		if buyer.Owner != ins.BuyerPaymentAccount {
			return fmt.Errorf("%w: owner is %s", ErrBuyerNotOwner, buyer.Owner)
		}
		if buyer.Mint != ins.Mint {
			return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, ins.BuyerTokenAccount, buyer.Mint)
		}

		escrow, err := token.GetAccount(txn, ins.Escrow)
		if errors.Is(err, token.ErrAccountNotFound) {
			return fmt.Errorf("%w: escrow %s missing", ErrEscrowBalance, ins.Escrow)
		}
		if err != nil {
			return err
		}
		if escrow.Amount != 1 {
			return fmt.Errorf("%w: holds %d", ErrEscrowBalance, escrow.Amount)
		}

		// Only the reconstructed escrow authority signs from here on.
		auth := ledger.NewSigners(escrowAuth)
		switch op {
		case OpReturn:
			err = token.Transfer(txn, ins.Escrow, ins.BuyerTokenAccount, escrowAuth, 1, auth)
		case OpBurn:
			err = token.Burn(txn, ins.Escrow, ins.Mint, escrowAuth, 1, auth)
		}
		if err != nil {
			return err
		}

		fromEscrow, err := token.CloseAccount(txn, ins.Escrow, ins.BuyerPaymentAccount, escrowAuth, auth)
		if err != nil {
			return err
		}
		fromRecord, err := txn.CloseAccount(ins.Record, ins.BuyerPaymentAccount)
		if err != nil {
			return err
		}

		receipt = newReceipt(ins, now)
		receipt.Reclaimed = fromEscrow + fromRecord
		if err := appendJournal(kv, receipt); err != nil {
			return err
		}
		return markResolved(kv, receipt)
	})
	if err != nil {
		return nil, p.reject(ins, err)
	}

	mintLog := klog.WithMint(receipt.Mint.String())
	mintLog.Info().
		Str("op", receipt.Op.String()).
		Str("record", receipt.Record.String()).
		Str("escrow", receipt.Escrow.String()).
		Str("payer", receipt.BuyerPaymentAccount.String()).
		Uint64("reclaimed", receipt.Reclaimed).
		Msg("Redemption resolved")
	return receipt, nil
}

// Record returns the active record of mint and its derived addresses.
func (p *Processor) Record(ctx context.Context, mint types.Address) (*Record, Addresses, error) {
	addrs, err := DeriveAddresses(p.programID, mint)
	if err != nil {
		return nil, Addresses{}, err
	}
	var rec *Record
	err = p.ledger.View(ctx, func(txn *ledger.Txn) error {
		r, err := p.loadRecord(txn, addrs.Record)
		rec = r
		return err
	})
	if err != nil {
		return nil, addrs, err
	}
	return rec, addrs, nil
}

// Status returns the lifecycle state of mint.
func (p *Processor) Status(ctx context.Context, mint types.Address) (State, error) {
	addrs, err := DeriveAddresses(p.programID, mint)
	if err != nil {
		return StateUninitialized, err
	}
	state := StateUninitialized
	err = p.ledger.View(ctx, func(txn *ledger.Txn) error {
		done, err := isResolved(txn.KV(), mint)
		if err != nil {
			return err
		}
		if done {
			state = StateTerminal
			return nil
		}
		_, err = p.loadRecord(txn, addrs.Record)
		switch {
		case err == nil:
			state = StateActive
		case errors.Is(err, ErrRecordNotFound):
		default:
			return err
		}
		return nil
	})
	return state, err
}

// History returns every committed transition of mint, oldest first.
func (p *Processor) History(ctx context.Context, mint types.Address) ([]Receipt, error) {
	var entries []Receipt
	err := p.ledger.View(ctx, func(txn *ledger.Txn) error {
		e, err := readJournal(txn.KV(), mint)
		entries = e
		return err
	})
	return entries, err
}

// loadRecord reads and decodes the record account at addr.
func (p *Processor) loadRecord(txn *ledger.Txn, addr types.Address) (*Record, error) {
	acct, err := txn.Account(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: record %s", ErrRecordNotFound, addr)
	}
	if err != nil {
		return nil, err
	}
	if acct.IsSystem() {
		return nil, fmt.Errorf("%w: record %s", ErrRecordNotFound, addr)
	}
	if acct.Owner != p.programID {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrInvalidRecord, addr, acct.Owner)
	}
	return DecodeRecord(acct.Data)
}

// recordFree fails if a record already occupies addr. A plain system
// balance sitting at the address does not count.
func recordFree(txn *ledger.Txn, addr types.Address) error {
	acct, err := txn.Account(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !acct.IsSystem() {
		return fmt.Errorf("%w: record %s", ErrRecordExists, addr)
	}
	return nil
}

// creationError tags account-creation failures with the protocol error
// the caller sees.
func creationError(err, exists error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountExists):
		return fmt.Errorf("%w: %w", exists, err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	default:
		return err
	}
}

func newReceipt(ins *Instruction, now int64) *Receipt {
	return &Receipt{
		Op:                  ins.Op,
		Mint:                ins.Mint,
		Record:              ins.Record,
		Escrow:              ins.Escrow,
		BuyerTokenAccount:   ins.BuyerTokenAccount,
		BuyerPaymentAccount: ins.BuyerPaymentAccount,
		Time:                now,
	}
}

// reject logs a failed attempt and returns err unchanged.
func (p *Processor) reject(ins *Instruction, err error) error {
	kind := KindOf(err)
	logger := klog.Redemption
	if ins != nil {
		logger = klog.WithMint(ins.Mint.String())
	}
	var ev *zerolog.Event
	switch kind {
	case KindInternal:
		ev = logger.Error()
	case KindAuthorization:
		ev = logger.Warn()
	default:
		ev = logger.Debug()
	}
	if ins != nil {
		ev = ev.Str("op", ins.Op.String())
	}
	ev.Str("kind", kind.String()).Err(err).Msg("Redemption rejected")
	return err
}
