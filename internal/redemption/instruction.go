package redemption

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/pkg/crypto"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Op selects the operation an instruction requests.
type Op uint8

// Operations.
const (
	OpInitialize Op = iota + 1
	OpReturn
	OpBurn
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpInitialize:
		return "initialize"
	case OpReturn:
		return "return"
	case OpBurn:
		return "burn"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// MarshalText encodes the operation name.
func (o Op) MarshalText() ([]byte, error) {
	if o < OpInitialize || o > OpBurn {
		return nil, fmt.Errorf("%w: unknown op %d", ErrInvalidInstruction, uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText decodes an operation name.
func (o *Op) UnmarshalText(text []byte) error {
	op, err := ParseOp(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// ParseOp parses an operation name.
func ParseOp(s string) (Op, error) {
	switch s {
	case "initialize":
		return OpInitialize, nil
	case "return":
		return OpReturn, nil
	case "burn":
		return OpBurn, nil
	default:
		return 0, fmt.Errorf("%w: unknown op %q", ErrInvalidInstruction, s)
	}
}

// Signature is one signer's signature over an instruction's SigningHash.
type Signature struct {
	Signer    types.Address `json:"signer"`
	Signature []byte        `json:"signature"`
}

// Instruction is a request to run one operation for one mint. It names
// every account the operation touches so the processor can check each
// of them against the derivation and the stored record.
type Instruction struct {
	Op                  Op            `json:"op"`
	ProgramID           types.Address `json:"program_id"`
	Mint                types.Address `json:"mint"`
	Record              types.Address `json:"record"`
	Escrow              types.Address `json:"escrow"`
	BuyerTokenAccount   types.Address `json:"buyer_token_account"`
	BuyerPaymentAccount types.Address `json:"buyer_payment_account"`
	Signatures          []Signature   `json:"signatures,omitempty"`
}

var instructionDomain = []byte("klingnet-redemption/instruction/v1")

// SigningHash is the digest every signer signs. It commits to the
// program so that a signature is only valid for one deployment.
func (ins *Instruction) SigningHash() types.Hash {
	return crypto.HashParts(
		instructionDomain,
		ins.ProgramID[:],
		[]byte{byte(ins.Op)},
		ins.Mint[:],
		ins.Record[:],
		ins.Escrow[:],
		ins.BuyerTokenAccount[:],
		ins.BuyerPaymentAccount[:],
	)
}

// Sign adds key's signature, replacing an earlier one from the same key.
func (ins *Instruction) Sign(key *crypto.PrivateKey) error {
	h := ins.SigningHash()
	sig, err := key.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign instruction: %w", err)
	}
	signer := key.Address()
	for i := range ins.Signatures {
		if ins.Signatures[i].Signer == signer {
			ins.Signatures[i].Signature = sig
			return nil
		}
	}
	ins.Signatures = append(ins.Signatures, Signature{Signer: signer, Signature: sig})
	return nil
}

// Signers verifies every attached signature and returns the signer set.
// One bad signature rejects the whole instruction.
func (ins *Instruction) Signers() (ledger.Signers, error) {
	h := ins.SigningHash()
	signers := ledger.NewSigners()
	for _, s := range ins.Signatures {
		if !crypto.VerifyAddress(h[:], s.Signature, s.Signer) {
			return nil, fmt.Errorf("%w: signer %s", ErrInvalidSignature, s.Signer)
		}
		signers.Add(s.Signer)
	}
	return signers, nil
}

// NewInitialize builds an unsigned Initialize instruction. The buyer's
// payment account must sign it.
func NewInitialize(programID, mint, buyerTokenAccount, buyerPaymentAccount types.Address) (*Instruction, error) {
	return newInstruction(OpInitialize, programID, mint, buyerTokenAccount, buyerPaymentAccount)
}

// NewReturn builds an unsigned Return instruction.
func NewReturn(programID, mint, buyerTokenAccount, buyerPaymentAccount types.Address) (*Instruction, error) {
	return newInstruction(OpReturn, programID, mint, buyerTokenAccount, buyerPaymentAccount)
}

// NewBurn builds an unsigned Burn instruction.
func NewBurn(programID, mint, buyerTokenAccount, buyerPaymentAccount types.Address) (*Instruction, error) {
	return newInstruction(OpBurn, programID, mint, buyerTokenAccount, buyerPaymentAccount)
}

func newInstruction(op Op, programID, mint, bta, bpa types.Address) (*Instruction, error) {
	addrs, err := DeriveAddresses(programID, mint)
	if err != nil {
		return nil, err
	}
	return &Instruction{
		Op:                  op,
		ProgramID:           programID,
		Mint:                mint,
		Record:              addrs.Record,
		Escrow:              addrs.Escrow,
		BuyerTokenAccount:   bta,
		BuyerPaymentAccount: bpa,
	}, nil
}
