package rpc

import (
	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000

	// Redemption failures, one code per error kind.
	CodeAuthorization     = -32010
	CodeResourceState     = -32011
	CodeResourceExhausted = -32012
	CodeConflict          = -32013
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData is the data member of a redemption failure.
type ErrorData struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// ── Param types ─────────────────────────────────────────────────────────

// MintParam is used by endpoints that take a single mint.
type MintParam struct {
	Mint string `json:"mint"`
}

// AddressParam is used by endpoints that take a single account address.
type AddressParam struct {
	Address string `json:"address"`
}

// InstructionParam carries a signed instruction.
type InstructionParam struct {
	Instruction *redemption.Instruction `json:"instruction"`
}

// ── Result types ────────────────────────────────────────────────────────

// NodeInfoResult is returned by node_getInfo.
type NodeInfoResult struct {
	ChainID        string `json:"chain_id"`
	ChainName      string `json:"chain_name"`
	ProgramID      string `json:"program_id"`
	TokenProgramID string `json:"token_program_id"`
	Custodian      string `json:"custodian,omitempty"`
	Version        string `json:"version"`
}

// DeriveResult is returned by redemption_deriveAddresses.
type DeriveResult struct {
	ProgramID string `json:"program_id"`
	redemption.Addresses
}

// RecordResult is returned by redemption_getRecord.
type RecordResult struct {
	Mint   types.Address      `json:"mint"`
	Record types.Address      `json:"record"`
	Escrow types.Address      `json:"escrow"`
	Data   *redemption.Record `json:"data"`
}

// StatusResult is returned by redemption_getStatus.
type StatusResult struct {
	Mint  types.Address    `json:"mint"`
	State redemption.State `json:"state"`
	// EscrowAmount is the escrow's token balance; zero unless Active.
	EscrowAmount uint64 `json:"escrow_amount"`
}

// HistoryResult is returned by redemption_getHistory.
type HistoryResult struct {
	Mint    types.Address        `json:"mint"`
	Entries []redemption.Receipt `json:"entries"`
}

// AccountResult is returned by ledger_getAccount.
type AccountResult struct {
	Address types.Address `json:"address"`
	Balance uint64        `json:"balance"`
	Owner   types.Address `json:"owner"`
	Space   int           `json:"space"`
	Exempt  bool          `json:"rent_exempt"`
}

// TokenAccountResult is returned by token_getAccount.
type TokenAccountResult struct {
	Address types.Address `json:"address"`
	Mint    types.Address `json:"mint"`
	Owner   types.Address `json:"owner"`
	Amount  uint64        `json:"amount"`
	State   string        `json:"state"`
}

// MintResult is returned by token_getMint.
type MintResult struct {
	Address   types.Address   `json:"address"`
	Authority types.Address   `json:"authority"`
	Supply    uint64          `json:"supply"`
	Decimals  uint8           `json:"decimals"`
	Metadata  *token.Metadata `json:"metadata,omitempty"`
}

// TokenListResult is returned by token_list.
type TokenListResult struct {
	Tokens []token.MetadataEntry `json:"tokens"`
}

func newAccountResult(addr types.Address, acct *ledger.Account, rent ledger.Rent) *AccountResult {
	return &AccountResult{
		Address: addr,
		Balance: acct.Balance,
		Owner:   acct.Owner,
		Space:   len(acct.Data),
		Exempt:  rent.IsExempt(acct.Balance, len(acct.Data)),
	}
}
