package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// ── Node endpoints ──────────────────────────────────────────────────────

func (s *Server) handleNodeGetInfo(_ context.Context, _ *Request) (interface{}, *Error) {
	res := &NodeInfoResult{
		ProgramID:      s.proc.ProgramID().String(),
		TokenProgramID: token.ProgramID.String(),
		Version:        config.Version,
	}
	if s.genesis != nil {
		res.ChainID = s.genesis.ChainID
		res.ChainName = s.genesis.ChainName
	}
	if c := s.proc.Custodian(); !c.IsZero() {
		res.Custodian = c.String()
	}
	return res, nil
}

// ── Redemption endpoints ────────────────────────────────────────────────

func (s *Server) handleExecute(ctx context.Context, req *Request, op redemption.Op) (interface{}, *Error) {
	var params InstructionParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Instruction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "instruction is required"}
	}
	if params.Instruction.Op != op {
		return nil, &Error{Code: CodeInvalidParams,
			Message: fmt.Sprintf("instruction op %s does not match method %s", params.Instruction.Op, req.Method)}
	}

	receipt, err := s.proc.Execute(ctx, params.Instruction)
	if err != nil {
		return nil, redemptionError(err)
	}
	return receipt, nil
}

func (s *Server) handleGetRecord(ctx context.Context, req *Request) (interface{}, *Error) {
	mint, rpcErr := mintParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, addrs, err := s.proc.Record(ctx, mint)
	if errors.Is(err, redemption.ErrRecordNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: err.Error(),
			Data: ErrorData{Kind: redemption.KindResourceState.String(), Reason: err.Error()}}
	}
	if err != nil {
		return nil, redemptionError(err)
	}
	return &RecordResult{
		Mint:   mint,
		Record: addrs.Record,
		Escrow: addrs.Escrow,
		Data:   rec,
	}, nil
}

func (s *Server) handleGetStatus(ctx context.Context, req *Request) (interface{}, *Error) {
	mint, rpcErr := mintParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	state, err := s.proc.Status(ctx, mint)
	if err != nil {
		return nil, redemptionError(err)
	}
	res := &StatusResult{Mint: mint, State: state}
	if state != redemption.StateActive {
		return res, nil
	}

	escrow, _, err := redemption.EscrowAddress(s.proc.ProgramID(), mint)
	if err != nil {
		return nil, redemptionError(err)
	}
	err = s.proc.Ledger().View(ctx, func(txn *ledger.Txn) error {
		a, err := token.GetAccount(txn, escrow)
		if err != nil {
			return err
		}
		res.EscrowAmount = a.Amount
		return nil
	})
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("escrow %s: %v", escrow, err)}
	}
	return res, nil
}

func (s *Server) handleGetHistory(ctx context.Context, req *Request) (interface{}, *Error) {
	mint, rpcErr := mintParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	entries, err := s.proc.History(ctx, mint)
	if err != nil {
		return nil, redemptionError(err)
	}
	if entries == nil {
		entries = []redemption.Receipt{}
	}
	return &HistoryResult{Mint: mint, Entries: entries}, nil
}

func (s *Server) handleDeriveAddresses(_ context.Context, req *Request) (interface{}, *Error) {
	mint, rpcErr := mintParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addrs, err := redemption.DeriveAddresses(s.proc.ProgramID(), mint)
	if err != nil {
		return nil, redemptionError(err)
	}
	return &DeriveResult{ProgramID: s.proc.ProgramID().String(), Addresses: addrs}, nil
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetAccount(ctx context.Context, req *Request) (interface{}, *Error) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acct, err := s.proc.Ledger().Account(ctx, addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("account %s not found", addr)}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return newAccountResult(addr, acct, s.proc.Ledger().Rent()), nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGetAccount(ctx context.Context, req *Request) (interface{}, *Error) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var res *TokenAccountResult
	err := s.proc.Ledger().View(ctx, func(txn *ledger.Txn) error {
		a, err := token.GetAccount(txn, addr)
		if err != nil {
			return err
		}
		res = &TokenAccountResult{
			Address: addr,
			Mint:    a.Mint,
			Owner:   a.Owner,
			Amount:  a.Amount,
			State:   a.State.String(),
		}
		return nil
	})
	if err != nil {
		return nil, tokenError(err)
	}
	return res, nil
}

func (s *Server) handleTokenGetMint(ctx context.Context, req *Request) (interface{}, *Error) {
	mint, rpcErr := mintParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var res *MintResult
	err := s.proc.Ledger().View(ctx, func(txn *ledger.Txn) error {
		m, err := token.GetMint(txn, mint)
		if err != nil {
			return err
		}
		res = &MintResult{
			Address:   mint,
			Authority: m.Authority,
			Supply:    m.Supply,
			Decimals:  m.Decimals,
		}
		return nil
	})
	if err != nil {
		return nil, tokenError(err)
	}

	if s.tokenStore != nil {
		meta, err := s.tokenStore.Get(mint)
		switch {
		case err == nil:
			res.Metadata = meta
		case errors.Is(err, storage.ErrNotFound):
		default:
			s.logger.Warn().Err(err).Str("mint", mint.String()).Msg("Failed to read mint metadata")
		}
	}
	return res, nil
}

func (s *Server) handleTokenList(_ context.Context, _ *Request) (interface{}, *Error) {
	if s.tokenStore == nil {
		return nil, &Error{Code: CodeNotFound, Message: "token metadata not available"}
	}
	entries, err := s.tokenStore.List()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &TokenListResult{Tokens: entries}, nil
}

// ── Helpers ─────────────────────────────────────────────────────────────

func mintParam(req *Request) (types.Address, *Error) {
	var params MintParam
	if err := parseParams(req, &params); err != nil {
		return types.Address{}, err
	}
	if params.Mint == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "mint is required"}
	}
	mint, err := types.ParseAddress(params.Mint)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid mint: %v", err)}
	}
	return mint, nil
}

func addressParam(req *Request) (types.Address, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return types.Address{}, err
	}
	if params.Address == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	addr, err := types.ParseAddress(params.Address)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid address: %v", err)}
	}
	return addr, nil
}

// redemptionError maps a failed operation to an error code by kind.
func redemptionError(err error) *Error {
	kind := redemption.KindOf(err)
	code := CodeInternalError
	switch kind {
	case redemption.KindAuthorization:
		code = CodeAuthorization
	case redemption.KindResourceState:
		code = CodeResourceState
	case redemption.KindResourceExhausted:
		code = CodeResourceExhausted
	case redemption.KindConflict:
		code = CodeConflict
	}
	return &Error{
		Code:    code,
		Message: err.Error(),
		Data:    ErrorData{Kind: kind.String(), Reason: err.Error()},
	}
}

func tokenError(err error) *Error {
	if errors.Is(err, token.ErrAccountNotFound) || errors.Is(err, token.ErrMintNotFound) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	if errors.Is(err, token.ErrNotTokenProgram) || errors.Is(err, token.ErrInvalidData) ||
		errors.Is(err, token.ErrUninitialized) {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
