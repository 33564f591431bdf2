// Package rpcclient provides a JSON-RPC 2.0 client for redemption nodes.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpc"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 10*time.Second)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      string      `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    *rpc.ErrorData `json:"data,omitempty"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
	// Kind and Reason are set for failed redemption operations.
	Kind   string
	Reason string
}

func (e *RPCError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("rpc error %d (%s): %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// KindOf returns the redemption error kind carried by err, or "" if err
// is not a redemption failure reported by the server.
func KindOf(err error) string {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return ""
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call bound to ctx.
func (c *Client) CallContext(ctx context.Context, method string, params, result interface{}) error {
	id := uuid.NewString()
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("http request: %s", resp.Status)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if rpcResp.Error != nil {
		e := &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
		if d := rpcResp.Error.Data; d != nil {
			e.Kind = d.Kind
			e.Reason = d.Reason
		}
		return e
	}
	if rpcResp.ID != id {
		return fmt.Errorf("response id %q does not match request id %q", rpcResp.ID, id)
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}

	return nil
}

// NodeInfo returns the node's ledger and program identity.
func (c *Client) NodeInfo(ctx context.Context) (*rpc.NodeInfoResult, error) {
	var res rpc.NodeInfoResult
	if err := c.CallContext(ctx, "node_getInfo", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit executes a signed instruction. The method is chosen by its op.
func (c *Client) Submit(ctx context.Context, ins *redemption.Instruction) (*redemption.Receipt, error) {
	var method string
	switch ins.Op {
	case redemption.OpInitialize:
		method = "redemption_initialize"
	case redemption.OpReturn:
		method = "redemption_return"
	case redemption.OpBurn:
		method = "redemption_burn"
	default:
		return nil, fmt.Errorf("unknown op %s", ins.Op)
	}
	var receipt redemption.Receipt
	if err := c.CallContext(ctx, method, rpc.InstructionParam{Instruction: ins}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// DeriveAddresses returns the escrow and record addresses of mint.
func (c *Client) DeriveAddresses(ctx context.Context, mint types.Address) (*rpc.DeriveResult, error) {
	var res rpc.DeriveResult
	if err := c.CallContext(ctx, "redemption_deriveAddresses", mintParam(mint), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Record returns the active redemption record of mint.
func (c *Client) Record(ctx context.Context, mint types.Address) (*rpc.RecordResult, error) {
	var res rpc.RecordResult
	if err := c.CallContext(ctx, "redemption_getRecord", mintParam(mint), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Status returns the lifecycle state of mint.
func (c *Client) Status(ctx context.Context, mint types.Address) (*rpc.StatusResult, error) {
	var res rpc.StatusResult
	if err := c.CallContext(ctx, "redemption_getStatus", mintParam(mint), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// History returns every committed transition of mint.
func (c *Client) History(ctx context.Context, mint types.Address) ([]redemption.Receipt, error) {
	var res rpc.HistoryResult
	if err := c.CallContext(ctx, "redemption_getHistory", mintParam(mint), &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// Account returns a ledger account.
func (c *Client) Account(ctx context.Context, addr types.Address) (*rpc.AccountResult, error) {
	var res rpc.AccountResult
	if err := c.CallContext(ctx, "ledger_getAccount", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TokenAccount returns a token account.
func (c *Client) TokenAccount(ctx context.Context, addr types.Address) (*rpc.TokenAccountResult, error) {
	var res rpc.TokenAccountResult
	if err := c.CallContext(ctx, "token_getAccount", rpc.AddressParam{Address: addr.String()}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Mint returns a mint and its metadata.
func (c *Client) Mint(ctx context.Context, mint types.Address) (*rpc.MintResult, error) {
	var res rpc.MintResult
	if err := c.CallContext(ctx, "token_getMint", mintParam(mint), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Tokens lists mint metadata known to the node.
func (c *Client) Tokens(ctx context.Context) (*rpc.TokenListResult, error) {
	var res rpc.TokenListResult
	if err := c.CallContext(ctx, "token_list", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func mintParam(mint types.Address) rpc.MintParam {
	return rpc.MintParam{Mint: mint.String()}
}
