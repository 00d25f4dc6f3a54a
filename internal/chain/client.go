// Package chain provides raw EVM JSON-RPC access for token gating
// checks. Both gating chains (Ethereum mainnet and LUKSO) speak the
// same protocol, so one client type serves both.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/tidwall/gjson"
)

// ErrUnavailable wraps transport-level failures reaching the RPC
// endpoint. Callers map it to an upstream error instead of treating it
// as "requirements not met".
var ErrUnavailable = errors.New("rpc endpoint unavailable")

// Client is a minimal JSON-RPC client for one EVM chain.
type Client struct {
	name       string
	rpcURL     string
	httpClient *http.Client
}

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// RPCError is a JSON-RPC error reply.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsRevert reports whether err is an eth_call execution revert, which
// for interface probes means "no" rather than a failure.
func IsRevert(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == 3 || rpcErr.Code == -32000
}

// IsUnavailable reports whether err means the endpoint could not be
// reached at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// NewClient creates a client for the named chain. name shows up in
// traces and error messages ("ethereum", "lukso").
func NewClient(name, rpcURL string) *Client {
	return &Client{
		name:   name,
		rpcURL: rpcURL,
		httpClient: telemetry.NewInstrumentedHTTPClient(telemetry.HTTPClientConfig{
			ServiceName: name + "-rpc",
			Timeout:     15 * time.Second,
		}),
	}
}

// Name returns the chain name this client was created with.
func (c *Client) Name() string {
	return c.name
}

// Call makes a JSON-RPC call and returns the parsed result field.
func (c *Client) Call(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}

	ctx, span := telemetry.TraceExternalCall(ctx, telemetry.ExternalServiceCallAttrs{
		Service:   c.name + "-rpc",
		Operation: method,
	})
	defer span.End()

	req := RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrUnavailable, err)
		telemetry.RecordExternalCallError(span, wrapped, 0, true)
		return gjson.Result{}, wrapped
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		telemetry.RecordExternalCallError(span, wrapped, resp.StatusCode, true)
		return gjson.Result{}, wrapped
	}
	if resp.StatusCode >= 500 {
		wrapped := fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		telemetry.RecordExternalCallError(span, wrapped, resp.StatusCode, true)
		return gjson.Result{}, wrapped
	}

	if rpcErr := gjson.GetBytes(respBody, "error"); rpcErr.Exists() {
		callErr := &RPCError{
			Code:    rpcErr.Get("code").Int(),
			Message: rpcErr.Get("message").String(),
		}
		telemetry.RecordExternalCallError(span, callErr, resp.StatusCode, false)
		return gjson.Result{}, callErr
	}

	telemetry.RecordExternalCallSuccess(span, resp.StatusCode, int64(len(respBody)))
	return gjson.GetBytes(respBody, "result"), nil
}

// BalanceAt returns the native-token balance of an address in wei.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	result, err := c.Call(ctx, "eth_getBalance", addr, "latest")
	if err != nil {
		return nil, err
	}
	return parseQuantity(result.String())
}

// CallContract performs a read-only eth_call against a contract and
// returns the raw hex return data.
func (c *Client) CallContract(ctx context.Context, to, data string) (string, error) {
	addr, err := NormalizeAddress(to)
	if err != nil {
		return "", err
	}

	result, err := c.Call(ctx, "eth_call", map[string]string{"to": addr, "data": data}, "latest")
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// ChainID returns the chain ID the endpoint reports. Used by the
// startup validator to catch swapped RPC URLs.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	result, err := c.Call(ctx, "eth_chainId")
	if err != nil {
		return nil, err
	}
	return parseQuantity(result.String())
}
