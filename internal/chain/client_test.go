package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC runs an httptest server that answers JSON-RPC calls through
// the given handler. The handler gets the method and raw params and
// returns either a result value or an RPC error.
func fakeRPC(t *testing.T, handle func(method string, params []json.RawMessage) (any, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handle(req.Method, req.Params)
		w.Header().Set("Content-Type", "application/json")
		if rpcErr != nil {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%q}}`,
				req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		payload, err := json.Marshal(result)
		require.NoError(t, err)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, payload)
	}))
}

func TestSelector_KnownValues(t *testing.T) {
	// Published selectors for the standard token functions. If these
	// drift the Keccak implementation is broken.
	assert.Equal(t, "0x70a08231", selector("balanceOf(address)"))
	assert.Equal(t, "0x00fdd58e", selector("balanceOf(address,uint256)"))
	assert.Equal(t, "0x01ffc9a7", selector("supportsInterface(bytes4)"))
	assert.Equal(t, "0x1626ba7e", selector("isValidSignature(bytes32,bytes)"))
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := NormalizeAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
	require.NoError(t, err)
	assert.Equal(t, "0xab5801a7d398351b8be11c439e05c5b3259aec9b", addr)

	for _, bad := range []string{"", "0x123", "ab5801a7d398351b8be11c439e05c5b3259aec9b", "0xZZ5801a7d398351b8be11c439e05c5b3259aec9b"} {
		_, err := NormalizeAddress(bad)
		assert.Error(t, err, "address %q should be rejected", bad)
	}
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0x0", 0},
		{"0x", 0},
		{"", 0},
		{"0x1b3", 435},
		{"0xde0b6b3a7640000", 1_000_000_000_000_000_000},
	}
	for _, tc := range cases {
		got, err := parseQuantity(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.Int64(), tc.in)
	}

	_, err := parseQuantity("0xnothex")
	assert.Error(t, err)
}

func TestPackBytes(t *testing.T) {
	sig := []byte{0xde, 0xad, 0xbe, 0xef}
	head, tail := packBytes(sig, 64)

	// Head is the tail offset (0x40), tail is length then data padded
	// to a word boundary.
	assert.Equal(t, padBig(big.NewInt(64)), head)
	assert.True(t, strings.HasPrefix(tail, padBig(big.NewInt(4))))
	assert.Contains(t, tail, "deadbeef")
	assert.Equal(t, 0, len(tail)%64)
}

func TestBalanceAt(t *testing.T) {
	holder := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		assert.Equal(t, "eth_getBalance", method)
		var addr string
		require.NoError(t, json.Unmarshal(params[0], &addr))
		assert.Equal(t, holder, addr)
		return "0xde0b6b3a7640000", nil
	})
	defer srv.Close()

	c := NewClient("ethereum", srv.URL)
	balance, err := c.BalanceAt(context.Background(), holder)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())
}

func TestTokenBalance_EncodesCall(t *testing.T) {
	token := "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
	holder := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"

	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		assert.Equal(t, "eth_call", method)
		var call map[string]string
		require.NoError(t, json.Unmarshal(params[0], &call))
		assert.Equal(t, token, call["to"])
		assert.Equal(t, selBalanceOf+padAddress(holder), call["data"])
		return "0x0000000000000000000000000000000000000000000000000000000000000007", nil
	})
	defer srv.Close()

	c := NewClient("ethereum", srv.URL)
	balance, err := c.TokenBalance(context.Background(), token, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance.Int64())
}

func TestTokenBalanceOfID(t *testing.T) {
	token := "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
	holder := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"

	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		var call map[string]string
		require.NoError(t, json.Unmarshal(params[0], &call))
		assert.Equal(t, selBalanceOfID+padAddress(holder)+padBig(big.NewInt(42)), call["data"])
		return "0x1", nil
	})
	defer srv.Close()

	c := NewClient("ethereum", srv.URL)
	balance, err := c.TokenBalanceOfID(context.Background(), token, holder, big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.Int64())
}

func TestSupportsInterface(t *testing.T) {
	contract := "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"

	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		var call map[string]string
		require.NoError(t, json.Unmarshal(params[0], &call))
		if strings.Contains(call["data"], strings.TrimPrefix(InterfaceERC721, "0x")) {
			return "0x0000000000000000000000000000000000000000000000000000000000000001", nil
		}
		return "0x0000000000000000000000000000000000000000000000000000000000000000", nil
	})
	defer srv.Close()

	c := NewClient("ethereum", srv.URL)

	ok, err := c.SupportsInterface(context.Background(), contract, InterfaceERC721)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SupportsInterface(context.Background(), contract, InterfaceERC1155)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSupportsInterface_RevertMeansNo(t *testing.T) {
	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: 3, Message: "execution reverted"}
	})
	defer srv.Close()

	c := NewClient("ethereum", srv.URL)
	ok, err := c.SupportsInterface(context.Background(), "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", InterfaceERC721)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectTokenStandard(t *testing.T) {
	contract := "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		var call map[string]string
		require.NoError(t, json.Unmarshal(params[0], &call))
		// Only the legacy LSP8 probe answers yes.
		if strings.Contains(call["data"], strings.TrimPrefix(InterfaceLSP8Legacy, "0x")) {
			return "0x0000000000000000000000000000000000000000000000000000000000000001", nil
		}
		return "0x0000000000000000000000000000000000000000000000000000000000000000", nil
	})
	defer srv.Close()

	c := NewClient("lukso", srv.URL)
	standard, err := c.DetectTokenStandard(context.Background(), contract)
	require.NoError(t, err)
	assert.Equal(t, StandardLSP8, standard)
}

func TestValidSignature(t *testing.T) {
	account := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	var hash [32]byte
	copy(hash[:], []byte("curia-challenge-hash-abcdefghijk"))

	magic := true
	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		if magic {
			return "0x1626ba7e00000000000000000000000000000000000000000000000000000000", nil
		}
		return "0xffffffff00000000000000000000000000000000000000000000000000000000", nil
	})
	defer srv.Close()

	c := NewClient("lukso", srv.URL)

	ok, err := c.ValidSignature(context.Background(), account, hash, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.True(t, ok)

	magic = false
	ok, err = c.ValidSignature(context.Background(), account, hash, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCall_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient("ethereum", srv.URL)
	_, err := c.BalanceAt(context.Background(), "0xab5801a7d398351b8be11c439e05c5b3259aec9b")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestCall_RPCErrorSurfaces(t *testing.T) {
	srv := fakeRPC(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	defer srv.Close()

	c := NewClient("ethereum", srv.URL)
	_, err := c.Call(context.Background(), "eth_bogus")
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(-32601), rpcErr.Code)
	assert.False(t, IsUnavailable(err))
	assert.False(t, IsRevert(err))
}
