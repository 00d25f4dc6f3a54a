package gating

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flotob/curia-sub002/internal/chain"
	"github.com/flotob/curia-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	testToken  = "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
)

// balances maps "method" or contract address to a hex word the fake
// node returns.
type fakeNode struct {
	nativeBalance string
	tokenBalances map[string]string
}

func (f *fakeNode) serve(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result string
		switch req.Method {
		case "eth_getBalance":
			result = f.nativeBalance
		case "eth_call":
			var call map[string]string
			require.NoError(t, json.Unmarshal(req.Params[0], &call))
			result = f.tokenBalances[call["to"]]
		}
		if result == "" {
			result = "0x0"
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%q}`, req.ID, result)
	}))
}

func ethCategory(fulfillment string, reqs ...models.GatingRequirement) *models.GatingCategory {
	return &models.GatingCategory{
		Type:         models.CategoryEthereumProfile,
		Enabled:      true,
		Fulfillment:  fulfillment,
		Requirements: reqs,
	}
}

func TestEvaluateCategory_NativeBalance(t *testing.T) {
	node := &fakeNode{nativeBalance: "0xde0b6b3a7640000"} // 1 ETH
	srv := node.serve(t)
	defer srv.Close()

	e := NewEvaluator(chain.NewClient("ethereum", srv.URL), nil)

	category := ethCategory("", models.GatingRequirement{
		Type:      models.RequirementNativeBalance,
		MinAmount: "500000000000000000", // 0.5 ETH
	})

	result, err := e.EvaluateCategory(context.Background(), category, testWallet)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	require.Len(t, result.Checks, 1)
	assert.Equal(t, "1000000000000000000", result.Checks[0].Actual)

	// Raise the bar past the balance
	category.Requirements[0].MinAmount = "2000000000000000000"
	result, err = e.EvaluateCategory(context.Background(), category, testWallet)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, 1, result.FailedChecks())
}

func TestEvaluateCategory_FulfillmentAny(t *testing.T) {
	node := &fakeNode{
		nativeBalance: "0x0",
		tokenBalances: map[string]string{testToken: "0x5"},
	}
	srv := node.serve(t)
	defer srv.Close()

	e := NewEvaluator(chain.NewClient("ethereum", srv.URL), nil)

	category := ethCategory(models.FulfillmentAny,
		models.GatingRequirement{Type: models.RequirementNativeBalance, MinAmount: "1"},
		models.GatingRequirement{Type: models.RequirementERC20Balance, ContractAddress: testToken, MinAmount: "5"},
	)

	result, err := e.EvaluateCategory(context.Background(), category, testWallet)
	require.NoError(t, err)
	assert.True(t, result.Verified, "one passing requirement satisfies any")
	assert.Equal(t, 1, result.FailedChecks())
}

func TestEvaluateCategory_FulfillmentAllFails(t *testing.T) {
	node := &fakeNode{
		nativeBalance: "0xde0b6b3a7640000",
		tokenBalances: map[string]string{testToken: "0x0"},
	}
	srv := node.serve(t)
	defer srv.Close()

	e := NewEvaluator(chain.NewClient("ethereum", srv.URL), nil)

	category := ethCategory(models.FulfillmentAll,
		models.GatingRequirement{Type: models.RequirementNativeBalance, MinAmount: "1"},
		models.GatingRequirement{Type: models.RequirementERC721Owner, ContractAddress: testToken},
	)

	result, err := e.EvaluateCategory(context.Background(), category, testWallet)
	require.NoError(t, err)
	assert.False(t, result.Verified)

	// Ownership requirements default to one token
	assert.Equal(t, "1", result.Checks[1].Required)
}

func TestEvaluateCategory_ChainDisabled(t *testing.T) {
	e := NewEvaluator(nil, nil)

	category := ethCategory("", models.GatingRequirement{
		Type:      models.RequirementNativeBalance,
		MinAmount: "1",
	})

	_, err := e.EvaluateCategory(context.Background(), category, testWallet)
	assert.ErrorIs(t, err, ErrChainDisabled)
}

func TestEvaluateCategory_TransportFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := NewEvaluator(chain.NewClient("ethereum", srv.URL), nil)
	category := ethCategory("", models.GatingRequirement{
		Type:      models.RequirementNativeBalance,
		MinAmount: "1",
	})

	_, err := e.EvaluateCategory(context.Background(), category, testWallet)
	require.Error(t, err)
	assert.True(t, chain.IsUnavailable(err))
}

func TestEvaluateCategory_ERC1155UsesTokenID(t *testing.T) {
	var seenData string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			ID     int               `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var call map[string]string
		require.NoError(t, json.Unmarshal(req.Params[0], &call))
		seenData = call["data"]
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":"0x2"}`, req.ID)
	}))
	defer srv.Close()

	e := NewEvaluator(chain.NewClient("ethereum", srv.URL), nil)
	category := ethCategory("", models.GatingRequirement{
		Type:            models.RequirementERC1155Balance,
		ContractAddress: testToken,
		MinAmount:       "2",
		TokenID:         "42",
	})

	result, err := e.EvaluateCategory(context.Background(), category, testWallet)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	// balanceOf(address,uint256) carries holder then token ID 0x2a
	assert.True(t, strings.HasSuffix(seenData, "2a"))
}

func TestResolveDuration(t *testing.T) {
	lock := &models.Lock{GatingConfig: &models.GatingConfig{}}

	assert.Equal(t, models.DefaultVerificationDuration, ResolveDuration(nil, lock))

	lock.GatingConfig.VerificationDuration = 2
	assert.Equal(t, 2*time.Hour, ResolveDuration(nil, lock))

	boardGating := &models.LockGating{VerificationDuration: 8}
	assert.Equal(t, 8*time.Hour, ResolveDuration(boardGating, lock))
}
