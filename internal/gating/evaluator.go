// Package gating evaluates lock requirements against the chain and
// manages the pre-verification records that unlock gated boards and
// posts.
package gating

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/flotob/curia-sub002/internal/chain"
	"github.com/flotob/curia-sub002/internal/models"
)

var (
	// ErrChainDisabled means no RPC endpoint is configured for the
	// requested category. Handlers map it to 503.
	ErrChainDisabled = errors.New("no rpc endpoint configured for this category")

	// ErrCategoryNotConfigured means the lock does not gate on the
	// requested category at all.
	ErrCategoryNotConfigured = errors.New("lock has no enabled category of this type")
)

// RequirementResult is the outcome of one on-chain check.
type RequirementResult struct {
	Type      string `json:"type"`
	Contract  string `json:"contract_address,omitempty"`
	Required  string `json:"required,omitempty"`
	Actual    string `json:"actual,omitempty"`
	Satisfied bool   `json:"satisfied"`
	Detail    string `json:"detail,omitempty"`
}

// CategoryResult aggregates a category's requirement checks.
type CategoryResult struct {
	Category    string              `json:"category"`
	Fulfillment string              `json:"fulfillment"`
	Verified    bool                `json:"verified"`
	Checks      []RequirementResult `json:"checks"`
}

// FailedChecks counts requirements that did not pass.
func (r *CategoryResult) FailedChecks() int {
	failed := 0
	for _, c := range r.Checks {
		if !c.Satisfied {
			failed++
		}
	}
	return failed
}

// Evaluator runs gating requirements against the right chain per
// category. A nil client disables that category's chain.
type Evaluator struct {
	clients map[string]*chain.Client
}

// NewEvaluator wires the two gating chains. Either client may be nil.
func NewEvaluator(eth, lukso *chain.Client) *Evaluator {
	clients := make(map[string]*chain.Client)
	if eth != nil {
		clients[models.CategoryEthereumProfile] = eth
	}
	if lukso != nil {
		clients[models.CategoryUniversalProfile] = lukso
	}
	return &Evaluator{clients: clients}
}

// ClientFor returns the chain client serving a category.
func (e *Evaluator) ClientFor(categoryType string) (*chain.Client, error) {
	c, ok := e.clients[categoryType]
	if !ok {
		return nil, ErrChainDisabled
	}
	return c, nil
}

// EvaluateCategory checks every requirement of a category against the
// wallet and aggregates per the category's fulfillment mode. Transport
// failures abort the evaluation; an individual reverted call counts as
// an unsatisfied requirement (bad contract, not a broken endpoint).
func (e *Evaluator) EvaluateCategory(ctx context.Context, category *models.GatingCategory, wallet string) (*CategoryResult, error) {
	client, err := e.ClientFor(category.Type)
	if err != nil {
		return nil, err
	}

	fulfillment := models.FulfillmentAll
	if category.FulfillsAny() {
		fulfillment = models.FulfillmentAny
	}

	result := &CategoryResult{
		Category:    category.Type,
		Fulfillment: fulfillment,
		Checks:      make([]RequirementResult, 0, len(category.Requirements)),
	}

	passed := 0
	for i := range category.Requirements {
		check, err := e.evaluateRequirement(ctx, client, &category.Requirements[i], wallet)
		if err != nil {
			return nil, err
		}
		result.Checks = append(result.Checks, check)
		if check.Satisfied {
			passed++
		}
	}

	if category.FulfillsAny() {
		result.Verified = passed > 0
	} else {
		result.Verified = passed == len(result.Checks)
	}
	return result, nil
}

func (e *Evaluator) evaluateRequirement(ctx context.Context, client *chain.Client, req *models.GatingRequirement, wallet string) (RequirementResult, error) {
	out := RequirementResult{
		Type:     req.Type,
		Contract: req.ContractAddress,
	}

	minAmount, err := requiredAmount(req)
	if err != nil {
		return out, err
	}
	out.Required = minAmount.String()

	var actual *big.Int
	switch req.Type {
	case models.RequirementNativeBalance:
		actual, err = client.BalanceAt(ctx, wallet)

	case models.RequirementERC20Balance, models.RequirementLSP7Balance,
		models.RequirementERC721Owner, models.RequirementLSP8Owner:
		actual, err = client.TokenBalance(ctx, req.ContractAddress, wallet)

	case models.RequirementERC1155Balance:
		var tokenID *big.Int
		tokenID, err = parseTokenID(req.TokenID)
		if err != nil {
			return out, err
		}
		actual, err = client.TokenBalanceOfID(ctx, req.ContractAddress, wallet, tokenID)

	default:
		return out, fmt.Errorf("unknown requirement type %q", req.Type)
	}

	if err != nil {
		if chain.IsRevert(err) {
			out.Detail = "contract call reverted"
			return out, nil
		}
		return out, err
	}

	out.Actual = actual.String()
	out.Satisfied = actual.Cmp(minAmount) >= 0
	return out, nil
}

// requiredAmount resolves the minimum balance a requirement asks for.
// Ownership requirements default to one token.
func requiredAmount(req *models.GatingRequirement) (*big.Int, error) {
	raw := req.MinAmount
	if raw == "" {
		switch req.Type {
		case models.RequirementERC721Owner, models.RequirementLSP8Owner:
			return big.NewInt(1), nil
		}
		return nil, fmt.Errorf("%s requirement has no min_amount", req.Type)
	}

	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("malformed min_amount %q", raw)
	}
	return n, nil
}

func parseTokenID(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("malformed token_id %q", raw)
	}
	return n, nil
}
