package chain

import (
	"context"
	"math/big"
)

// ERC-165 interface IDs for the token standards gating supports. LSP
// IDs changed between lsp-smart-contracts releases, so detection
// probes both the current and the legacy value.
const (
	InterfaceERC721     = "0x80ac58cd"
	InterfaceERC1155    = "0xd9b67a26"
	InterfaceLSP7       = "0xc52d6008"
	InterfaceLSP7Legacy = "0xb3c4928f"
	InterfaceLSP8       = "0x3a271706"
	InterfaceLSP8Legacy = "0x49399145"
)

// erc1271Magic is the return value a contract account produces from
// isValidSignature when the signature checks out.
const erc1271Magic = "0x1626ba7e"

// TokenStandard labels what a contract claims to implement.
type TokenStandard string

const (
	StandardERC721  TokenStandard = "erc721"
	StandardERC1155 TokenStandard = "erc1155"
	StandardLSP7    TokenStandard = "lsp7"
	StandardLSP8    TokenStandard = "lsp8"
	StandardUnknown TokenStandard = "unknown"
)

// TokenBalance reads balanceOf(holder) on a token contract. The same
// call shape covers ERC-20, ERC-721, LSP7 and LSP8 balances.
func (c *Client) TokenBalance(ctx context.Context, token, holder string) (*big.Int, error) {
	addr, err := NormalizeAddress(holder)
	if err != nil {
		return nil, err
	}

	data := selBalanceOf + padAddress(addr)
	ret, err := c.CallContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return parseWord(ret)
}

// TokenBalanceOfID reads balanceOf(holder, id) for ERC-1155 tokens.
func (c *Client) TokenBalanceOfID(ctx context.Context, token, holder string, id *big.Int) (*big.Int, error) {
	addr, err := NormalizeAddress(holder)
	if err != nil {
		return nil, err
	}

	data := selBalanceOfID + padAddress(addr) + padBig(id)
	ret, err := c.CallContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	return parseWord(ret)
}

// SupportsInterface probes a contract with ERC-165. Contracts without
// ERC-165 revert on the probe, which counts as "no".
func (c *Client) SupportsInterface(ctx context.Context, contract, interfaceID string) (bool, error) {
	data := selSupportsInterface + padBytes4(interfaceID)
	ret, err := c.CallContract(ctx, contract, data)
	if err != nil {
		if IsRevert(err) {
			return false, nil
		}
		return false, err
	}
	return parseBool(ret)
}

// DetectTokenStandard classifies a contract by probing the interface
// IDs gating cares about. Returns StandardUnknown when nothing matches.
func (c *Client) DetectTokenStandard(ctx context.Context, contract string) (TokenStandard, error) {
	probes := []struct {
		standard TokenStandard
		ids      []string
	}{
		{StandardLSP7, []string{InterfaceLSP7, InterfaceLSP7Legacy}},
		{StandardLSP8, []string{InterfaceLSP8, InterfaceLSP8Legacy}},
		{StandardERC721, []string{InterfaceERC721}},
		{StandardERC1155, []string{InterfaceERC1155}},
	}

	for _, probe := range probes {
		for _, id := range probe.ids {
			ok, err := c.SupportsInterface(ctx, contract, id)
			if err != nil {
				return StandardUnknown, err
			}
			if ok {
				return probe.standard, nil
			}
		}
	}
	return StandardUnknown, nil
}

// ValidSignature checks a signature against a contract account via
// ERC-1271. Universal Profiles implement this, so it covers LUKSO
// wallet ownership proofs without any local key recovery.
func (c *Client) ValidSignature(ctx context.Context, account string, hash [32]byte, signature []byte) (bool, error) {
	head, tail := packBytes(signature, 64)
	data := selIsValidSignature + padBytes32(hash) + head + tail

	ret, err := c.CallContract(ctx, account, data)
	if err != nil {
		if IsRevert(err) {
			return false, nil
		}
		return false, err
	}
	return parseBytes4(ret) == erc1271Magic, nil
}
