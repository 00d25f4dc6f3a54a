package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Function selectors, computed once from their canonical signatures.
var (
	selBalanceOf         = selector("balanceOf(address)")
	selBalanceOfID       = selector("balanceOf(address,uint256)")
	selSupportsInterface = selector("supportsInterface(bytes4)")
	selIsValidSignature  = selector("isValidSignature(bytes32,bytes)")
)

// selector returns the 4-byte function selector for a canonical
// signature, hex-encoded with 0x prefix.
func selector(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil)[:4])
}

// PersonalMessageHash computes the EIP-191 personal-message digest that
// wallets sign, which is also what ERC-1271 accounts expect.
func PersonalMessageHash(message string) [32]byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NormalizeAddress validates a 20-byte hex address and lowercases it.
func NormalizeAddress(address string) (string, error) {
	if !addressPattern.MatchString(address) {
		return "", fmt.Errorf("invalid address %q", address)
	}
	return strings.ToLower(address), nil
}

// padAddress left-pads an address to a 32-byte ABI word.
func padAddress(address string) string {
	return strings.Repeat("0", 24) + strings.ToLower(strings.TrimPrefix(address, "0x"))
}

// padBig left-pads an unsigned integer to a 32-byte ABI word.
func padBig(n *big.Int) string {
	s := n.Text(16)
	if len(s) >= 64 {
		return s[len(s)-64:]
	}
	return strings.Repeat("0", 64-len(s)) + s
}

// padBytes32 encodes a 32-byte value as one ABI word.
func padBytes32(b [32]byte) string {
	return hex.EncodeToString(b[:])
}

// padBytes4 right-pads a 4-byte value (interface ID) to a 32-byte word.
func padBytes4(id string) string {
	return strings.TrimPrefix(strings.ToLower(id), "0x") + strings.Repeat("0", 56)
}

// packBytes encodes a dynamic bytes argument placed at tail offset.
// offset is the head position in bytes where the tail begins.
func packBytes(b []byte, offset int) (head, tail string) {
	head = padBig(big.NewInt(int64(offset)))
	tail = padBig(big.NewInt(int64(len(b)))) + hex.EncodeToString(b)
	if rem := len(b) % 32; rem != 0 {
		tail += strings.Repeat("0", (32-rem)*2)
	}
	return head, tail
}

// parseQuantity decodes a JSON-RPC hex quantity ("0x1b3") into a big
// integer. An empty or "0x" result decodes to zero.
func parseQuantity(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("malformed hex quantity %q", s)
	}
	return n, nil
}

// parseWord decodes the first 32-byte word of eth_call return data.
func parseWord(ret string) (*big.Int, error) {
	ret = strings.TrimPrefix(ret, "0x")
	if ret == "" {
		return big.NewInt(0), nil
	}
	if len(ret) > 64 {
		ret = ret[:64]
	}
	n, ok := new(big.Int).SetString(ret, 16)
	if !ok {
		return nil, fmt.Errorf("malformed return data %q", ret)
	}
	return n, nil
}

// parseBool interprets eth_call return data as an ABI bool.
func parseBool(ret string) (bool, error) {
	n, err := parseWord(ret)
	if err != nil {
		return false, err
	}
	return n.Sign() != 0, nil
}

// parseBytes4 extracts the leading 4 bytes of return data, 0x-prefixed.
func parseBytes4(ret string) string {
	ret = strings.TrimPrefix(ret, "0x")
	if len(ret) < 8 {
		return ""
	}
	return "0x" + strings.ToLower(ret[:8])
}
