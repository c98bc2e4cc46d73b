// pkg/evmutils/address.go
package evmutils

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	addressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	privateKeyPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
	hexDataPattern    = regexp.MustCompile(`^0x([0-9a-fA-F]{2})*$`)

	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidChecksum = errors.New("invalid address checksum")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidData     = errors.New("invalid calldata")
)

// Characters that show up when addresses are pasted out of chat clients,
// markdown or spreadsheets.
var pasteArtifacts = strings.NewReplacer(
	"\u200b", "", "\u200c", "", "\u200d", "", "\u2060", "", "\ufeff", "",
	"`", "", "\"", "", "'", "", "\u201c", "", "\u201d", "", "\u2018", "", "\u2019", "",
)

// CleanInput strips paste artifacts and surrounding whitespace.
func CleanInput(s string) string {
	return strings.TrimSpace(pasteArtifacts.Replace(s))
}

func IsHexAddress(s string) bool {
	return addressPattern.MatchString(s)
}

func IsHexPrivateKey(s string) bool {
	return privateKeyPattern.MatchString(s)
}

// NormalizeAddress cleans s, checks its shape and, for mixed-case input, its
// EIP-55 checksum. It returns the checksummed form.
func NormalizeAddress(s string) (common.Address, error) {
	cleaned := CleanInput(s)
	if strings.HasPrefix(cleaned, "0X") {
		cleaned = "0x" + cleaned[2:]
	}
	if !IsHexAddress(cleaned) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	addr := common.HexToAddress(cleaned)
	body := cleaned[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr.Hex() != cleaned {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidChecksum, cleaned)
	}
	return addr, nil
}

// ParseWei parses a non-negative base-10 integer amount that fits in a uint256.
func ParseWei(s string) (*big.Int, error) {
	cleaned := CleanInput(s)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, s)
		}
	}
	v, ok := new(big.Int).SetString(cleaned, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s exceeds uint256", ErrInvalidAmount, cleaned)
	}
	return v, nil
}

// ParseOptionalWei returns nil for an empty string.
func ParseOptionalWei(s string) (*big.Int, error) {
	if CleanInput(s) == "" {
		return nil, nil
	}
	return ParseWei(s)
}

// ParseData validates 0x-prefixed, even-length hex calldata. An empty string
// yields nil.
func ParseData(s string) ([]byte, error) {
	cleaned := CleanInput(s)
	if cleaned == "" || cleaned == "0x" {
		return nil, nil
	}
	if !hexDataPattern.MatchString(cleaned) {
		return nil, fmt.Errorf("%w: must be 0x-prefixed even-length hex", ErrInvalidData)
	}
	return common.FromHex(cleaned), nil
}
