// Package validation provides input validation for deployment parameters.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// solc long versions look like "0.8.19+commit.7dd6d404"
var solcLongVersionRegex = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)\+commit\.[0-9a-f]{8}$`)

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	if !isHex(addr[2:]) {
		return errors.New("invalid address: contains non-hex characters")
	}
	return nil
}

// ValidateTxHash validates a transaction hash
func ValidateTxHash(hash string) error {
	if len(hash) != 66 {
		return errors.New("invalid transaction hash length: must be 66 characters (0x + 64 hex)")
	}
	if !strings.HasPrefix(hash, "0x") {
		return errors.New("invalid transaction hash: must start with 0x")
	}
	if !isHex(hash[2:]) {
		return errors.New("invalid transaction hash: contains non-hex characters")
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateTierName validates a tier name passed to addTier
func ValidateTierName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("tier name cannot be empty")
	}
	if len(name) > 64 {
		return errors.New("tier name too long (max 64 chars)")
	}
	return nil
}

// NormalizeCompilerVersion returns the explorer form of a solc version
// ("v0.8.19+commit.7dd6d404"). Short versions without a commit suffix are
// rejected because explorers cannot resolve them to a compiler build.
func NormalizeCompilerVersion(v string) (string, error) {
	m := solcLongVersionRegex.FindStringSubmatch(v)
	if m == nil {
		return "", fmt.Errorf("invalid compiler version %q: want X.Y.Z+commit.<8 hex>", v)
	}
	if !semver.IsValid("v" + m[1]) {
		return "", fmt.Errorf("invalid compiler version %q", v)
	}
	return "v" + strings.TrimPrefix(v, "v"), nil
}

func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}
