// Package validation provides input normalization and validation for ogwallet.
package validation

import (
	"errors"
	"strings"
)

// NormalizeAddress returns the canonical form of a ledger address: surrounding
// whitespace removed and lower-cased. It is idempotent.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ValidateAddress validates an EVM address. The input is normalized first, so
// mixed-case (checksummed) and padded addresses are accepted.
func ValidateAddress(addr string) error {
	addr = NormalizeAddress(addr)
	if addr == "" {
		return errors.New("address cannot be empty")
	}
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

// ValidateTxHash validates a transaction hash (0x + 64 hex).
func ValidateTxHash(hash string) error {
	hash = strings.TrimSpace(hash)
	if len(hash) != 66 {
		return errors.New("invalid transaction hash length: must be 66 characters (0x + 64 hex)")
	}
	if !strings.HasPrefix(hash, "0x") && !strings.HasPrefix(hash, "0X") {
		return errors.New("invalid transaction hash: must start with 0x")
	}
	if !isHex(hash[2:]) {
		return errors.New("invalid transaction hash: contains non-hex characters")
	}
	return nil
}

// ValidateRequestCode validates a verification request code of the given length.
// Codes are upper-case alphanumeric.
func ValidateRequestCode(code string, length int) error {
	if len(code) != length {
		return errors.New("invalid request code length")
	}
	for _, c := range code {
		isDigit := c >= '0' && c <= '9'
		isUpper := c >= 'A' && c <= 'Z'
		if !isDigit && !isUpper {
			return errors.New("invalid request code: must be upper-case alphanumeric")
		}
	}
	return nil
}

// isHex returns true if s is non-empty and hexadecimal (either case)
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
