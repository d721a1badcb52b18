// Package validation provides input validation for ntunames.
//
// Every check here runs before any contract call so malformed input never
// surfaces as a contract error.
package validation

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/pendergraft/ntunames/internal/units"
)

// TLD is the only top-level domain the registrar accepts.
const TLD = ".ntu"

// MaxSecretBytes is the longest secret that still fits a bytes32 with a
// terminating zero byte.
const MaxSecretBytes = 31

var (
	ErrInvalidDomain  = errors.New("invalid domain name")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidSecret  = errors.New("invalid secret")
	ErrSecretMismatch = errors.New("secret confirmation does not match")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidChainID = errors.New("invalid chain ID")
)

// ValidateDomainName checks that name is "<label>.ntu" with a non-empty label
// that contains no further ".ntu".
func ValidateDomainName(name string) error {
	if !strings.HasSuffix(name, TLD) {
		return fmt.Errorf("%w: domain must end with .ntu", ErrInvalidDomain)
	}
	label := strings.TrimSuffix(name, TLD)
	if label == "" {
		return fmt.Errorf("%w: domain label cannot be empty", ErrInvalidDomain)
	}
	if strings.Contains(label, TLD) {
		return fmt.Errorf("%w: domain may contain .ntu only once", ErrInvalidDomain)
	}
	if len(name) > 253 {
		return fmt.Errorf("%w: domain too long (max 253 chars)", ErrInvalidDomain)
	}
	// Empty dot-separated segments
	if strings.Contains(label, "..") || strings.HasPrefix(label, ".") || strings.HasSuffix(label, ".") {
		return fmt.Errorf("%w: domain has an empty label segment", ErrInvalidDomain)
	}
	for _, r := range label {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return fmt.Errorf("%w: domain contains invalid characters", ErrInvalidDomain)
		}
	}
	return nil
}

// NormalizeDomainName lower-cases and trims a user-entered domain.
func NormalizeDomainName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return fmt.Errorf("%w: must be 42 characters (0x + 40 hex)", ErrInvalidAddress)
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%w: must start with 0x", ErrInvalidAddress)
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return fmt.Errorf("%w: contains non-hex characters", ErrInvalidAddress)
		}
	}
	return nil
}

// ValidateSecret checks a bid secret phrase.
func ValidateSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%w: secret cannot be empty", ErrInvalidSecret)
	}
	if len(secret) > MaxSecretBytes {
		return fmt.Errorf("%w: secret too long (max 31 bytes)", ErrInvalidSecret)
	}
	return nil
}

// ValidateSecretConfirmation checks the secret and its re-typed confirmation.
func ValidateSecretConfirmation(secret, confirmation string) error {
	if err := ValidateSecret(secret); err != nil {
		return err
	}
	if secret != confirmation {
		return ErrSecretMismatch
	}
	return nil
}

// ParseAmount parses a positive ETH amount into wei.
func ParseAmount(amount string) (*big.Int, error) {
	wei, err := units.ParseEther(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if wei.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return wei, nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return ErrInvalidChainID
	}
	return nil
}
