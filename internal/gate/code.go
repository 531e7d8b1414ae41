package gate

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeMin  = 10000000
	codeSpan = 90000000
)

// NewVerificationCode returns a uniformly random 8-digit numeric string.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("gate: generate code: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()+codeMin), nil
}
