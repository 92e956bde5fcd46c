package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomToken returns n random bytes hex-encoded
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
