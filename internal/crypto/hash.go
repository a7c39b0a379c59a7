package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashToken returns the hex-encoded SHA-256 digest of a raw token string.
// Используется как непрозрачный ключ для blacklist и для хранения reset токенов:
// сами токены в базе не хранятся.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}

	hash := sha256.Sum256([]byte(token))

	return hex.EncodeToString(hash[:]), nil
}

// VerifyTokenHash checks in constant time that token matches the stored digest
func VerifyTokenHash(token, hashedToken string) error {
	if hashedToken == "" {
		return fmt.Errorf("hashed token cannot be empty")
	}

	computedHash, err := HashToken(token)
	if err != nil {
		return fmt.Errorf("failed to compute token hash: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(computedHash), []byte(hashedToken)) != 1 {
		return fmt.Errorf("token hash mismatch")
	}

	return nil
}
