package apikeys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// SecretPrefix identifies Pagesmith API keys
	SecretPrefix = "pgsk_"
	// SecretLength is the number of random bytes in a secret (256 bits)
	SecretLength = 32
)

// GenerateSecret creates a new unguessable API key secret.
// Format: pgsk_<base64url(32 random bytes)>
func GenerateSecret() (string, error) {
	randomBytes := make([]byte, SecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ValidateSecretFormat checks if a secret has the correct shape before any
// database lookup.
func ValidateSecretFormat(secret string) error {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return fmt.Errorf("secret must start with %q", SecretPrefix)
	}

	encodedPart := strings.TrimPrefix(secret, SecretPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("secret is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid secret encoding: %w", err)
	}

	return nil
}

// DisplayPrefix returns the identifying prefix of a secret for display,
// e.g. "pgsk_abc123de".
func DisplayPrefix(secret string) string {
	if !strings.HasPrefix(secret, SecretPrefix) {
		return ""
	}
	encodedPart := strings.TrimPrefix(secret, SecretPrefix)
	if len(encodedPart) >= 8 {
		return SecretPrefix + encodedPart[:8]
	}
	return secret
}
