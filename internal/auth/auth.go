// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Token represents an authentication token
type Token struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
	IssuedAt  int64  `json:"issued_at"`
}

// Identity is the resolved user behind a bearer credential
type Identity struct {
	UserID string
}

// Provider resolves bearer credentials into user identities.
// The websocket attach path closes the channel with a policy violation
// when resolution fails.
type Provider struct {
	config *TokenConfig
}

// NewProvider creates an auth provider with the given signing secret.
// An empty secret disables verification and maps every credential to
// an anonymous identity (debug mode only).
func NewProvider(secret string, expiration time.Duration) *Provider {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Provider{config: &TokenConfig{Secret: key, Expiration: expiration}}
}

// ResolveBearer validates a bearer credential and returns the identity.
func (p *Provider) ResolveBearer(credential string) (*Identity, error) {
	credential = strings.TrimPrefix(credential, "Bearer ")
	if len(p.config.Secret) == 0 {
		if credential == "" {
			return &Identity{UserID: "anonymous"}, nil
		}
		return &Identity{UserID: credential}, nil
	}

	token, err := ParseToken(credential, p.config)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: token.UserID}, nil
}

// IssueToken generates a credential for the given user.
func (p *Provider) IssueToken(userID string) (string, error) {
	return GenerateToken(userID, p.config)
}

// GenerateToken creates a new authentication token
func GenerateToken(userID string, config *TokenConfig) (string, error) {
	if len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}

	token := &Token{
		UserID:    userID,
		ExpiresAt: time.Now().Add(config.Expiration).Unix(),
		IssuedAt:  time.Now().Unix(),
	}

	// Create the token payload
	payload := fmt.Sprintf("%s|%d|%d", token.UserID, token.ExpiresAt, token.IssuedAt)

	// Create HMAC signature
	h := hmac.New(sha256.New, config.Secret)
	h.Write([]byte(payload))
	signature := h.Sum(nil)

	encodedPayload := base64.URLEncoding.EncodeToString([]byte(payload))
	encodedSignature := base64.URLEncoding.EncodeToString(signature)

	return fmt.Sprintf("%s.%s", encodedPayload, encodedSignature), nil
}

// ParseToken parses and validates a token
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid token format")
	}

	payloadBytes, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid token payload: %w", err)
	}

	signatureBytes, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid token signature: %w", err)
	}

	// Verify signature
	expectedSignature := hmac.New(sha256.New, config.Secret)
	expectedSignature.Write(payloadBytes)
	if !hmac.Equal(signatureBytes, expectedSignature.Sum(nil)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	payloadParts := strings.Split(string(payloadBytes), "|")
	if len(payloadParts) != 3 {
		return nil, fmt.Errorf("invalid payload format")
	}

	token := &Token{
		UserID:    payloadParts[0],
		ExpiresAt: parseTimestamp(payloadParts[1]),
		IssuedAt:  parseTimestamp(payloadParts[2]),
	}

	if time.Now().Unix() > token.ExpiresAt {
		return nil, fmt.Errorf("token has expired")
	}

	return token, nil
}

// parseTimestamp converts string timestamp to int64
func parseTimestamp(timestampStr string) int64 {
	var timestamp int64
	fmt.Sscanf(timestampStr, "%d", &timestamp)
	return timestamp
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	return key, nil
}
