package pii

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// TokenSealer seals OAuth refresh tokens with an age x25519 identity.
// Ciphertext is base64 encoded for storage in a text column.
type TokenSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewTokenSealer parses an AGE-SECRET-KEY-1... identity.
func NewTokenSealer(identity string) (*TokenSealer, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &TokenSealer{identity: id, recipient: id.Recipient()}, nil
}

// GenerateTokenSealer creates a sealer with a fresh identity. The identity
// string is returned so it can be persisted.
func GenerateTokenSealer() (*TokenSealer, string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("generating age identity: %w", err)
	}
	return &TokenSealer{identity: id, recipient: id.Recipient()}, id.String(), nil
}

// Seal encrypts token.
func (t *TokenSealer) Seal(token string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, t.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, token); err != nil {
		return "", fmt.Errorf("writing token: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a value produced by Seal.
func (t *TokenSealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decoding sealed token: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), t.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(out), nil
}
