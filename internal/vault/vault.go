// Package vault protects tenant connection strings at rest in the
// control-plane registry. Ciphertexts are versioned and bound to a purpose
// string so that rotating the scheme only affects this class of secret.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// schemeV1 prefixes every ciphertext produced by the current scheme.
const schemeV1 = "v1"

// Vault protection errors.
var (
	// ErrCiphertextInvalid indicates malformed, foreign-purpose, or corrupt input.
	ErrCiphertextInvalid = errors.New("vault: invalid ciphertext")
	// ErrUnknownScheme indicates a ciphertext from an unsupported scheme version.
	ErrUnknownScheme = errors.New("vault: unknown protection scheme")
)

// Vault encrypts and decrypts secrets with a purpose-scoped symmetric key.
type Vault struct {
	aead cipher.AEAD
}

// New derives a purpose-scoped AES-256-GCM vault from the master key.
// The purpose string participates in key derivation, so a vault constructed
// with a different purpose cannot decrypt this vault's output.
func New(masterKey []byte, purpose string) (*Vault, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("vault: empty master key")
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, errors.New("vault: empty purpose")
	}

	derived := make([]byte, 32)
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	if _, errRead := io.ReadFull(reader, derived); errRead != nil {
		return nil, fmt.Errorf("vault: derive key: %w", errRead)
	}

	block, errBlock := aes.NewCipher(derived)
	if errBlock != nil {
		return nil, fmt.Errorf("vault: cipher: %w", errBlock)
	}
	aead, errGCM := cipher.NewGCM(block)
	if errGCM != nil {
		return nil, fmt.Errorf("vault: gcm: %w", errGCM)
	}
	return &Vault{aead: aead}, nil
}

// Protect encrypts a plaintext secret into a versioned ciphertext string.
func (v *Vault) Protect(plaintext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", errors.New("vault: not initialized")
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, errRead := io.ReadFull(rand.Reader, nonce); errRead != nil {
		return "", fmt.Errorf("vault: nonce: %w", errRead)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), []byte(schemeV1))
	return schemeV1 + ":" + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Unprotect decrypts a versioned ciphertext string. Malformed or
// foreign-purpose input fails loudly rather than returning garbage, since a
// wrong connection string would route requests into another tenant's database.
func (v *Vault) Unprotect(ciphertext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", errors.New("vault: not initialized")
	}

	scheme, payload, found := strings.Cut(ciphertext, ":")
	if !found || payload == "" {
		return "", ErrCiphertextInvalid
	}
	if scheme != schemeV1 {
		return "", fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}

	sealed, errDecode := base64.RawStdEncoding.DecodeString(payload)
	if errDecode != nil {
		return "", ErrCiphertextInvalid
	}
	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrCiphertextInvalid
	}

	plaintext, errOpen := v.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(schemeV1))
	if errOpen != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}
