// Package cryptoutils provides the symmetric embedding codec and the
// signature verification capability used by the registry.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

const (
	envelopeVersion = "v1"
	gcmNonceSize    = 12
	gcmTagSize      = 16
)

// DeriveKey derives a 32-byte purpose-bound key from the master seed using
// HKDF-SHA256. Every key the service holds is derived from the single
// deployment-supplied seed, each under its own info string.
func DeriveKey(masterSeed []byte, info string) ([]byte, error) {
	if len(masterSeed) < 32 {
		return nil, errors.New("master seed must be at least 32 bytes")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterSeed, nil, []byte(info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// EmbeddingCipher seals embedding vectors with AES-256-GCM under a key
// derived from the registry master seed. Wire format:
//
//	v1:<iv-hex>:<authTag-hex>:<ciphertext-hex>
//
// The version prefix allows future scheme migration without re-encrypting
// in place.
type EmbeddingCipher struct {
	aead cipher.AEAD
}

// NewEmbeddingCipher derives the embedding key from masterSeed and prepares
// the AEAD. The seed must be at least 32 bytes.
func NewEmbeddingCipher(masterSeed []byte) (*EmbeddingCipher, error) {
	key, err := DeriveKey(masterSeed, "vface/embedding-cipher/v1")
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EmbeddingCipher{aead: aead}, nil
}

// Encrypt serializes the vector as canonical JSON and seals it into a fresh
// envelope with a random IV.
func (c *EmbeddingCipher) Encrypt(vec []float64) (string, error) {
	plaintext, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize embedding: %w", err)
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return fmt.Sprintf("%s:%s:%s:%s",
		envelopeVersion,
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens an envelope and deserializes the vector. Every failure mode
// (malformed envelope, unknown version, bad key, tampered ciphertext)
// returns the same opaque DecryptionError so callers cannot distinguish
// them, and no partial plaintext ever escapes.
func (c *EmbeddingCipher) Decrypt(envelope string) ([]float64, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 4 || parts[0] != envelopeVersion {
		return nil, interfaces.ErrDecryption
	}

	iv, err := hex.DecodeString(parts[1])
	if err != nil || len(iv) != gcmNonceSize {
		return nil, interfaces.ErrDecryption
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != gcmTagSize {
		return nil, interfaces.ErrDecryption
	}
	ciphertext, err := hex.DecodeString(parts[3])
	if err != nil {
		return nil, interfaces.ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, interfaces.ErrDecryption
	}

	var vec []float64
	if err := json.Unmarshal(plaintext, &vec); err != nil {
		return nil, interfaces.ErrDecryption
	}
	return vec, nil
}
