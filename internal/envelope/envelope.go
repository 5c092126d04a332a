// Package envelope encrypts sensitive vault fields at rest. Every value is
// encrypted with AES-256-CBC under one process-wide master key using a fresh
// random IV, and stored as base64(IV || ciphertext).
//
// The master key is loaded once at startup. A key of the wrong length is a
// startup error, never a silent fallback to plaintext storage.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required master key length in bytes (AES-256).
const KeySize = 32

// ivSize is the CBC initialization vector length, equal to the AES block size.
const ivSize = aes.BlockSize

var (
	// ErrKeyLength is returned when the master key is not exactly KeySize bytes.
	ErrKeyLength = errors.New("envelope: master key must be 32 bytes")

	// ErrMalformed is returned for ciphertext that cannot be decoded or
	// decrypted: bad base64, too short for an IV, misaligned blocks, or
	// invalid padding (which is also what a foreign key produces).
	ErrMalformed = errors.New("envelope: malformed ciphertext")
)

// Cipher encrypts and decrypts field values. Safe for concurrent use; the
// key is immutable after construction.
type Cipher struct {
	block cipher.Block
	rand  io.Reader
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithRand overrides the IV source. Tests use this for deterministic IVs;
// production code should never pass anything but crypto/rand.
func WithRand(r io.Reader) Option {
	return func(c *Cipher) { c.rand = r }
}

// New creates a Cipher from a raw 32-byte master key.
func New(key []byte, opts ...Option) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w (got %d)", ErrKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	c := &Cipher{block: block, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt returns base64(IV || AES-CBC(PKCS7(plain))). Empty input maps to
// empty output so optional fields stay empty in storage.
func (c *Cipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	padded := pad([]byte(plain))
	out := make([]byte, ivSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[ivSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Empty input maps to empty output; anything that
// is not a well-formed envelope under this key returns ErrMalformed.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < ivSize+aes.BlockSize || (len(raw)-ivSize)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}

	iv, ct := raw[:ivSize], raw[ivSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)

	unpadded, ok := unpad(plain)
	if !ok {
		return "", ErrMalformed
	}
	return string(unpadded), nil
}

// pad applies PKCS#7 padding to a full block multiple. A full block of
// padding is added when the input is already aligned.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips PKCS#7 padding, reporting false if it is invalid.
func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
