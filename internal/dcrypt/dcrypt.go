// Package dcrypt implements the optional body encryption layer: the
// message head (ID plus any in_head fields) always
// travels in plaintext so a receiver can identify and route a message
// before deciding whether it can decrypt the body; the body is
// encrypted with AES-CTR under a key derived from the engine's
// passphrase, with the stream IV derived from the plaintext head bytes,
// so messages with different heads get different IVs under the same
// key; messages with identical heads share one.
package dcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
)

// Cipher encrypts/decrypts a message body keyed on a fixed head,
// returning the result as a new slice.
type Cipher struct {
	key [32]byte
}

// NewCipher derives a 256-bit key from passphrase via SHA-256, matching
// original_source's key-from-passphrase scheme for the default crypto
// provider.
func NewCipher(passphrase string) *Cipher {
	return &Cipher{key: sha256.Sum256([]byte(passphrase))}
}

// streamFor builds the AES-CTR stream keyed on c and seeded with
// SHA-256(head), truncated to the AES block size for use as the IV.
func (c *Cipher) streamFor(head []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("dcrypt: %w", err)
	}
	ivSource := sha256.Sum256(head)
	iv := ivSource[:aes.BlockSize]
	return cipher.NewCTR(block, iv), nil
}

// Encrypt returns a new slice: body XORed with the CTR keystream seeded
// from head. Encrypting twice with the same head and key recovers the
// original body (CTR mode is its own inverse).
func (c *Cipher) Encrypt(head, body []byte) ([]byte, error) {
	stream, err := c.streamFor(head)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	stream.XORKeyStream(out, body)
	return out, nil
}

// Decrypt is Encrypt's inverse; AES-CTR makes them the same operation,
// kept as a separate method so call sites read intent-first.
func (c *Cipher) Decrypt(head, body []byte) ([]byte, error) {
	return c.Encrypt(head, body)
}
