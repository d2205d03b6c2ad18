package encryption

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

var (
	ErrShortCiphertext = errors.New("ciphertext too short")
	ErrAuth            = errors.New("authentication failed")
)

// ChaCha20-Poly1305 helper. Output layout is nonce || ciphertext || tag.
func AEADEncrypt(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.New: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand.Read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// AEADDecrypt reverses AEADEncrypt. No plaintext is returned unless the tag verifies.
func AEADDecrypt(key, blob, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305.New: %w", err)
	}
	if len(blob) < NonceSize+TagSize {
		return nil, ErrShortCiphertext
	}
	nonce := blob[:NonceSize]
	ct := blob[NonceSize:]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrAuth
	}
	return plain, nil
}
