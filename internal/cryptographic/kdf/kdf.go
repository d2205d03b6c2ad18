package kdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Extract returns the HKDF-SHA256 pseudorandom key for secret and salt.
func Extract(secret, salt []byte) []byte {
	return hkdf.Extract(sha256.New, secret, salt)
}

// Expand fills buffer from an already extracted pseudorandom key.
func Expand(prk, info, buffer []byte) (int, error) {
	h := hkdf.Expand(sha256.New, prk, info)
	return io.ReadFull(h, buffer)
}
