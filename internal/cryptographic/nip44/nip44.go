// Package nip44 implements version 2 of the network's versioned payload
// encryption: a conversation key from secp256k1 ECDH, per-message keys from
// HKDF, ChaCha20 with length-hiding padding and an HMAC-SHA256 tag.
package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/cryptographic/kdf"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
)

const (
	version = 2

	MinPlaintextSize = 1
	MaxPlaintextSize = 65535

	minPayloadB64 = 132
	maxPayloadB64 = 87472
	minDecoded    = 99
	maxDecoded    = 65603
)

var (
	ErrVersion  = errors.New("nip44: unknown version")
	ErrLength   = errors.New("nip44: invalid payload length")
	ErrMAC      = errors.New("nip44: invalid mac")
	ErrPadding  = errors.New("nip44: invalid padding")
	ErrPlainLen = errors.New("nip44: plaintext length out of range")
)

var salt = []byte("nip44-v2")

// ConversationKey is symmetric: ConversationKey(a, B) == ConversationKey(b, A).
func ConversationKey(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	return kdf.Extract(dh.SharedX(priv, pub), salt)
}

func messageKeys(convKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	buf := make([]byte, 76)
	if _, err := kdf.Expand(convKey, nonce, buf); err != nil {
		return nil, nil, nil, err
	}
	return buf[:32], buf[32:44], buf[44:], nil
}

func paddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

func pad(plaintext []byte) ([]byte, error) {
	n := len(plaintext)
	if n < MinPlaintextSize || n > MaxPlaintextSize {
		return nil, ErrPlainLen
	}
	out := make([]byte, 2+paddedLen(n))
	binary.BigEndian.PutUint16(out, uint16(n))
	copy(out[2:], plaintext)
	return out, nil
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrPadding
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < MinPlaintextSize || 2+n > len(padded) || len(padded) != 2+paddedLen(n) {
		return nil, ErrPadding
	}
	return padded[2 : 2+n], nil
}

func mac(key, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// Encrypt seals plaintext under convKey with a random 32-byte nonce.
func Encrypt(convKey []byte, plaintext string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nip44 nonce: %w", err)
	}
	return encryptWithNonce(convKey, []byte(plaintext), nonce)
}

func encryptWithNonce(convKey, plaintext, nonce []byte) (string, error) {
	ck, cn, hk, err := messageKeys(convKey, nonce)
	if err != nil {
		return "", err
	}
	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}
	c, err := chacha20.NewUnauthenticatedCipher(ck, cn)
	if err != nil {
		return "", err
	}
	ct := make([]byte, len(padded))
	c.XORKeyStream(ct, padded)

	out := make([]byte, 0, 1+32+len(ct)+32)
	out = append(out, version)
	out = append(out, nonce...)
	out = append(out, ct...)
	out = append(out, mac(hk, nonce, ct)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt verifies the MAC before decrypting; nothing is returned on failure.
func Decrypt(convKey []byte, payload string) (string, error) {
	n := len(payload)
	if n == 0 || payload[0] == '#' {
		return "", ErrVersion
	}
	if n < minPayloadB64 || n > maxPayloadB64 {
		return "", ErrLength
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("nip44 base64: %w", err)
	}
	if len(data) < minDecoded || len(data) > maxDecoded {
		return "", ErrLength
	}
	if data[0] != version {
		return "", ErrVersion
	}
	nonce := data[1:33]
	ct := data[33 : len(data)-32]
	tag := data[len(data)-32:]

	ck, cn, hk, err := messageKeys(convKey, nonce)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(tag, mac(hk, nonce, ct)) {
		return "", ErrMAC
	}
	c, err := chacha20.NewUnauthenticatedCipher(ck, cn)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ct))
	c.XORKeyStream(padded, ct)
	plain, err := unpad(padded)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
