package dh

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Generate a new secp256k1 key pair
func NewKeyPair() (*btcec.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return priv, nil
}

// ParsePubKeyHex parses a 32-byte x-only public key (BIP-340 encoding, even y).
func ParsePubKeyHex(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pubkey hex: %w", err)
	}
	pub, err := schnorr.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("pubkey parse: %w", err)
	}
	return pub, nil
}

// PubKeyHex returns the x-only hex encoding of priv's public key.
func PubKeyHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}

// SharedX performs ECDH and returns the 32-byte x coordinate of priv * pub.
func SharedX(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	return btcec.GenerateSharedSecret(priv, pub)
}

func PrivKeyFromHex(s string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("privkey hex: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("privkey length %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}
