package signature

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Sign produces a 64-byte BIP-340 signature over a 32-byte digest.
func Sign(priv *btcec.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify checks a BIP-340 signature against an x-only public key.
func Verify(pubXOnly, digest, sig []byte) bool {
	pub, err := schnorr.ParsePubKey(pubXOnly)
	if err != nil {
		return false
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return s.Verify(digest, pub)
}
