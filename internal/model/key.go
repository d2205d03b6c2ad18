package model

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

type (
	// SharedChatKey addresses and encrypts the admin chat with one trade party.
	// It is a pure function of the two identities; the hex form is a cache.
	SharedChatKey struct {
		DisputeID string
		Party     Party
		Private   *btcec.PrivateKey
	}
)

func (k *SharedChatKey) Hex() string {
	return hex.EncodeToString(k.Private.Serialize())
}

func (k *SharedChatKey) PubKeyHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(k.Private.PubKey()))
}
