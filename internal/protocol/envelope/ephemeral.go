package envelope

import (
	"errors"
	"sync"

	"p2p_trade/internal/cryptographic/dh"

	"github.com/btcsuite/btcd/btcec/v2"
)

var ErrEphemeralUsed = errors.New("ephemeral key already used")

// EphemeralKey signs exactly one gift wrap. It can only be created fresh and
// is zeroed by the encode call that consumes it.
type EphemeralKey struct {
	mu   sync.Mutex
	priv *btcec.PrivateKey
}

func NewEphemeralKey() (*EphemeralKey, error) {
	priv, err := dh.NewKeyPair()
	if err != nil {
		return nil, err
	}
	return &EphemeralKey{priv: priv}, nil
}

// PubKeyHex is available until the key is consumed.
func (k *EphemeralKey) PubKeyHex() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil {
		return ""
	}
	return dh.PubKeyHex(k.priv)
}

func (k *EphemeralKey) take() (*btcec.PrivateKey, error) {
	if k == nil {
		return nil, ErrEphemeralUsed
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil {
		return nil, ErrEphemeralUsed
	}
	priv := k.priv
	k.priv = nil
	return priv, nil
}
