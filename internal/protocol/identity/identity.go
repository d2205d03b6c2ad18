// Package identity derives per-trade secp256k1 keys from a single mnemonic.
//
// Keys live under m/44'/1237'/38383'/0/<index>. Index 0 is reserved for the
// account identity key; trades use indices from 1 upwards so that no two
// orders ever share a public key.
package identity

import (
	"errors"
	"fmt"

	"p2p_trade/internal/cryptographic/dh"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

const (
	purpose  = 44
	coinType = 1237
	account  = 38383

	IdentityIndex = 0
	FirstTradeIdx = 1
)

var ErrMnemonic = errors.New("invalid mnemonic")

type (
	Keys struct {
		Index   uint32
		Private *btcec.PrivateKey
	}

	// Deriver holds the account node (m/44'/1237'/38383'/0); the mnemonic
	// and seed are not retained.
	Deriver struct {
		chain *bip32.Key
	}
)

func (k *Keys) PubKeyHex() string {
	return dh.PubKeyHex(k.Private)
}

// NewMnemonic generates a fresh 12-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func NewDeriver(mnemonic string) (*Deriver, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMnemonic, err)
	}

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	node := master
	for _, idx := range []uint32{
		bip32.FirstHardenedChild + purpose,
		bip32.FirstHardenedChild + coinType,
		bip32.FirstHardenedChild + account,
		0,
	} {
		if node, err = node.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("derive account path: %w", err)
		}
	}
	return &Deriver{chain: node}, nil
}

// Derive returns the key pair at index. It is pure: equal inputs give equal keys.
func (d *Deriver) Derive(index uint32) (*Keys, error) {
	if index >= bip32.FirstHardenedChild {
		return nil, fmt.Errorf("trade index %d out of range", index)
	}
	child, err := d.chain.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}
	priv, _ := btcec.PrivKeyFromBytes(child.Key)
	return &Keys{Index: index, Private: priv}, nil
}

// Identity returns the account-level signing key.
func (d *Deriver) Identity() (*Keys, error) {
	return d.Derive(IdentityIndex)
}
