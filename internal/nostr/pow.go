package nostr

import (
	"context"
	"encoding/hex"
	"math/bits"
	"strconv"

	"p2p_trade/internal/cryptographic/dh"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Difficulty counts the leading zero bits of a hex event id.
func Difficulty(id string) int {
	b, err := hex.DecodeString(id)
	if err != nil {
		return 0
	}
	n := 0
	for _, c := range b {
		if c == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(c)
		break
	}
	return n
}

// Mine appends a nonce tag and searches for an id with at least target leading
// zero bits. The event must be signed afterwards.
func Mine(ctx context.Context, ev *Event, target int) error {
	if target <= 0 {
		return nil
	}
	ev.Tags = append(ev.Tags, Tag{"nonce", "0", strconv.Itoa(target)})
	nonceTag := ev.Tags[len(ev.Tags)-1]
	for n := uint64(0); ; n++ {
		if n&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		nonceTag[1] = strconv.FormatUint(n, 10)
		if Difficulty(ev.ComputeID()) >= target {
			return nil
		}
	}
}

// SignWithPoW mines against priv's public key and then signs.
func (e *Event) SignWithPoW(ctx context.Context, priv *btcec.PrivateKey, target int) error {
	e.PubKey = dh.PubKeyHex(priv)
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	if err := Mine(ctx, e, target); err != nil {
		return err
	}
	return e.Sign(priv)
}
