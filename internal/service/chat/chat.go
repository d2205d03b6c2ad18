// Package chat is the admin dispute chat. Both sides derive the same shared
// key from their own identity and the other side's public key; messages are
// gift wraps addressed to that shared key's public key, so either side can
// open them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/utils/log"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"
)

const DefaultLookback = 7 * 24 * time.Hour

var (
	ErrEmptyMessage = errors.New("empty chat message")
	ErrInvalidText  = errors.New("chat message is not valid utf-8")
)

// DeriveSharedKey is the ECDH x coordinate of local and counterparty used as
// a private key. It is symmetric: A with B's public key equals B with A's.
func DeriveSharedKey(local *btcec.PrivateKey, counterparty string) (*btcec.PrivateKey, error) {
	pub, err := dh.ParsePubKeyHex(counterparty)
	if err != nil {
		return nil, fmt.Errorf("counterparty: %w", err)
	}
	x := dh.SharedX(local, pub)
	priv, _ := btcec.PrivKeyFromBytes(x)
	for i := range x {
		x[i] = 0
	}
	return priv, nil
}

type Channel struct {
	network nostr.Network
	codec   *envelope.Codec

	Lookback time.Duration
}

func NewChannel(network nostr.Network, codec *envelope.Codec) *Channel {
	return &Channel{network: network, codec: codec, Lookback: DefaultLookback}
}

// Send signs text as sender and publishes it wrapped to the shared key.
func (c *Channel) Send(ctx context.Context, shared, sender *btcec.PrivateKey, text string) (*nostr.Event, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	// the receiver would see a re-encoded body that no longer matches the id
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}
	sharedPub := dh.PubKeyHex(shared)

	inner := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{{"p", sharedPub}},
		Content:   text,
	}
	if err := inner.Sign(sender); err != nil {
		return nil, fmt.Errorf("sign chat message: %w", err)
	}

	eph, err := envelope.NewEphemeralKey()
	if err != nil {
		return nil, err
	}
	wrap, err := c.codec.WrapEvent(ctx, inner, sharedPub, eph, c.codec.PoW)
	if err != nil {
		return nil, err
	}
	if err := c.network.Publish(ctx, wrap); err != nil {
		return nil, err
	}
	return wrap, nil
}

// FetchNew returns messages newer than since, oldest first. Events that do
// not open with the shared key or carry a bad inner signature are skipped.
func (c *Channel) FetchNew(ctx context.Context, shared *btcec.PrivateKey, since int64) ([]model.ChatMessage, error) {
	sharedPub := dh.PubKeyHex(shared)
	events, err := c.network.Query(ctx, nostr.Filter{
		Kinds: []int{nostr.KindGiftWrap},
		Tags:  map[string][]string{"p": {sharedPub}},
		Since: nostr.Timestamp(nostr.Now() - int64(c.Lookback/time.Second)),
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(events))
	out := make([]model.ChatMessage, 0, len(events))
	for _, ev := range events {
		inner, err := envelope.UnwrapEvent(ev, shared)
		if err != nil {
			log.Debug("chat event does not open", zap.String("event", ev.ID), zap.Error(err))
			continue
		}
		if err := inner.Verify(); err != nil {
			log.Debug("chat inner signature invalid", zap.String("event", ev.ID), zap.Error(err))
			continue
		}
		if inner.Kind != nostr.KindTextNote || inner.CreatedAt <= since {
			continue
		}
		if _, dup := seen[inner.ID]; dup {
			continue
		}
		seen[inner.ID] = struct{}{}
		out = append(out, model.ChatMessage{
			EventID:   inner.ID,
			Text:      inner.Content,
			CreatedAt: inner.CreatedAt,
			Sender:    inner.PubKey,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}
