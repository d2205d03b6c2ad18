// Package envelope turns protocol messages into network events and back.
//
// Three wire forms are supported:
//
//   - Plain: a kind 14 event signed by the trade key, content encrypted with
//     the conversation key between sender and recipient.
//   - AnonymousWrap: rumor (unsigned, authored by the trade key) inside a
//     seal signed by the trade key inside a gift wrap signed by a one-shot
//     ephemeral key. The outer event says nothing about the sender.
//   - SignedWrap: the rumor carries the trade key's signature over the
//     message, the seal and the outer wrap are both signed by the identity
//     key, so the sender is accountable.
//
// Every wrap carries exactly one "p" tag naming the recipient. Decoding
// verifies every signature on the way in and never yields a partial message.
package envelope

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/cryptographic/nip44"
	"p2p_trade/internal/cryptographic/signature"
	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"

	"github.com/btcsuite/btcd/btcec/v2"
)

type Mode int

const (
	Plain Mode = iota
	AnonymousWrap
	SignedWrap
)

// DefaultJitter is how far back wrap and seal timestamps may be moved to
// blur the real send time.
const DefaultJitter = 48 * time.Hour

func (m Mode) String() string {
	switch m {
	case Plain:
		return "plain"
	case AnonymousWrap:
		return "anonymous-wrap"
	case SignedWrap:
		return "signed-wrap"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

type (
	// SenderKeys are the caller's keys for one exchange. Identity is only
	// needed for SignedWrap.
	SenderKeys struct {
		Trade    *btcec.PrivateKey
		Identity *btcec.PrivateKey
	}

	Codec struct {
		// PoW is the default leading-zero-bit target for outer events.
		PoW int
		// Jitter bounds the random backdating of seal and wrap timestamps.
		Jitter time.Duration
	}

	// Decoded is a verified inbound message.
	Decoded struct {
		Message *model.Message
		// Sender is the key that signed the seal (or the plain event).
		Sender string
		// TradeKey is the author of the inner rumor.
		TradeKey string
		// CreatedAt is the true send time taken from the rumor.
		CreatedAt int64
		// Signed reports whether the content carried a valid message signature.
		Signed  bool
		EventID string
	}

	encodeOptions struct {
		expiry    *time.Time
		pow       *int
		ephemeral *EphemeralKey
	}

	Option func(*encodeOptions)
)

// WithExpiry adds an expiration tag to the inner content.
func WithExpiry(t time.Time) Option {
	return func(o *encodeOptions) { o.expiry = &t }
}

// WithPoW overrides the codec's proof-of-work target for one call.
func WithPoW(bits int) Option {
	return func(o *encodeOptions) { o.pow = &bits }
}

// WithEphemeral supplies the wrap key instead of generating one.
func WithEphemeral(k *EphemeralKey) Option {
	return func(o *encodeOptions) { o.ephemeral = k }
}

func NewCodec(pow int) *Codec {
	return &Codec{PoW: pow, Jitter: DefaultJitter}
}

// Encode builds the outer event for msg addressed to recipient (x-only hex).
func (c *Codec) Encode(ctx context.Context, msg *model.Message, mode Mode, sender SenderKeys, recipient string, opts ...Option) (*nostr.Event, error) {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	pow := c.PoW
	if o.pow != nil {
		pow = *o.pow
	}
	if sender.Trade == nil {
		return nil, fmt.Errorf("encode: missing trade key")
	}
	recipientPub, err := dh.ParsePubKeyHex(recipient)
	if err != nil {
		return nil, fmt.Errorf("encode: recipient: %w", err)
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode: marshal message: %w", err)
	}

	var sig []byte
	if mode == SignedWrap {
		digest := sha256.Sum256(msgJSON)
		if sig, err = signature.Sign(sender.Trade, digest[:]); err != nil {
			return nil, fmt.Errorf("encode: sign message: %w", err)
		}
	}
	content := contentTuple(msgJSON, sig)

	innerTags := nostr.Tags{}
	if o.expiry != nil {
		innerTags = append(innerTags, nostr.Tag{"expiration", strconv.FormatInt(o.expiry.Unix(), 10)})
	}

	switch mode {
	case Plain:
		ev := &nostr.Event{
			CreatedAt: nostr.Now(),
			Kind:      nostr.KindPrivateDM,
			Tags:      append(nostr.Tags{{"p", recipient}}, innerTags...),
		}
		if ev.Content, err = nip44.Encrypt(nip44.ConversationKey(sender.Trade, recipientPub), content); err != nil {
			return nil, fmt.Errorf("encode: encrypt: %w", err)
		}
		if err := ev.SignWithPoW(ctx, sender.Trade, pow); err != nil {
			return nil, fmt.Errorf("encode: sign: %w", err)
		}
		return ev, nil

	case AnonymousWrap, SignedWrap:
		sealKey := sender.Trade
		if mode == SignedWrap {
			if sender.Identity == nil {
				return nil, fmt.Errorf("encode: signed wrap needs an identity key")
			}
			sealKey = sender.Identity
		}

		rumor := &nostr.Event{
			PubKey:    dh.PubKeyHex(sender.Trade),
			CreatedAt: nostr.Now(),
			Kind:      nostr.KindTextNote,
			Tags:      innerTags,
			Content:   content,
		}
		rumor.ID = rumor.ComputeID()

		seal, err := c.seal(rumor, sealKey, recipientPub)
		if err != nil {
			return nil, err
		}

		if mode == SignedWrap {
			return c.wrapWith(ctx, seal, sender.Identity, recipient, recipientPub, pow)
		}
		eph := o.ephemeral
		if eph == nil {
			if eph, err = NewEphemeralKey(); err != nil {
				return nil, err
			}
		}
		return c.WrapEvent(ctx, seal, recipient, eph, pow)
	}
	return nil, fmt.Errorf("encode: unknown mode %v", mode)
}

func contentTuple(msgJSON, sig []byte) string {
	sigJSON := "null"
	if sig != nil {
		sigJSON = `"` + hex.EncodeToString(sig) + `"`
	}
	return "[" + string(msgJSON) + "," + sigJSON + "]"
}

func (c *Codec) seal(rumor *nostr.Event, signer *btcec.PrivateKey, recipientPub *btcec.PublicKey) (*nostr.Event, error) {
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("encode: marshal rumor: %w", err)
	}
	seal := &nostr.Event{
		CreatedAt: c.jittered(),
		Kind:      nostr.KindSeal,
		Tags:      nostr.Tags{},
	}
	if seal.Content, err = nip44.Encrypt(nip44.ConversationKey(signer, recipientPub), string(rumorJSON)); err != nil {
		return nil, fmt.Errorf("encode: encrypt rumor: %w", err)
	}
	if err := seal.Sign(signer); err != nil {
		return nil, fmt.Errorf("encode: sign seal: %w", err)
	}
	return seal, nil
}

// WrapEvent places inner inside a gift wrap for recipient signed by eph.
// eph is consumed; reusing it fails.
func (c *Codec) WrapEvent(ctx context.Context, inner *nostr.Event, recipient string, eph *EphemeralKey, pow int) (*nostr.Event, error) {
	recipientPub, err := dh.ParsePubKeyHex(recipient)
	if err != nil {
		return nil, fmt.Errorf("wrap: recipient: %w", err)
	}
	priv, err := eph.take()
	if err != nil {
		return nil, err
	}
	defer priv.Zero()
	return c.wrapWith(ctx, inner, priv, recipient, recipientPub, pow)
}

func (c *Codec) wrapWith(ctx context.Context, inner *nostr.Event, signer *btcec.PrivateKey, recipient string, recipientPub *btcec.PublicKey, pow int) (*nostr.Event, error) {
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("wrap: marshal inner: %w", err)
	}
	wrap := &nostr.Event{
		CreatedAt: c.jittered(),
		Kind:      nostr.KindGiftWrap,
		Tags:      nostr.Tags{{"p", recipient}},
	}
	if wrap.Content, err = nip44.Encrypt(nip44.ConversationKey(signer, recipientPub), string(innerJSON)); err != nil {
		return nil, fmt.Errorf("wrap: encrypt: %w", err)
	}
	if err := wrap.SignWithPoW(ctx, signer, pow); err != nil {
		return nil, fmt.Errorf("wrap: sign: %w", err)
	}
	return wrap, nil
}

func (c *Codec) jittered() int64 {
	now := nostr.Now()
	if c.Jitter <= 0 {
		return now
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(c.Jitter/time.Second)+1))
	if err != nil {
		return now
	}
	return now - n.Int64()
}
