package envelope

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/model"
	"p2p_trade/internal/model/modeltest"
	"p2p_trade/internal/nostr"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type parties struct {
	sender    SenderKeys
	recipient *btcec.PrivateKey
}

func newParties(t require.TestingT) parties {
	trade, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	id, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	rcpt, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return parties{sender: SenderKeys{Trade: trade, Identity: id}, recipient: rcpt}
}

func sampleMessage() *model.Message {
	rid := uint64(99)
	idx := int64(4)
	id := "0c8f7a1e-2b46-4c6f-9a55-0e8e4f0c5a11"
	return model.NewMessage(model.KindOrder, model.ActionAddInvoice, &id, &rid, &idx,
		model.PaymentRequestPayload("lnbc1500n1pj", nil))
}

func TestRoundTripAllModes(t *testing.T) {
	codec := NewCodec(0)
	for _, mode := range []Mode{Plain, AnonymousWrap, SignedWrap} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				p := newParties(rt)
				msg := modeltest.Message().Draw(rt, "msg")

				ev, err := codec.Encode(context.Background(), msg, mode, p.sender, dh.PubKeyHex(p.recipient))
				require.NoError(rt, err)

				got, err := codec.Decode(ev, p.recipient)
				require.NoError(rt, err)
				assert.Equal(rt, *msg, *got.Message)
				assert.Equal(rt, dh.PubKeyHex(p.sender.Trade), got.TradeKey)
			})
		})
	}
}

func TestSenderIdentityPerMode(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	rcpt := dh.PubKeyHex(p.recipient)
	tradePub := dh.PubKeyHex(p.sender.Trade)
	idPub := dh.PubKeyHex(p.sender.Identity)

	anon, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, rcpt)
	require.NoError(t, err)
	assert.Equal(t, nostr.KindGiftWrap, anon.Kind)
	assert.NotEqual(t, tradePub, anon.PubKey)
	assert.NotEqual(t, idPub, anon.PubKey)
	d, err := codec.Decode(anon, p.recipient)
	require.NoError(t, err)
	assert.Equal(t, tradePub, d.Sender)
	assert.False(t, d.Signed)

	signed, err := codec.Encode(context.Background(), sampleMessage(), SignedWrap, p.sender, rcpt)
	require.NoError(t, err)
	assert.Equal(t, idPub, signed.PubKey)
	d, err = codec.Decode(signed, p.recipient)
	require.NoError(t, err)
	assert.Equal(t, idPub, d.Sender)
	assert.Equal(t, tradePub, d.TradeKey)
	assert.True(t, d.Signed)

	plain, err := codec.Encode(context.Background(), sampleMessage(), Plain, p.sender, rcpt)
	require.NoError(t, err)
	assert.Equal(t, nostr.KindPrivateDM, plain.Kind)
	assert.Equal(t, tradePub, plain.PubKey)
}

func TestWrapHasSingleRecipientTag(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, dh.PubKeyHex(p.recipient))
	require.NoError(t, err)

	var ps []string
	for _, tag := range ev.Tags {
		if tag.Key() == "p" {
			ps = append(ps, tag.Value())
		}
	}
	assert.Equal(t, []string{dh.PubKeyHex(p.recipient)}, ps)
}

func TestDecodeIsIdempotent(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, dh.PubKeyHex(p.recipient))
	require.NoError(t, err)

	a, err := codec.Decode(ev, p.recipient)
	require.NoError(t, err)
	b, err := codec.Decode(ev, p.recipient)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// flipAndResign flips one bit of the decoded content and re-signs the event,
// so only the ciphertext check can catch it.
func flipAndResign(t *testing.T, ev *nostr.Event, signer *btcec.PrivateKey, pos int) *nostr.Event {
	raw, err := base64.StdEncoding.DecodeString(ev.Content)
	require.NoError(t, err)
	raw[pos%len(raw)] ^= 0x80
	out := *ev
	out.Tags = append(nostr.Tags(nil), ev.Tags...)
	out.Content = base64.StdEncoding.EncodeToString(raw)
	require.NoError(t, out.Sign(signer))
	return &out
}

func TestFailClosedOnCiphertextTampering(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	rcpt := dh.PubKeyHex(p.recipient)

	cases := map[Mode]*btcec.PrivateKey{
		Plain:      p.sender.Trade,
		SignedWrap: p.sender.Identity,
	}
	for mode, signer := range cases {
		ev, err := codec.Encode(context.Background(), sampleMessage(), mode, p.sender, rcpt)
		require.NoError(t, err)
		raw, _ := base64.StdEncoding.DecodeString(ev.Content)
		for _, pos := range []int{0, 1, 40, len(raw) / 2, len(raw) - 1} {
			bad := flipAndResign(t, ev, signer, pos)
			got, err := codec.Decode(bad, p.recipient)
			assert.ErrorIs(t, err, ErrDecode, "%s pos %d", mode, pos)
			assert.Nil(t, got)
		}
	}
}

func TestFailClosedOnOuterTampering(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, dh.PubKeyHex(p.recipient))
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(ev.Content)
	raw[len(raw)-1] ^= 0x01
	bad := *ev
	bad.Content = base64.StdEncoding.EncodeToString(raw)
	_, err = codec.Decode(&bad, p.recipient)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeRejectsWrongRecipient(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	other, _ := btcec.NewPrivateKey()
	ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, dh.PubKeyHex(p.recipient))
	require.NoError(t, err)

	_, err = codec.Decode(ev, other)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeRejectsImpersonatedRumor(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	victim, _ := btcec.NewPrivateKey()
	rcptPub := p.recipient.PubKey()

	msgJSON, _ := json.Marshal(sampleMessage())
	rumor := &nostr.Event{
		PubKey:    dh.PubKeyHex(victim),
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{},
		Content:   contentTuple(msgJSON, nil),
	}
	rumor.ID = rumor.ComputeID()
	seal, err := codec.seal(rumor, p.sender.Trade, rcptPub)
	require.NoError(t, err)
	eph, _ := NewEphemeralKey()
	wrap, err := codec.WrapEvent(context.Background(), seal, dh.PubKeyHex(p.recipient), eph, 0)
	require.NoError(t, err)

	_, err = codec.Decode(wrap, p.recipient)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEphemeralKeyIsSingleUse(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	rcpt := dh.PubKeyHex(p.recipient)
	eph, err := NewEphemeralKey()
	require.NoError(t, err)
	ephPub := eph.PubKeyHex()

	ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, rcpt, WithEphemeral(eph))
	require.NoError(t, err)
	assert.Equal(t, ephPub, ev.PubKey)
	assert.Empty(t, eph.PubKeyHex())

	_, err = codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, rcpt, WithEphemeral(eph))
	assert.ErrorIs(t, err, ErrEphemeralUsed)
}

func TestFreshEphemeralPerCall(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	rcpt := dh.PubKeyHex(p.recipient)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, rcpt)
		require.NoError(t, err)
		require.False(t, seen[ev.PubKey])
		seen[ev.PubKey] = true
	}
}

func TestExpiryAndPoW(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	rcpt := dh.PubKeyHex(p.recipient)

	ev, err := codec.Encode(context.Background(), sampleMessage(), AnonymousWrap, p.sender, rcpt,
		WithPoW(8), WithExpiry(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, nostr.Difficulty(ev.ID), 8)
	_, err = codec.Decode(ev, p.recipient)
	require.NoError(t, err)

	stale, err := codec.Encode(context.Background(), sampleMessage(), SignedWrap, p.sender, rcpt,
		WithExpiry(time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	_, err = codec.Decode(stale, p.recipient)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSignedWrapNeedsIdentity(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	p.sender.Identity = nil
	_, err := codec.Encode(context.Background(), sampleMessage(), SignedWrap, p.sender, dh.PubKeyHex(p.recipient))
	assert.Error(t, err)
}

func TestDecodeRejectsUnsupportedKind(t *testing.T) {
	codec := NewCodec(0)
	p := newParties(t)
	ev := &nostr.Event{CreatedAt: nostr.Now(), Kind: nostr.KindTextNote, Tags: nostr.Tags{{"p", dh.PubKeyHex(p.recipient)}}, Content: "{}"}
	require.NoError(t, ev.Sign(p.sender.Trade))
	_, err := codec.Decode(ev, p.recipient)
	assert.ErrorIs(t, err, ErrDecode)
}
