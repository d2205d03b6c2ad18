package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/nostr/relaytest"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/state"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveSharedKeySymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		b, err := btcec.NewPrivateKey()
		require.NoError(t, err)

		ab, err := DeriveSharedKey(a, dh.PubKeyHex(b))
		require.NoError(t, err)
		ba, err := DeriveSharedKey(b, dh.PubKeyHex(a))
		require.NoError(t, err)
		assert.Equal(t, ab.Serialize(), ba.Serialize())

		again, err := DeriveSharedKey(a, dh.PubKeyHex(b))
		require.NoError(t, err)
		assert.Equal(t, ab.Serialize(), again.Serialize())
	})
}

func TestDeriveSharedKeyRejectsBadPubKey(t *testing.T) {
	a, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	_, err = DeriveSharedKey(a, "zz")
	assert.Error(t, err)
}

type chatFixture struct {
	relay   *relaytest.Relay
	pool    *nostr.Pool
	channel *Channel
	admin   *btcec.PrivateKey
	buyer   *btcec.PrivateKey
	shared  *btcec.PrivateKey
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	relay := relaytest.New()
	t.Cleanup(relay.Close)
	pool := nostr.NewPool([]string{relay.URL()})
	t.Cleanup(pool.Close)

	admin, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	buyer, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	shared, err := DeriveSharedKey(admin, dh.PubKeyHex(buyer))
	require.NoError(t, err)

	return &chatFixture{
		relay:   relay,
		pool:    pool,
		channel: NewChannel(pool, envelope.NewCodec(0)),
		admin:   admin,
		buyer:   buyer,
		shared:  shared,
	}
}

func TestSendAndFetchBothSides(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := nostr.Now
	defer func() { nostr.Now = now }()
	base := now()

	nostr.Now = func() int64 { return base }
	_, err := f.channel.Send(ctx, f.shared, f.admin, "please upload proof")
	require.NoError(t, err)
	nostr.Now = func() int64 { return base + 1 }
	_, err = f.channel.Send(ctx, f.shared, f.buyer, "attached")
	require.NoError(t, err)
	nostr.Now = now

	// the buyer derives the same key independently
	buyerSide, err := DeriveSharedKey(f.buyer, dh.PubKeyHex(f.admin))
	require.NoError(t, err)

	msgs, err := f.channel.FetchNew(ctx, buyerSide, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "please upload proof", msgs[0].Text)
	assert.Equal(t, dh.PubKeyHex(f.admin), msgs[0].Sender)
	assert.Equal(t, "attached", msgs[1].Text)
	assert.Equal(t, dh.PubKeyHex(f.buyer), msgs[1].Sender)

	newer, err := f.channel.FetchNew(ctx, f.shared, base)
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, "attached", newer[0].Text)
}

func TestFetchSkipsForgedInnerEvents(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sharedPub := dh.PubKeyHex(f.shared)
	inner := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{{"p", sharedPub}},
		Content:   "release the funds",
	}
	require.NoError(t, inner.Sign(f.buyer))
	inner.PubKey = dh.PubKeyHex(f.admin)

	eph, err := envelope.NewEphemeralKey()
	require.NoError(t, err)
	forged, err := envelope.NewCodec(0).WrapEvent(ctx, inner, sharedPub, eph, 0)
	require.NoError(t, err)
	f.relay.Store(forged)

	_, err = f.channel.Send(ctx, f.shared, f.admin, "genuine")
	require.NoError(t, err)

	msgs, err := f.channel.FetchNew(ctx, f.shared, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "genuine", msgs[0].Text)
}

func TestFetchWithOtherKeySeesNothing(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.channel.Send(ctx, f.shared, f.admin, "hello")
	require.NoError(t, err)

	stranger, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	msgs, err := f.channel.FetchNew(ctx, stranger, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSendRejectsEmpty(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.channel.Send(context.Background(), f.shared, f.admin, "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendRejectsInvalidUTF8(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := f.channel.Send(ctx, f.shared, f.admin, "caf\xe9 receipt")
	assert.ErrorIs(t, err, ErrInvalidText)

	msgs, err := f.channel.FetchNew(ctx, f.shared, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "nothing is published for a rejected message")

	_, err = f.channel.Send(ctx, f.shared, f.admin, "café receipt")
	require.NoError(t, err)
	msgs, err = f.channel.FetchNew(ctx, f.shared, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "café receipt", msgs[0].Text)
}

type memStore struct {
	mu   sync.Mutex
	keys []*model.SharedChatKey
	logs map[string][]model.ChatMessage
}

func (s *memStore) Keys(context.Context) ([]*model.SharedChatKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.SharedChatKey(nil), s.keys...), nil
}

func (s *memStore) PutKey(_ context.Context, k *model.SharedChatKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, k)
	return nil
}

func (s *memStore) GetKey(_ context.Context, disputeID string, party model.Party) (*model.SharedChatKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.DisputeID == disputeID && k.Party == party {
			return k, nil
		}
	}
	return nil, nil
}

func (s *memStore) AppendMessages(_ context.Context, disputeID string, party model.Party, msgs ...model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := TranscriptKey(disputeID, party)
	s.logs[tk] = append(s.logs[tk], msgs...)
	return nil
}

func (s *memStore) DeleteKey(_ context.Context, disputeID string, party model.Party) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.keys {
		if k.DisputeID == disputeID && k.Party == party {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	delete(s.logs, TranscriptKey(disputeID, party))
	return nil
}

func (s *memStore) Messages(_ context.Context, disputeID string, party model.Party) ([]model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatMessage(nil), s.logs[TranscriptKey(disputeID, party)]...), nil
}

func TestPollerFansOutAndNotifies(t *testing.T) {
	f := newChatFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seller, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	sellerShared, err := DeriveSharedKey(f.admin, dh.PubKeyHex(seller))
	require.NoError(t, err)

	store := &memStore{logs: map[string][]model.ChatMessage{}}
	require.NoError(t, store.PutKey(ctx, &model.SharedChatKey{DisputeID: "d1", Party: model.PartyBuyer, Private: f.shared}))
	require.NoError(t, store.PutKey(ctx, &model.SharedChatKey{DisputeID: "d1", Party: model.PartySeller, Private: sellerShared}))

	_, err = f.channel.Send(ctx, f.shared, f.buyer, "buyer here")
	require.NoError(t, err)
	_, err = f.channel.Send(ctx, sellerShared, seller, "seller here")
	require.NoError(t, err)

	shared := state.New()
	poller := NewPoller(f.channel, store, shared)
	require.NoError(t, poller.PollOnce(ctx))

	buyerKey := TranscriptKey("d1", model.PartyBuyer)
	sellerKey := TranscriptKey("d1", model.PartySeller)
	assert.Equal(t, 1, shared.Pending(buyerKey))
	assert.Equal(t, 1, shared.Pending(sellerKey))
	assert.Equal(t, "seller here", shared.Transcript(sellerKey)[0].Text)

	// nothing new on the second pass
	require.NoError(t, poller.PollOnce(ctx))
	assert.Equal(t, 1, shared.Pending(buyerKey))

	cached, err := store.Messages(ctx, "d1", model.PartyBuyer)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	reloaded := state.New()
	require.NoError(t, NewPoller(f.channel, store, reloaded).Load(ctx))
	assert.Len(t, reloaded.Transcript(buyerKey), 1)
}
