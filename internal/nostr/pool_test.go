package nostr_test

import (
	"context"
	"testing"
	"time"

	"p2p_trade/internal/nostr"
	"p2p_trade/internal/nostr/relaytest"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(t *testing.T, priv *btcec.PrivateKey, content string, p string) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{{"p", p}},
		Content:   content,
	}
	require.NoError(t, ev.Sign(priv))
	return ev
}

func TestPoolQueryDeduplicatesAcrossRelays(t *testing.T) {
	r1, r2 := relaytest.New(), relaytest.New()
	defer r1.Close()
	defer r2.Close()

	priv, _ := btcec.NewPrivateKey()
	a := note(t, priv, "a", "x")
	b := note(t, priv, "b", "x")
	r1.Store(a, b)
	r2.Store(a)

	pool := nostr.NewPool([]string{r1.URL(), r2.URL()})
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := pool.Query(ctx, nostr.Filter{Kinds: []int{nostr.KindTextNote}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPoolDropsInvalidEvents(t *testing.T) {
	r := relaytest.New()
	defer r.Close()

	priv, _ := btcec.NewPrivateKey()
	good := note(t, priv, "good", "x")
	bad := note(t, priv, "bad", "x")
	bad.Content = "forged"
	r.Store(good, bad)

	pool := nostr.NewPool([]string{r.URL()})
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := pool.Query(ctx, nostr.Filter{Kinds: []int{nostr.KindTextNote}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good.ID, got[0].ID)
}

func TestPoolSubscribeReceivesLiveEvents(t *testing.T) {
	r := relaytest.New()
	defer r.Close()

	pool := nostr.NewPool([]string{r.URL()})
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := pool.Subscribe(ctx, nostr.Filter{Tags: map[string][]string{"p": {"me"}}})
	require.NoError(t, err)
	defer sub.Close()

	select {
	case <-sub.EOSE:
	case <-ctx.Done():
		t.Fatal("no EOSE")
	}

	priv, _ := btcec.NewPrivateKey()
	require.NoError(t, pool.Publish(ctx, note(t, priv, "not for me", "other")))
	mine := note(t, priv, "for me", "me")
	require.NoError(t, pool.Publish(ctx, mine))

	select {
	case ev := <-sub.Events:
		assert.Equal(t, mine.ID, ev.ID)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}

func TestPoolPublishFailsWithoutRelays(t *testing.T) {
	pool := nostr.NewPool([]string{"ws://127.0.0.1:1"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	priv, _ := btcec.NewPrivateKey()
	err := pool.Publish(ctx, note(t, priv, "x", "y"))
	var te *nostr.TransportError
	assert.ErrorAs(t, err, &te)
}
