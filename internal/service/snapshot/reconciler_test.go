package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/nostr/relaytest"
	"p2p_trade/internal/state"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func orderDoc(id string, createdAt int64, status model.OrderStatus, extra ...nostr.Tag) *nostr.Event {
	tags := nostr.Tags{
		{"d", id},
		{"k", "sell"},
		{"s", string(status)},
		{"f", "EUR"},
		{"amt", "0"},
		{"fa", "100"},
		{"pm", "SEPA"},
		{"premium", "1"},
		{"z", DocumentOrder},
	}
	ev := &nostr.Event{
		CreatedAt: createdAt,
		Kind:      nostr.KindTradeDocument,
		Tags:      append(tags, extra...),
	}
	ev.ID = fmt.Sprintf("%s-%d-%s", id, createdAt, status)
	return ev
}

func TestFoldKeepsLatestStatus(t *testing.T) {
	t1 := orderDoc("o1", 100, model.StatusPending)
	t2 := orderDoc("o1", 200, model.StatusInProgress)

	for _, in := range [][]*nostr.Event{{t1, t2}, {t2, t1}} {
		got := FoldOrders(in)
		require.Len(t, got, 1)
		assert.Equal(t, model.StatusInProgress, got[0].Status)
		assert.EqualValues(t, 200, got[0].CreatedAt)
	}
}

func TestFoldIsOrderIndependent(t *testing.T) {
	statuses := []model.OrderStatus{model.StatusPending, model.StatusActive, model.StatusSuccess, model.StatusCanceled}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		events := make([]*nostr.Event, 0, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("o%d", rapid.IntRange(0, 4).Draw(t, "id"))
			ts := rapid.Int64Range(1, 5).Draw(t, "ts")
			status := rapid.SampledFrom(statuses).Draw(t, "status")
			events = append(events, orderDoc(id, ts, status))
		}

		want := FoldOrders(events)

		shuffled := rapid.Permutation(events).Draw(t, "perm")
		if len(events) > 0 {
			dup := rapid.SampledFrom(events).Draw(t, "dup")
			shuffled = append(shuffled, dup)
		}
		assert.Equal(t, want, FoldOrders(shuffled))
		assert.Equal(t, want, FoldOrders(events))

		seen := map[string]bool{}
		for i, o := range want {
			assert.False(t, seen[o.ID], "duplicate id %s", o.ID)
			seen[o.ID] = true
			if i > 0 {
				assert.GreaterOrEqual(t, want[i-1].CreatedAt, o.CreatedAt)
			}
		}
	})
}

func TestFoldSkipsMalformed(t *testing.T) {
	good := orderDoc("o1", 10, model.StatusPending)
	noID := orderDoc("", 11, model.StatusPending)
	badKind := orderDoc("o2", 12, model.StatusPending)
	badKind.Tags[1] = nostr.Tag{"k", "swap"}
	badAmount := orderDoc("o3", 13, model.StatusPending)
	badAmount.Tags[4] = nostr.Tag{"amt", "lots"}
	dispute := orderDoc("o4", 14, model.StatusPending)
	dispute.Tags[8] = nostr.Tag{"z", DocumentDispute}

	got := FoldOrders([]*nostr.Event{noID, good, badKind, badAmount, dispute})
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0].ID)
}

func TestParseOrderTags(t *testing.T) {
	ev := orderDoc("o1", 10, model.StatusPending,
		nostr.Tag{"network", "mainnet"},
		nostr.Tag{"layer", "lightning"},
		nostr.Tag{"expiration", "1700000000"},
		nostr.Tag{"y", "mostro"},
		nostr.Tag{"unknown", "x", "y"},
	)
	ev.Tags[5] = nostr.Tag{"fa", "50", "250"}
	ev.Tags[6] = nostr.Tag{"pm", "SEPA, Revolut", "Cash"}

	o, err := ParseOrder(ev)
	require.NoError(t, err)
	assert.Equal(t, model.OrderKindSell, o.Kind)
	assert.True(t, o.IsRange())
	assert.EqualValues(t, 50, *o.MinAmount)
	assert.EqualValues(t, 250, *o.MaxAmount)
	assert.Equal(t, []string{"SEPA", "Revolut", "Cash"}, o.PaymentMethods)
	assert.Equal(t, "mainnet", o.Network)
	assert.Equal(t, "lightning", o.Layer)
	assert.Equal(t, "mostro", o.Platform)
	assert.EqualValues(t, 1700000000, o.ExpiresAt)
	assert.EqualValues(t, 1, o.Premium)
}

func TestFilterOrders(t *testing.T) {
	buy := model.OrderKindBuy
	pending := model.StatusPending
	usd := orderDoc("o2", 20, model.StatusPending)
	usd.Tags[3] = nostr.Tag{"f", "USD"}
	buyDoc := orderDoc("o3", 30, model.StatusPending)
	buyDoc.Tags[1] = nostr.Tag{"k", "buy"}
	orders := FoldOrders([]*nostr.Event{
		orderDoc("o1", 10, model.StatusActive),
		usd,
		buyDoc,
	})
	require.Len(t, orders, 3)
	assert.Equal(t, []string{"o3", "o2", "o1"}, ids(orders))

	assert.Equal(t, []string{"o3", "o2"}, ids(FilterOrders(orders, OrderFilter{Status: &pending})))
	assert.Equal(t, []string{"o2"}, ids(FilterOrders(orders, OrderFilter{Currency: "usd"})))
	assert.Equal(t, []string{"o3"}, ids(FilterOrders(orders, OrderFilter{Kind: &buy})))
	assert.Len(t, orders, 3)
}

func ids(orders []model.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestFoldDisputes(t *testing.T) {
	mk := func(id string, ts int64, status string) *nostr.Event {
		return &nostr.Event{
			ID:        fmt.Sprintf("%s-%d", id, ts),
			CreatedAt: ts,
			Kind:      nostr.KindTradeDocument,
			Tags:      nostr.Tags{{"d", id}, {"s", status}, {"initiator", "buyer"}, {"z", DocumentDispute}},
		}
	}
	got := FoldDisputes([]*nostr.Event{mk("d1", 1, "initiated"), mk("d1", 2, "in-progress"), mk("d2", 3, "initiated")})
	require.Len(t, got, 2)
	assert.Equal(t, "d2", got[0].ID)
	assert.Equal(t, "in-progress", got[1].Status)
	assert.Equal(t, "buyer", got[1].Initiator)

	assert.Len(t, FilterDisputes(got, DisputeFilter{Status: "initiated"}), 1)
}

func signedDoc(t *testing.T, priv *btcec.PrivateKey, ev *nostr.Event) *nostr.Event {
	t.Helper()
	ev.ID = ""
	ev.CreatedAt = nostr.Now() - ev.CreatedAt
	require.NoError(t, ev.Sign(priv))
	return ev
}

func TestFetchOrdersFromRelay(t *testing.T) {
	relay := relaytest.New()
	defer relay.Close()

	fac, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	relay.Store(
		signedDoc(t, fac, orderDoc("o1", 60, model.StatusPending)),
		signedDoc(t, fac, orderDoc("o1", 30, model.StatusActive)),
		signedDoc(t, fac, orderDoc("o2", 10, model.StatusPending)),
		signedDoc(t, other, orderDoc("o3", 5, model.StatusPending)),
	)

	pool := nostr.NewPool([]string{relay.URL()})
	defer pool.Close()
	rec := NewReconciler(pool, dh.PubKeyHex(fac))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	orders, err := rec.FetchOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"o2", "o1"}, ids(orders))
	assert.Equal(t, model.StatusActive, orders[1].Status)

	shared := state.New()
	poller := NewPoller(rec, shared)
	require.NoError(t, poller.PollOrders(ctx))
	assert.Len(t, shared.Orders(), 2)
	require.NoError(t, poller.PollDisputes(ctx))
	assert.Empty(t, shared.Disputes())
}
