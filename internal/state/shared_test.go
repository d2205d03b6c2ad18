package state

import (
	"sync"
	"testing"

	"p2p_trade/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdersAreCopiedOut(t *testing.T) {
	s := New()
	in := []model.Order{{ID: "a"}, {ID: "b"}}
	s.SetOrders(in)
	in[0].ID = "mutated"

	out := s.Orders()
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)

	out[1].ID = "mutated"
	assert.Equal(t, "b", s.Orders()[1].ID)
}

func TestTradeBinding(t *testing.T) {
	s := New()
	s.BindTrade(3, "order-3")

	idx, ok := s.TradeForOrder("order-3")
	assert.True(t, ok)
	assert.EqualValues(t, 3, idx)

	_, ok = s.TradeForOrder("order-4")
	assert.False(t, ok)
}

func TestDropChat(t *testing.T) {
	s := New()
	msg := model.ChatMessage{EventID: "1", CreatedAt: 10}
	s.AppendChat("k", msg)
	s.Notify("k", 1)

	s.DropChat("k")
	assert.Empty(t, s.Transcript("k"))
	assert.Zero(t, s.Pending("k"))
	assert.Empty(t, s.AppendChat("k", msg), "dropped messages are not replayed")
}

func TestAppendChatDeduplicates(t *testing.T) {
	s := New()
	assert.Len(t, s.AppendChat("k", model.ChatMessage{EventID: "1", CreatedAt: 10}, model.ChatMessage{EventID: "2", CreatedAt: 20}), 2)
	assert.Empty(t, s.AppendChat("k", model.ChatMessage{EventID: "2", CreatedAt: 20}))
	assert.Len(t, s.Transcript("k"), 2)
	assert.EqualValues(t, 20, s.LastChatAt("k"))
	assert.Zero(t, s.LastChatAt("other"))
}

func TestNotificationsConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Notify("k", 1)
			_ = s.Orders()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Pending("k"))
	s.ClearPending("k")
	assert.Zero(t, s.Pending("k"))
}
