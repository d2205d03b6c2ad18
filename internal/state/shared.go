// Package state holds the client's shared in-memory view. One *Shared is
// created at startup and handed to every component that reads or writes it.
package state

import (
	"sync"

	"p2p_trade/internal/model"
)

type Shared struct {
	mu sync.RWMutex

	orders   []model.Order
	disputes []model.Dispute

	// order id -> trade index
	orderTrades map[string]int64

	notifications map[string]int
	transcripts   map[string][]model.ChatMessage
	seenChat      map[string]struct{}
}

func New() *Shared {
	return &Shared{
		orderTrades:   make(map[string]int64),
		notifications: make(map[string]int),
		transcripts:   make(map[string][]model.ChatMessage),
		seenChat:      make(map[string]struct{}),
	}
}

// SetOrders replaces the order list wholesale.
func (s *Shared) SetOrders(orders []model.Order) {
	cp := append([]model.Order(nil), orders...)
	s.mu.Lock()
	s.orders = cp
	s.mu.Unlock()
}

func (s *Shared) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Order(nil), s.orders...)
}

func (s *Shared) SetDisputes(disputes []model.Dispute) {
	cp := append([]model.Dispute(nil), disputes...)
	s.mu.Lock()
	s.disputes = cp
	s.mu.Unlock()
}

func (s *Shared) Disputes() []model.Dispute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Dispute(nil), s.disputes...)
}

func (s *Shared) BindTrade(index int64, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderTrades[orderID] = index
}

func (s *Shared) TradeForOrder(orderID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.orderTrades[orderID]
	return idx, ok
}

func (s *Shared) Notify(key string, n int) {
	s.mu.Lock()
	s.notifications[key] += n
	s.mu.Unlock()
}

func (s *Shared) Pending(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications[key]
}

func (s *Shared) ClearPending(key string) {
	s.mu.Lock()
	delete(s.notifications, key)
	s.mu.Unlock()
}

// AppendChat adds messages not seen before to the transcript for key and
// returns the ones that were new.
func (s *Shared) AppendChat(key string, msgs ...model.ChatMessage) []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []model.ChatMessage
	for _, m := range msgs {
		if _, ok := s.seenChat[m.EventID]; ok {
			continue
		}
		s.seenChat[m.EventID] = struct{}{}
		s.transcripts[key] = append(s.transcripts[key], m)
		added = append(added, m)
	}
	return added
}

// DropChat forgets the transcript and unread count for key. Event ids stay
// marked as seen.
func (s *Shared) DropChat(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, key)
	delete(s.notifications, key)
}

func (s *Shared) Transcript(key string) []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ChatMessage(nil), s.transcripts[key]...)
}

// LastChatAt is the timestamp of the newest message held for key, or 0.
func (s *Shared) LastChatAt(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last int64
	for _, m := range s.transcripts[key] {
		if m.CreatedAt > last {
			last = m.CreatedAt
		}
	}
	return last
}
