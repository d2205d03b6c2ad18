// Package relaytest runs an in-memory relay over a real websocket for tests.
// It stores every accepted event, answers REQ with stored matches followed by
// EOSE, and fans new events out to live subscriptions.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"p2p_trade/internal/nostr"
	"p2p_trade/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type (
	Relay struct {
		server *httptest.Server

		mu     sync.Mutex
		events []*nostr.Event
		conns  map[*conn]struct{}

		// OnEvent runs after an event is stored and broadcast. Tests use it to
		// play the counterparty.
		OnEvent func(ev *nostr.Event)
	}

	conn struct {
		ws      *websocket.Conn
		writeMu sync.Mutex

		mu   sync.Mutex
		subs map[string][]nostr.Filter
	}
)

func New() *Relay {
	r := &Relay{conns: make(map[*conn]struct{})}

	router := mux.NewRouter()
	router.HandleFunc("/", r.handleWS()).Methods(http.MethodGet)
	r.server = httptest.NewServer(router)
	return r
}

// URL is the ws:// address of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *Relay) Close() {
	r.mu.Lock()
	for c := range r.conns {
		c.ws.Close()
	}
	r.mu.Unlock()
	r.server.Close()
}

// Store adds events as if they had been published earlier.
func (r *Relay) Store(evs ...*nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

// Events returns a copy of everything stored.
func (r *Relay) Events() []*nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*nostr.Event(nil), r.events...)
}

// Publish stores ev and pushes it to matching live subscriptions.
func (r *Relay) Publish(ev *nostr.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	conns := make([]*conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.broadcast(ev)
	}
}

func (r *Relay) handleWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			http.Error(w, "Failed to upgrade", http.StatusInternalServerError)
			return
		}

		c := &conn{ws: ws, subs: make(map[string][]nostr.Filter)}
		r.mu.Lock()
		r.conns[c] = struct{}{}
		r.mu.Unlock()

		go r.processWSMessage(c)
	}
}

func (r *Relay) processWSMessage(c *conn) {
	defer func() {
		r.mu.Lock()
		delete(r.conns, c)
		r.mu.Unlock()
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			log.Debug("test relay socket closed", zap.Error(err))
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
			c.send([]any{"NOTICE", "invalid frame"})
			continue
		}
		var label string
		_ = json.Unmarshal(frame[0], &label)

		switch label {
		case "EVENT":
			var ev nostr.Event
			if err := json.Unmarshal(frame[1], &ev); err != nil {
				c.send([]any{"NOTICE", "invalid event"})
				continue
			}
			if err := ev.Verify(); err != nil {
				c.send([]any{"OK", ev.ID, false, "invalid: " + err.Error()})
				continue
			}
			c.send([]any{"OK", ev.ID, true, ""})
			r.Publish(&ev)
			if r.OnEvent != nil {
				r.OnEvent(&ev)
			}
		case "REQ":
			var subID string
			_ = json.Unmarshal(frame[1], &subID)
			filters := make([]nostr.Filter, 0, len(frame)-2)
			for _, raw := range frame[2:] {
				var f nostr.Filter
				if err := json.Unmarshal(raw, &f); err == nil {
					filters = append(filters, f)
				}
			}
			c.mu.Lock()
			c.subs[subID] = filters
			c.mu.Unlock()

			for _, ev := range r.Events() {
				if matchesAny(filters, ev) {
					c.send([]any{"EVENT", subID, ev})
				}
			}
			c.send([]any{"EOSE", subID})
		case "CLOSE":
			var subID string
			_ = json.Unmarshal(frame[1], &subID)
			c.mu.Lock()
			delete(c.subs, subID)
			c.mu.Unlock()
		}
	}
}

func (c *conn) broadcast(ev *nostr.Event) {
	c.mu.Lock()
	var ids []string
	for id, filters := range c.subs {
		if matchesAny(filters, ev) {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.send([]any{"EVENT", id, ev})
	}
}

func (c *conn) send(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		log.Debug("test relay write failed", zap.Error(err))
	}
}

func matchesAny(filters []nostr.Filter, ev *nostr.Event) bool {
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}
