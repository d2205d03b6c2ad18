package nostr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"p2p_trade/internal/utils/log"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	subscriptionBuffer = 256
	writeTimeout       = 10 * time.Second
)

var ErrRelayClosed = errors.New("relay connection closed")

type (
	// Relay is a single websocket connection to one relay.
	Relay struct {
		URL string

		conn    *websocket.Conn
		writeMu sync.Mutex

		mu   sync.Mutex
		subs map[string]*relaySub
		oks  map[string]chan okResult

		done chan struct{}
		err  error
	}

	relaySub struct {
		id      string
		filters []Filter
		events  chan *Event
		eose    chan struct{}
		closed  chan struct{}

		eoseOnce  sync.Once
		closeOnce sync.Once
	}

	okResult struct {
		accepted bool
		message  string
	}
)

// Connect dials url and starts the read loop.
func Connect(ctx context.Context, url string) (*Relay, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	r := &Relay{
		URL:  url,
		conn: conn,
		subs: make(map[string]*relaySub),
		oks:  make(map[string]chan okResult),
		done: make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) Close() error {
	r.shutdown(ErrRelayClosed)
	return r.conn.Close()
}

func (r *Relay) shutdown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return
	default:
	}
	r.err = err
	close(r.done)
	for id, s := range r.subs {
		s.close()
		delete(r.subs, id)
	}
}

func (r *Relay) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return r.conn.WriteMessage(websocket.TextMessage, data)
}

// subscribe registers id before sending REQ so no early event is lost.
func (r *Relay) subscribe(id string, filters []Filter) (*relaySub, error) {
	s := &relaySub{
		id:      id,
		filters: filters,
		events:  make(chan *Event, subscriptionBuffer),
		eose:    make(chan struct{}),
		closed:  make(chan struct{}),
	}

	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil, ErrRelayClosed
	default:
	}
	r.subs[id] = s
	r.mu.Unlock()

	req := make([]any, 0, 2+len(filters))
	req = append(req, "REQ", id)
	for _, f := range filters {
		req = append(req, f)
	}
	if err := r.write(req); err != nil {
		r.unsubscribe(id)
		return nil, err
	}
	return s, nil
}

func (r *Relay) unsubscribe(id string) {
	r.mu.Lock()
	s, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	if err := r.write([]any{"CLOSE", id}); err != nil {
		log.Debug("relay close subscription", zap.String("relay", r.URL), zap.Error(err))
	}
}

// Publish sends the event and waits for the relay's OK.
func (r *Relay) Publish(ctx context.Context, ev *Event) error {
	ch := make(chan okResult, 1)
	r.mu.Lock()
	r.oks[ev.ID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.oks, ev.ID)
		r.mu.Unlock()
	}()

	if err := r.write([]any{"EVENT", ev}); err != nil {
		return fmt.Errorf("%s: %w", r.URL, err)
	}

	select {
	case res := <-ch:
		if !res.accepted {
			return fmt.Errorf("%s rejected event: %s", r.URL, res.message)
		}
		return nil
	case <-r.done:
		return fmt.Errorf("%s: %w", r.URL, ErrRelayClosed)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", r.URL, ctx.Err())
	}
}

func (r *Relay) readLoop() {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			log.Debug("relay web socket closed", zap.String("relay", r.URL), zap.Error(err))
			r.shutdown(err)
			r.conn.Close()
			return
		}
		r.handle(data)
	}
}

func (r *Relay) handle(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
		log.Debug("relay frame unparseable", zap.String("relay", r.URL))
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		var ev Event
		if json.Unmarshal(frame[1], &subID) != nil || json.Unmarshal(frame[2], &ev) != nil {
			return
		}
		r.deliver(subID, &ev)
	case "EOSE":
		var subID string
		if json.Unmarshal(frame[1], &subID) != nil {
			return
		}
		r.mu.Lock()
		s := r.subs[subID]
		r.mu.Unlock()
		if s != nil {
			s.eoseOnce.Do(func() { close(s.eose) })
		}
	case "OK":
		if len(frame) < 3 {
			return
		}
		var id string
		var res okResult
		if json.Unmarshal(frame[1], &id) != nil || json.Unmarshal(frame[2], &res.accepted) != nil {
			return
		}
		if len(frame) > 3 {
			_ = json.Unmarshal(frame[3], &res.message)
		}
		r.mu.Lock()
		ch := r.oks[id]
		r.mu.Unlock()
		if ch != nil {
			select {
			case ch <- res:
			default:
			}
		}
	case "CLOSED":
		var subID, msg string
		_ = json.Unmarshal(frame[1], &subID)
		if len(frame) > 2 {
			_ = json.Unmarshal(frame[2], &msg)
		}
		log.Debug("relay closed subscription", zap.String("relay", r.URL), zap.String("sub", subID), zap.String("reason", msg))
		r.mu.Lock()
		s := r.subs[subID]
		delete(r.subs, subID)
		r.mu.Unlock()
		if s != nil {
			s.close()
		}
	case "NOTICE":
		var msg string
		_ = json.Unmarshal(frame[1], &msg)
		log.Debug("relay notice", zap.String("relay", r.URL), zap.String("notice", msg))
	}
}

// deliver drops events that fail verification or do not match the
// subscription's filters; relays are untrusted.
func (r *Relay) deliver(subID string, ev *Event) {
	r.mu.Lock()
	s := r.subs[subID]
	r.mu.Unlock()
	if s == nil {
		return
	}
	if err := ev.Verify(); err != nil {
		log.Debug("relay sent invalid event", zap.String("relay", r.URL), zap.String("id", ev.ID), zap.Error(err))
		return
	}
	if !s.matches(ev) {
		return
	}
	select {
	case s.events <- ev:
	case <-s.closed:
	case <-r.done:
	}
}

func (s *relaySub) matches(ev *Event) bool {
	for _, f := range s.filters {
		if f.Matches(ev) {
			return true
		}
	}
	return len(s.filters) == 0
}

func (s *relaySub) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
