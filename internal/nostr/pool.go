package nostr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"p2p_trade/internal/utils/log"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const seenCacheSize = 4096

var ErrNoRelays = errors.New("no relay reachable")

type (
	// Network is the part of the relay pool the protocol engine depends on.
	Network interface {
		Subscribe(ctx context.Context, filters ...Filter) (*Subscription, error)
		Publish(ctx context.Context, ev *Event) error
		Query(ctx context.Context, filters ...Filter) ([]*Event, error)
	}

	// Subscription merges one REQ across every relay. Events are deduplicated by id.
	// EOSE is closed once every relay has signalled end of stored events.
	Subscription struct {
		Events <-chan *Event
		EOSE   <-chan struct{}

		cancel context.CancelFunc
		wg     sync.WaitGroup
		once   sync.Once
	}

	Pool struct {
		urls []string

		mu     sync.Mutex
		relays map[string]*Relay
	}
)

var _ Network = (*Pool)(nil)

func NewPool(urls []string) *Pool {
	return &Pool{
		urls:   urls,
		relays: make(map[string]*Relay),
	}
}

// NewSubscription wraps channels fed by another Network implementation.
// stop is called once on Close.
func NewSubscription(events <-chan *Event, eose <-chan struct{}, stop func()) *Subscription {
	return &Subscription{Events: events, EOSE: eose, cancel: stop}
}

// Close releases the listener and waits for relay forwarders to exit.
// It does not cancel publishes already in flight.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// relay returns a live connection to url, redialing if the previous one dropped.
func (p *Pool) relay(ctx context.Context, url string) (*Relay, error) {
	p.mu.Lock()
	r, ok := p.relays[url]
	p.mu.Unlock()
	if ok {
		select {
		case <-r.Done():
		default:
			return r, nil
		}
	}

	r, err := Connect(ctx, url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.relays[url]; ok && cur != r {
		select {
		case <-cur.Done():
		default:
			r.Close()
			return cur, nil
		}
	}
	p.relays[url] = r
	return r, nil
}

func (p *Pool) connected(ctx context.Context) ([]*Relay, error) {
	var (
		out  []*Relay
		errs error
	)
	for _, url := range p.urls {
		r, err := p.relay(ctx, url)
		if err != nil {
			log.Warn("relay unreachable", zap.String("relay", url), zap.Error(err))
			errs = multierror.Append(errs, err)
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		if errs == nil {
			return nil, ErrNoRelays
		}
		return nil, fmt.Errorf("%w: %v", ErrNoRelays, errs)
	}
	return out, nil
}

func (p *Pool) Subscribe(ctx context.Context, filters ...Filter) (*Subscription, error) {
	relays, err := p.connected(ctx)
	if err != nil {
		return nil, err
	}

	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	subCtx, cancel := context.WithCancel(context.Background())
	events := make(chan *Event, subscriptionBuffer)
	eose := make(chan struct{})
	sub := &Subscription{Events: events, EOSE: eose, cancel: cancel}

	var pending sync.WaitGroup
	for _, r := range relays {
		rs, err := r.subscribe(id, filters)
		if err != nil {
			log.Warn("relay subscribe failed", zap.String("relay", r.URL), zap.Error(err))
			continue
		}
		pending.Add(1)
		sub.wg.Add(1)
		go func(r *Relay, rs *relaySub) {
			defer sub.wg.Done()
			defer r.unsubscribe(rs.id)

			eoseSeen := false
			markEOSE := func() {
				if !eoseSeen {
					eoseSeen = true
					pending.Done()
				}
			}
			defer markEOSE()

			forward := func(ev *Event) bool {
				if ok, _ := seen.ContainsOrAdd(ev.ID, struct{}{}); ok {
					return true
				}
				select {
				case events <- ev:
					return true
				case <-subCtx.Done():
					return false
				}
			}

			for {
				select {
				case <-subCtx.Done():
					return
				case <-rs.closed:
					return
				case <-rs.eose:
					// stored events queued before EOSE must reach the caller first
					for drained := false; !drained; {
						select {
						case ev := <-rs.events:
							if !forward(ev) {
								return
							}
						default:
							drained = true
						}
					}
					markEOSE()
					rs.eose = nil
				case ev := <-rs.events:
					if !forward(ev) {
						return
					}
				}
			}
		}(r, rs)
	}

	go func() {
		pending.Wait()
		close(eose)
	}()
	return sub, nil
}

// Publish sends ev to every relay and succeeds if at least one accepts it.
func (p *Pool) Publish(ctx context.Context, ev *Event) error {
	relays, err := p.connected(ctx)
	if err != nil {
		return &TransportError{Op: "publish", Err: err}
	}

	var (
		g        multierror.Group
		mu       sync.Mutex
		accepted int
	)
	for _, r := range relays {
		r := r
		g.Go(func() error {
			if err := r.Publish(ctx, ev); err != nil {
				return err
			}
			mu.Lock()
			accepted++
			mu.Unlock()
			return nil
		})
	}
	errs := g.Wait()
	if accepted == 0 {
		return &TransportError{Op: "publish", Err: errs.ErrorOrNil()}
	}
	if errs.ErrorOrNil() != nil {
		log.Debug("publish partially failed", zap.String("id", ev.ID), zap.Error(errs))
	}
	return nil
}

// Query collects stored events until every relay sends EOSE or ctx ends.
// A deadline with some events already collected yields a partial result.
func (p *Pool) Query(ctx context.Context, filters ...Filter) ([]*Event, error) {
	sub, err := p.Subscribe(ctx, filters...)
	if err != nil {
		return nil, &TransportError{Op: "query", Err: err}
	}
	defer sub.Close()

	var out []*Event
	for {
		select {
		case ev := <-sub.Events:
			out = append(out, ev)
		case <-sub.EOSE:
			return drain(out, sub.Events), nil
		case <-ctx.Done():
			if len(out) > 0 {
				return out, nil
			}
			return nil, &TransportError{Op: "query", Err: ctx.Err()}
		}
	}
}

func drain(out []*Event, ch <-chan *Event) []*Event {
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, r := range p.relays {
		r.Close()
		delete(p.relays, url)
	}
}

// TransportError is a network fetch or publish failure. It is not retried here.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "transport " + e.Op + " failed"
	}
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
