package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/utils/log"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second

	// replies are gift wraps whose timestamps may be backdated by up to two
	// days, so the subscription has to look that far back
	DefaultLookback = envelope.DefaultJitter + time.Hour

	clockSkew = 30
)

var ErrTimedOut = errors.New("timed out waiting for response")

// RefusalError is an explicit cant-do from the peer. It is a final answer,
// not retried.
type RefusalError struct {
	Reason    model.CantDoReason
	RequestID uint64
}

func (e *RefusalError) Error() string {
	return "request refused: " + e.Reason.Description()
}

type (
	// Sender is what callers depend on; Engine and Retrying both satisfy it.
	Sender interface {
		SendAndAwait(ctx context.Context, msg *model.Message, keys envelope.SenderKeys, recipient string, timeout time.Duration, opts ...SendOption) (*model.Message, error)
	}

	Engine struct {
		network nostr.Network
		codec   *envelope.Codec

		// Mode is the envelope used unless a call overrides it.
		Mode     envelope.Mode
		Lookback time.Duration

		unsolicited map[model.Action]struct{}
	}

	sendOptions struct {
		mode     *envelope.Mode
		encoding []envelope.Option
	}

	SendOption func(*sendOptions)
)

var _ Sender = (*Engine)(nil)

// WithMode overrides the engine's default envelope for one call.
func WithMode(m envelope.Mode) SendOption {
	return func(o *sendOptions) { o.mode = &m }
}

// WithEncoding forwards options to the envelope codec.
func WithEncoding(opts ...envelope.Option) SendOption {
	return func(o *sendOptions) { o.encoding = append(o.encoding, opts...) }
}

// DefaultUnsolicited are the actions accepted without a request id.
var DefaultUnsolicited = []model.Action{model.ActionRateReceived, model.ActionNewOrder}

func NewEngine(network nostr.Network, codec *envelope.Codec, mode envelope.Mode) *Engine {
	e := &Engine{
		network:     network,
		codec:       codec,
		Mode:        mode,
		Lookback:    DefaultLookback,
		unsolicited: make(map[model.Action]struct{}),
	}
	for _, a := range DefaultUnsolicited {
		e.unsolicited[a] = struct{}{}
	}
	return e
}

// SendAndAwait publishes msg to recipient and waits for the matching reply.
//
// The reply subscription is open before the request is published. Replies
// carrying another request id are ignored; a cant-do reply ends the call
// with a *RefusalError. A message without a request id is accepted only for
// an allow-listed action, only from recipient, and only if it was written
// after this call started.
func (e *Engine) SendAndAwait(ctx context.Context, msg *model.Message, keys envelope.SenderKeys, recipient string, timeout time.Duration, opts ...SendOption) (*model.Message, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	mode := e.Mode
	if o.mode != nil {
		mode = *o.mode
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if msg.RequestID == nil {
		rid := model.NewRequestID()
		msg.RequestID = &rid
	}
	requestID := *msg.RequestID
	if keys.Trade == nil {
		return nil, errors.New("send: missing trade key")
	}
	tradePub := dh.PubKeyHex(keys.Trade)
	started := nostr.Now()

	filter := nostr.Filter{
		Kinds: []int{nostr.KindGiftWrap, nostr.KindPrivateDM},
		Tags:  map[string][]string{"p": {tradePub}},
		Since: nostr.Timestamp(started - int64(e.Lookback/time.Second)),
	}
	sub, err := e.network.Subscribe(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("subscribe for reply: %w", err)
	}
	defer sub.Close()

	ev, err := e.codec.Encode(ctx, msg, mode, keys, recipient, o.encoding...)
	if err != nil {
		return nil, err
	}
	if err := e.network.Publish(ctx, ev); err != nil {
		return nil, err
	}
	log.Debug("request published",
		zap.String("action", string(msg.Action)),
		zap.Uint64("request_id", requestID),
		zap.String("event", ev.ID))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s after %s", ErrTimedOut, msg.Action, timeout)
		case in := <-sub.Events:
			d, err := e.codec.Decode(in, keys.Trade)
			if err != nil {
				log.Debug("dropping undecodable event", zap.String("event", in.ID), zap.Error(err))
				continue
			}
			if !e.correlates(d, requestID, recipient, started) {
				log.Debug("ignoring unrelated message",
					zap.String("event", in.ID),
					zap.String("action", string(d.Message.Action)),
					zap.Uint64("request_id", requestID))
				continue
			}
			if reason, refused := d.Message.RefusalReason(); refused {
				return nil, &RefusalError{Reason: reason, RequestID: requestID}
			}
			return d.Message, nil
		}
	}
}

func (e *Engine) correlates(d *envelope.Decoded, requestID uint64, recipient string, started int64) bool {
	if rid := d.Message.RequestID; rid != nil {
		return *rid == requestID
	}
	if _, ok := e.unsolicited[d.Message.Action]; !ok {
		return false
	}
	return d.Sender == recipient && d.CreatedAt >= started-clockSkew
}
