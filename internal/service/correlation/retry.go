package correlation

import (
	"context"
	"errors"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/utils/log"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Retrying resends a request whose reply timed out. Refusals, decode
// failures and transport errors are returned as is. Every attempt carries
// the same request id so a late reply to an earlier attempt still matches.
type Retrying struct {
	next     Sender
	attempts uint64
	base     time.Duration
}

var _ Sender = (*Retrying)(nil)

func NewRetrying(next Sender, attempts uint64, base time.Duration) *Retrying {
	return &Retrying{next: next, attempts: attempts, base: base}
}

func (r *Retrying) SendAndAwait(ctx context.Context, msg *model.Message, keys envelope.SenderKeys, recipient string, timeout time.Duration, opts ...SendOption) (*model.Message, error) {
	if r.attempts <= 1 {
		return r.next.SendAndAwait(ctx, msg, keys, recipient, timeout, opts...)
	}
	if msg.RequestID == nil {
		rid := model.NewRequestID()
		msg.RequestID = &rid
	}

	backoff := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.base))

	var reply *model.Message
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, err := r.next.SendAndAwait(ctx, msg, keys, recipient, timeout, opts...)
		if errors.Is(err, ErrTimedOut) {
			log.Info("no reply, retrying",
				zap.String("action", string(msg.Action)),
				zap.Uint64("request_id", *msg.RequestID),
				zap.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}
