package chat

import (
	"context"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/state"
	"p2p_trade/internal/utils/log"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 10 * time.Second
	maxConcurrent   = 8
)

// Store is where shared keys and transcripts are cached between runs.
type Store interface {
	Keys(ctx context.Context) ([]*model.SharedChatKey, error)
	PutKey(ctx context.Context, k *model.SharedChatKey) error
	GetKey(ctx context.Context, disputeID string, party model.Party) (*model.SharedChatKey, error)
	AppendMessages(ctx context.Context, disputeID string, party model.Party, msgs ...model.ChatMessage) error
	Messages(ctx context.Context, disputeID string, party model.Party) ([]model.ChatMessage, error)
	DeleteKey(ctx context.Context, disputeID string, party model.Party) error
}

func TranscriptKey(disputeID string, party model.Party) string {
	return disputeID + "/" + string(party)
}

// Poller fetches new messages for every cached key, one fetch per
// (dispute, party), concurrently.
type Poller struct {
	channel *Channel
	store   Store
	shared  *state.Shared

	Interval time.Duration
	Timeout  time.Duration
}

func NewPoller(channel *Channel, store Store, shared *state.Shared) *Poller {
	return &Poller{
		channel:  channel,
		store:    store,
		shared:   shared,
		Interval: DefaultInterval,
		Timeout:  DefaultInterval,
	}
}

// Load seeds the shared transcripts from the store.
func (p *Poller) Load(ctx context.Context) error {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		msgs, err := p.store.Messages(ctx, k.DisputeID, k.Party)
		if err != nil {
			return err
		}
		p.shared.AppendChat(TranscriptKey(k.DisputeID, k.Party), msgs...)
	}
	return nil
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		if err := p.PollOnce(ctx); err != nil {
			log.Error("chat poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fails only if the key list cannot be read; a failing fetch for
// one key is logged and does not stop the others.
func (p *Poller) PollOnce(ctx context.Context) error {
	keys, err := p.store.Keys(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, k := range keys {
		k := k
		g.Go(func() error {
			p.poll(ctx, k)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) poll(ctx context.Context, k *model.SharedChatKey) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	tk := TranscriptKey(k.DisputeID, k.Party)
	// messages sharing the newest second are refetched and deduplicated
	since := p.shared.LastChatAt(tk)
	if since > 0 {
		since--
	}
	msgs, err := p.channel.FetchNew(ctx, k.Private, since)
	if err != nil {
		log.Warn("chat fetch failed", zap.String("dispute", k.DisputeID), zap.String("party", string(k.Party)), zap.Error(err))
		return
	}
	added := p.shared.AppendChat(tk, msgs...)
	if len(added) == 0 {
		return
	}
	p.shared.Notify(tk, len(added))
	if err := p.store.AppendMessages(ctx, k.DisputeID, k.Party, added...); err != nil {
		log.Warn("chat cache write failed", zap.String("dispute", k.DisputeID), zap.Error(err))
	}
}
