package snapshot

import (
	"context"
	"time"

	"p2p_trade/internal/state"
	"p2p_trade/internal/utils/log"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultInterval = 10 * time.Second

// Poller refreshes orders and disputes in the shared state on two
// independent tickers.
type Poller struct {
	rec    *Reconciler
	shared *state.Shared

	Interval time.Duration
	Orders   OrderFilter
	Disputes DisputeFilter
}

func NewPoller(rec *Reconciler, shared *state.Shared) *Poller {
	return &Poller{rec: rec, shared: shared, Interval: DefaultInterval}
}

// Run blocks until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(ctx, p.PollOrders) })
	g.Go(func() error { return p.loop(ctx, p.PollDisputes) })
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, poll func(context.Context) error) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		if err := poll(ctx); err != nil {
			log.Error("snapshot poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) PollOrders(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Interval)
	defer cancel()
	orders, err := p.rec.FetchOrders(ctx, p.Orders)
	if err != nil {
		return err
	}
	p.shared.SetOrders(orders)
	return nil
}

func (p *Poller) PollDisputes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Interval)
	defer cancel()
	disputes, err := p.rec.FetchDisputes(ctx, p.Disputes)
	if err != nil {
		return err
	}
	p.shared.SetDisputes(disputes)
	return nil
}
