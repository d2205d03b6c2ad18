// Package app wires the protocol engine to local storage and the terminal
// dashboard.
package app

import (
	"context"
	"errors"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/protocol/identity"
	"p2p_trade/internal/service/attachment"
	"p2p_trade/internal/service/chat"
	"p2p_trade/internal/service/correlation"
	"p2p_trade/internal/service/snapshot"
	"p2p_trade/internal/state"
	"p2p_trade/internal/utils/log"

	"github.com/rivo/tview"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNotInitialized = errors.New("no local identity, run init first")

type (
	UserStore interface {
		GetCurrent(ctx context.Context) (*model.User, error)
		Create(ctx context.Context, user *model.User) (primitive.ObjectID, error)
		AdvanceTradeIndex(ctx context.Context, id primitive.ObjectID) (int64, error)
	}

	OrderStore interface {
		Save(ctx context.Context, rec *model.TradeRecord) error
		GetByOrderID(ctx context.Context, orderID string) (*model.TradeRecord, error)
		List(ctx context.Context) ([]model.TradeRecord, error)
	}

	Deps struct {
		Users    UserStore
		Orders   OrderStore
		ChatKeys chat.Store

		Sender      correlation.Sender
		Reconciler  *snapshot.Reconciler
		Channel     *chat.Channel
		Fetcher     *attachment.Fetcher
		Shared      *state.Shared
		Facilitator string
		Timeout     time.Duration
		// Expiry adds an expiration tag to trade requests when positive.
		Expiry time.Duration
		Admin  bool

		PollInterval time.Duration
		DownloadDir  string
	}

	App struct {
		Deps

		user     *model.User
		deriver  *identity.Deriver
		identity *identity.Keys

		app *tview.Application
		ui  *dashboard
	}
)

// New loads the local account. It fails with ErrNotInitialized before init.
func New(ctx context.Context, deps Deps) (*App, error) {
	user, err := deps.Users.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotInitialized
	}
	deriver, err := identity.NewDeriver(user.Mnemonic)
	if err != nil {
		return nil, err
	}
	id, err := deriver.Identity()
	if err != nil {
		return nil, err
	}
	if deps.Shared == nil {
		deps.Shared = state.New()
	}

	a := &App{
		Deps:     deps,
		user:     user,
		deriver:  deriver,
		identity: id,
	}
	if err := a.loadTrades(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) loadTrades(ctx context.Context) error {
	recs, err := a.Orders.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range recs {
		a.Shared.BindTrade(r.TradeIndex, r.OrderID)
	}
	return nil
}

func (a *App) IdentityPubKey() string {
	return a.identity.PubKeyHex()
}

func (a *App) identityKeys() envelope.SenderKeys {
	return envelope.SenderKeys{Trade: a.identity.Private, Identity: a.identity.Private}
}

// Run starts the pollers and blocks in the dashboard until it is closed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	a.startPollers(ctx, g)

	a.app = tview.NewApplication()
	a.ui = newDashboard(a)
	g.Go(func() error {
		a.refreshLoop(ctx)
		return nil
	})

	err := a.app.SetRoot(a.ui.root, true).SetFocus(a.ui.orders).Run()
	cancel()
	if werr := g.Wait(); werr != nil {
		log.Error("poller stopped", zap.Error(werr))
	}
	return err
}

func (a *App) startPollers(ctx context.Context, g *errgroup.Group) {
	interval := a.PollInterval
	if interval <= 0 {
		interval = snapshot.DefaultInterval
	}

	if a.Reconciler != nil {
		p := snapshot.NewPoller(a.Reconciler, a.Shared)
		p.Interval = interval
		g.Go(func() error { return p.Run(ctx) })
	}
	if a.Channel != nil && a.ChatKeys != nil {
		p := chat.NewPoller(a.Channel, a.ChatKeys, a.Shared)
		p.Interval = interval
		if err := p.Load(ctx); err != nil {
			log.Warn("chat cache unavailable", zap.Error(err))
		}
		g.Go(func() error { return p.Run(ctx) })
	}
}

func (a *App) Stop() {
	if a.app != nil {
		a.app.Stop()
	}
}
