package app

import (
	"context"
	"fmt"

	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/protocol/identity"
)

// Bootstrap creates the local account from mnemonic, or a fresh one when
// mnemonic is empty. An existing account is returned unchanged.
func Bootstrap(ctx context.Context, users UserStore, mnemonic string) (*model.User, error) {
	user, err := users.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}

	if user != nil {
		return user, nil
	}

	if mnemonic == "" {
		if mnemonic, err = identity.NewMnemonic(); err != nil {
			return nil, err
		}
	}
	deriver, err := identity.NewDeriver(mnemonic)
	if err != nil {
		return nil, err
	}
	id, err := deriver.Identity()
	if err != nil {
		return nil, err
	}

	user = &model.User{
		Mnemonic:       mnemonic,
		IdentityPubKey: id.PubKeyHex(),
		LastTradeIndex: identity.FirstTradeIdx - 1,
		CreatedAt:      nostr.Now(),
	}

	_, err = users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// NextTradeKeys reserves a trade index that has never been used.
func (a *App) NextTradeKeys(ctx context.Context) (*identity.Keys, error) {
	idx, err := a.Users.AdvanceTradeIndex(ctx, a.user.ID)
	if err != nil {
		return nil, fmt.Errorf("advance trade index: %w", err)
	}
	if idx < identity.FirstTradeIdx {
		return nil, fmt.Errorf("trade index %d collides with the identity key", idx)
	}
	return a.deriver.Derive(uint32(idx))
}

// TradeKeys re-derives the key that negotiates orderID.
func (a *App) TradeKeys(ctx context.Context, orderID string) (*identity.Keys, error) {
	if idx, ok := a.Shared.TradeForOrder(orderID); ok {
		return a.deriver.Derive(uint32(idx))
	}
	rec, err := a.Orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no trade key recorded for order %s", orderID)
	}
	return a.deriver.Derive(uint32(rec.TradeIndex))
}

func (a *App) remember(ctx context.Context, orderID string, keys *identity.Keys, kind model.OrderKind, role model.Party) error {
	rec := &model.TradeRecord{
		OrderID:     orderID,
		TradeIndex:  int64(keys.Index),
		TradePubKey: keys.PubKeyHex(),
		Kind:        string(kind),
		Role:        role,
		CreatedAt:   nostr.Now(),
	}
	if err := a.Orders.Save(ctx, rec); err != nil {
		return err
	}
	a.Shared.BindTrade(rec.TradeIndex, orderID)
	return nil
}
