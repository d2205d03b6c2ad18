package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/protocol/identity"
	"p2p_trade/internal/service/correlation"
)

var ErrUnexpectedReply = errors.New("unexpected reply")

func (a *App) send(ctx context.Context, keys *identity.Keys, msg *model.Message, opts ...correlation.SendOption) (*model.Message, error) {
	sender := envelope.SenderKeys{Trade: keys.Private, Identity: a.identity.Private}
	if a.Expiry > 0 {
		opts = append(opts, correlation.WithEncoding(envelope.WithExpiry(time.Now().Add(a.Expiry))))
	}
	return a.Sender.SendAndAwait(ctx, msg, sender, a.Facilitator, a.Timeout, opts...)
}

// orderMessage builds a request about an existing order from its trade key.
func (a *App) orderMessage(ctx context.Context, orderID string, action model.Action, payload *model.Payload) (*identity.Keys, *model.Message, error) {
	keys, err := a.TradeKeys(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	idx := int64(keys.Index)
	id := orderID
	return keys, model.NewMessage(model.KindOrder, action, &id, nil, &idx, payload), nil
}

// NewOrder publishes order under a fresh trade key and returns the order as
// accepted by the facilitator.
func (a *App) NewOrder(ctx context.Context, order model.SmallOrder) (*model.SmallOrder, error) {
	if order.Kind == nil || !order.Kind.Valid() {
		return nil, fmt.Errorf("order kind must be buy or sell")
	}
	keys, err := a.NextTradeKeys(ctx)
	if err != nil {
		return nil, err
	}
	idx := int64(keys.Index)
	msg := model.NewMessage(model.KindOrder, model.ActionNewOrder, nil, nil, &idx, model.OrderPayload(order))

	reply, err := a.send(ctx, keys, msg)
	if err != nil {
		return nil, err
	}
	if reply.Payload == nil || reply.Payload.Kind != model.PayloadOrder || reply.Payload.Order.ID == nil {
		return nil, fmt.Errorf("%w: %s without order", ErrUnexpectedReply, reply.Action)
	}
	created := reply.Payload.Order
	role := model.PartySeller
	if *order.Kind == model.OrderKindBuy {
		role = model.PartyBuyer
	}
	if err := a.remember(ctx, *created.ID, keys, *order.Kind, role); err != nil {
		return nil, err
	}
	return created, nil
}

// TakeOrder takes someone else's order. Taking a sell order may carry the
// buyer's invoice; amount picks a value inside a range order.
func (a *App) TakeOrder(ctx context.Context, orderID string, kind model.OrderKind, amount *int64, invoice string) (*model.Message, error) {
	var (
		action  model.Action
		payload *model.Payload
		role    model.Party
	)
	switch kind {
	case model.OrderKindSell:
		action, role = model.ActionTakeSell, model.PartyBuyer
		if invoice != "" {
			payload = model.PaymentRequestPayload(invoice, amount)
		} else if amount != nil {
			payload = model.AmountPayload(*amount)
		}
	case model.OrderKindBuy:
		action, role = model.ActionTakeBuy, model.PartySeller
		if amount != nil {
			payload = model.AmountPayload(*amount)
		}
	default:
		return nil, fmt.Errorf("order kind must be buy or sell")
	}

	keys, err := a.NextTradeKeys(ctx)
	if err != nil {
		return nil, err
	}
	idx := int64(keys.Index)
	id := orderID
	msg := model.NewMessage(model.KindOrder, action, &id, nil, &idx, payload)

	// the key is bound before sending so a late reply can still be matched
	// to the order after a timeout
	if err := a.remember(ctx, orderID, keys, kind, role); err != nil {
		return nil, err
	}
	return a.send(ctx, keys, msg)
}

func (a *App) AddInvoice(ctx context.Context, orderID, invoice string, amount *int64) (*model.Message, error) {
	if invoice == "" {
		return nil, errors.New("invoice is required")
	}
	keys, msg, err := a.orderMessage(ctx, orderID, model.ActionAddInvoice, model.PaymentRequestPayload(invoice, amount))
	if err != nil {
		return nil, err
	}
	return a.send(ctx, keys, msg)
}

func (a *App) FiatSent(ctx context.Context, orderID string) (*model.Message, error) {
	return a.simple(ctx, orderID, model.ActionFiatSent)
}

func (a *App) Release(ctx context.Context, orderID string) (*model.Message, error) {
	return a.simple(ctx, orderID, model.ActionRelease)
}

func (a *App) Cancel(ctx context.Context, orderID string) (*model.Message, error) {
	return a.simple(ctx, orderID, model.ActionCancel)
}

func (a *App) Dispute(ctx context.Context, orderID string) (*model.Message, error) {
	keys, msg, err := a.orderMessage(ctx, orderID, model.ActionDispute, nil)
	if err != nil {
		return nil, err
	}
	msg.Kind = model.KindDispute
	return a.send(ctx, keys, msg)
}

// RateUser rates the counterparty from 1 to 5 stars.
func (a *App) RateUser(ctx context.Context, orderID string, rating uint8) (*model.Message, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating %d out of range 1..5", rating)
	}
	keys, msg, err := a.orderMessage(ctx, orderID, model.ActionRateUser, model.RatingPayload(rating))
	if err != nil {
		return nil, err
	}
	return a.send(ctx, keys, msg)
}

func (a *App) simple(ctx context.Context, orderID string, action model.Action) (*model.Message, error) {
	keys, msg, err := a.orderMessage(ctx, orderID, action, nil)
	if err != nil {
		return nil, err
	}
	return a.send(ctx, keys, msg)
}
