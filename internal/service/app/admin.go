package app

import (
	"context"
	"errors"
	"fmt"

	"p2p_trade/internal/model"
	"p2p_trade/internal/protocol/envelope"
	"p2p_trade/internal/service/correlation"
)

var ErrNotAdmin = errors.New("admin mode is off")

// admin requests are sent from the identity key and must be attributable
func (a *App) adminSend(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if !a.Admin {
		return nil, ErrNotAdmin
	}
	return a.Sender.SendAndAwait(ctx, msg, a.identityKeys(), a.Facilitator, a.Timeout,
		correlation.WithMode(envelope.SignedWrap))
}

// TakeDispute assigns the dispute to this admin and caches a chat key for
// each trade party named in the reply.
func (a *App) TakeDispute(ctx context.Context, disputeID string) (*model.SmallOrder, error) {
	id := disputeID
	msg := model.NewMessage(model.KindDispute, model.ActionAdminTakeDispute, &id, nil, nil, nil)
	reply, err := a.adminSend(ctx, msg)
	if err != nil {
		return nil, err
	}
	if reply.Payload == nil || reply.Payload.Kind != model.PayloadOrder {
		return nil, fmt.Errorf("%w: %s without order", ErrUnexpectedReply, reply.Action)
	}
	order := reply.Payload.Order

	parties := map[model.Party]*string{
		model.PartyBuyer:  order.BuyerTradePubkey,
		model.PartySeller: order.SellerTradePubkey,
	}
	for party, pub := range parties {
		if pub == nil || *pub == "" {
			continue
		}
		if err := a.storeChatKey(ctx, disputeID, party, *pub); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (a *App) AdminSettle(ctx context.Context, orderID string) (*model.Message, error) {
	id := orderID
	return a.adminSend(ctx, model.NewMessage(model.KindOrder, model.ActionAdminSettle, &id, nil, nil, nil))
}

func (a *App) AdminCancel(ctx context.Context, orderID string) (*model.Message, error) {
	id := orderID
	return a.adminSend(ctx, model.NewMessage(model.KindOrder, model.ActionAdminCancel, &id, nil, nil, nil))
}

// AdminSendChat writes to one party of a taken dispute.
func (a *App) AdminSendChat(ctx context.Context, disputeID string, party model.Party, text string) error {
	if !a.Admin {
		return ErrNotAdmin
	}
	k, err := a.ChatKeys.GetKey(ctx, disputeID, party)
	if err != nil {
		return err
	}
	if k == nil {
		return fmt.Errorf("no chat key for dispute %s %s", disputeID, party)
	}
	_, err = a.Channel.Send(ctx, k.Private, a.identity.Private, text)
	return err
}
