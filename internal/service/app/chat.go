package app

import (
	"context"
	"fmt"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/chat"
)

func (a *App) storeChatKey(ctx context.Context, disputeID string, party model.Party, counterparty string) error {
	priv, err := chat.DeriveSharedKey(a.identity.Private, counterparty)
	if err != nil {
		return err
	}
	return a.ChatKeys.PutKey(ctx, &model.SharedChatKey{DisputeID: disputeID, Party: party, Private: priv})
}

// JoinDisputeChat derives the chat key a trade party shares with the admin
// who took the dispute on orderID and caches it.
func (a *App) JoinDisputeChat(ctx context.Context, orderID, disputeID, adminPub string) (*model.SharedChatKey, error) {
	rec, err := a.Orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no trade recorded for order %s", orderID)
	}
	keys, err := a.deriver.Derive(uint32(rec.TradeIndex))
	if err != nil {
		return nil, err
	}
	priv, err := chat.DeriveSharedKey(keys.Private, adminPub)
	if err != nil {
		return nil, err
	}
	k := &model.SharedChatKey{DisputeID: disputeID, Party: rec.Role, Private: priv}
	if err := a.ChatKeys.PutKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// SendDisputeChat writes to the admin from the order's trade key.
func (a *App) SendDisputeChat(ctx context.Context, orderID, disputeID, text string) error {
	rec, err := a.Orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no trade recorded for order %s", orderID)
	}
	k, err := a.ChatKeys.GetKey(ctx, disputeID, rec.Role)
	if err != nil {
		return err
	}
	if k == nil {
		return fmt.Errorf("join the dispute chat for %s first", disputeID)
	}
	keys, err := a.deriver.Derive(uint32(rec.TradeIndex))
	if err != nil {
		return err
	}
	_, err = a.Channel.Send(ctx, k.Private, keys.Private, text)
	return err
}

// CloseDisputeChat drops both parties' chat keys and cached transcripts for
// a resolved dispute so the poller stops fetching them.
func (a *App) CloseDisputeChat(ctx context.Context, disputeID string) error {
	for _, party := range []model.Party{model.PartyBuyer, model.PartySeller} {
		if err := a.ChatKeys.DeleteKey(ctx, disputeID, party); err != nil {
			return fmt.Errorf("close chat %s %s: %w", disputeID, party, err)
		}
		a.Shared.DropChat(chat.TranscriptKey(disputeID, party))
	}
	return nil
}

// DownloadAttachment saves an attachment found in a chat message.
func (a *App) DownloadAttachment(ctx context.Context, msg model.ChatMessage) (string, error) {
	att, ok := model.ParseAttachment(msg.Text)
	if !ok {
		return "", fmt.Errorf("message %s carries no attachment", msg.EventID)
	}
	return a.Fetcher.Download(ctx, att, a.DownloadDir)
}
