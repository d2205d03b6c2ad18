// Package modeltest holds rapid generators for protocol messages.
package modeltest

import (
	"p2p_trade/internal/model"

	"pgregory.net/rapid"
)

var actions = []model.Action{
	model.ActionNewOrder, model.ActionTakeSell, model.ActionTakeBuy, model.ActionAddInvoice,
	model.ActionFiatSent, model.ActionRelease, model.ActionCancel, model.ActionDispute,
	model.ActionRateUser, model.ActionRateReceived, model.ActionCantDo, model.ActionAdminSettle,
	model.ActionAdminTakeDispute, model.ActionSendDM, model.ActionTradePubkey,
	model.Action("future-action"),
}

var kinds = []model.MessageKind{
	model.KindOrder, model.KindDispute, model.KindCantDo, model.KindRate, model.KindDM, model.KindRestore,
}

func ptr[T any](g *rapid.Generator[T]) *rapid.Generator[*T] {
	return rapid.Custom(func(t *rapid.T) *T {
		if rapid.Bool().Draw(t, "present") {
			v := g.Draw(t, "v")
			return &v
		}
		return nil
	})
}

func SmallOrder() *rapid.Generator[model.SmallOrder] {
	return rapid.Custom(func(t *rapid.T) model.SmallOrder {
		kind := rapid.SampledFrom([]model.OrderKind{model.OrderKindBuy, model.OrderKindSell}).Draw(t, "kind")
		status := rapid.SampledFrom([]model.OrderStatus{model.StatusPending, model.StatusActive}).Draw(t, "status")
		return model.SmallOrder{
			ID:            ptr(rapid.StringMatching(`[0-9a-f]{8}-[0-9a-f]{4}`)).Draw(t, "id"),
			Kind:          &kind,
			Status:        &status,
			Amount:        rapid.Int64Range(0, 1_000_000).Draw(t, "amount"),
			FiatCode:      rapid.SampledFrom([]string{"USD", "EUR", "VES", "ARS"}).Draw(t, "fiat"),
			MinAmount:     ptr(rapid.Int64Range(1, 100)).Draw(t, "min"),
			MaxAmount:     ptr(rapid.Int64Range(100, 1000)).Draw(t, "max"),
			FiatAmount:    rapid.Int64Range(0, 10_000).Draw(t, "fa"),
			PaymentMethod: rapid.StringMatching(`[a-z ,]{0,20}`).Draw(t, "pm"),
			Premium:       rapid.Int64Range(-10, 10).Draw(t, "premium"),
			BuyerInvoice:  ptr(rapid.StringMatching(`lnbc[0-9a-z]{10}`)).Draw(t, "invoice"),
			CreatedAt:     ptr(rapid.Int64Range(1, 2_000_000_000)).Draw(t, "created"),
		}
	})
}

func Payload() *rapid.Generator[*model.Payload] {
	return rapid.Custom(func(t *rapid.T) *model.Payload {
		switch rapid.IntRange(0, 8).Draw(t, "variant") {
		case 0:
			return nil
		case 1:
			return model.OrderPayload(SmallOrder().Draw(t, "order"))
		case 2:
			return model.TextPayload(rapid.StringN(0, 200, -1).Draw(t, "text"))
		case 3:
			return model.AmountPayload(rapid.Int64Range(0, 1<<40).Draw(t, "amount"))
		case 4:
			return model.RatingPayload(uint8(rapid.IntRange(1, 5).Draw(t, "rating")))
		case 5:
			amt := ptr(rapid.Int64Range(1, 1<<30)).Draw(t, "amt")
			return model.PaymentRequestPayload(rapid.StringMatching(`lnbc[0-9a-z]{20}`).Draw(t, "inv"), amt)
		case 6:
			r := rapid.SampledFrom([]model.CantDoReason{model.CantDoNotFound, model.CantDoInvalidAmount}).Draw(t, "reason")
			return model.CantDoPayload(&r)
		case 7:
			return model.NextTradePayload(rapid.StringMatching(`[0-9a-f]{64}`).Draw(t, "pk"), rapid.Uint32().Draw(t, "idx"))
		default:
			return &model.Payload{Kind: model.PayloadDispute, Dispute: &model.DisputeRef{
				ID:    rapid.StringMatching(`[0-9a-f]{8}`).Draw(t, "did"),
				Token: ptr(rapid.Uint16()).Draw(t, "token"),
			}}
		}
	})
}

// Message draws arbitrary well-formed protocol messages.
func Message() *rapid.Generator[*model.Message] {
	return rapid.Custom(func(t *rapid.T) *model.Message {
		var rid *uint64
		if rapid.Bool().Draw(t, "has_rid") {
			v := rapid.Uint64Range(1, 1<<53-1).Draw(t, "rid")
			rid = &v
		}
		return model.NewMessage(
			rapid.SampledFrom(kinds).Draw(t, "kind"),
			rapid.SampledFrom(actions).Draw(t, "action"),
			ptr(rapid.StringMatching(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}`)).Draw(t, "id"),
			rid,
			ptr(rapid.Int64Range(1, 1<<31)).Draw(t, "trade_index"),
			Payload().Draw(t, "payload"),
		)
	})
}
