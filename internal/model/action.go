package model

// Action is the verb carried by every protocol message. The set is closed;
// values outside it still decode and round-trip but report Known() == false.
type Action string

const (
	ActionNewOrder                         Action = "new-order"
	ActionTakeSell                         Action = "take-sell"
	ActionTakeBuy                          Action = "take-buy"
	ActionPayInvoice                       Action = "pay-invoice"
	ActionFiatSent                         Action = "fiat-sent"
	ActionFiatSentOk                       Action = "fiat-sent-ok"
	ActionRelease                          Action = "release"
	ActionReleased                         Action = "released"
	ActionCancel                           Action = "cancel"
	ActionCanceled                         Action = "canceled"
	ActionCooperativeCancelInitiatedByYou  Action = "cooperative-cancel-initiated-by-you"
	ActionCooperativeCancelInitiatedByPeer Action = "cooperative-cancel-initiated-by-peer"
	ActionCooperativeCancelAccepted        Action = "cooperative-cancel-accepted"
	ActionDisputeInitiatedByYou            Action = "dispute-initiated-by-you"
	ActionDisputeInitiatedByPeer           Action = "dispute-initiated-by-peer"
	ActionBuyerInvoiceAccepted             Action = "buyer-invoice-accepted"
	ActionPurchaseCompleted                Action = "purchase-completed"
	ActionHoldInvoicePaymentAccepted       Action = "hold-invoice-payment-accepted"
	ActionHoldInvoicePaymentSettled        Action = "hold-invoice-payment-settled"
	ActionHoldInvoicePaymentCanceled       Action = "hold-invoice-payment-canceled"
	ActionWaitingSellerToPay               Action = "waiting-seller-to-pay"
	ActionWaitingBuyerInvoice              Action = "waiting-buyer-invoice"
	ActionAddInvoice                       Action = "add-invoice"
	ActionBuyerTookOrder                   Action = "buyer-took-order"
	ActionRate                             Action = "rate"
	ActionRateUser                         Action = "rate-user"
	ActionRateReceived                     Action = "rate-received"
	ActionCantDo                           Action = "cant-do"
	ActionDispute                          Action = "dispute"
	ActionAdminCancel                      Action = "admin-cancel"
	ActionAdminCanceled                    Action = "admin-canceled"
	ActionAdminSettle                      Action = "admin-settle"
	ActionAdminSettled                     Action = "admin-settled"
	ActionAdminAddSolver                   Action = "admin-add-solver"
	ActionAdminTakeDispute                 Action = "admin-take-dispute"
	ActionAdminTookDispute                 Action = "admin-took-dispute"
	ActionPaymentFailed                    Action = "payment-failed"
	ActionInvoiceUpdated                   Action = "invoice-updated"
	ActionSendDM                           Action = "send-dm"
	ActionTradePubkey                      Action = "trade-pubkey"
	ActionRestoreSession                   Action = "restore-session"
	ActionLastTradeIndex                   Action = "last-trade-index"
	ActionOrders                           Action = "orders"
)

var knownActions = map[Action]struct{}{
	ActionNewOrder: {}, ActionTakeSell: {}, ActionTakeBuy: {}, ActionPayInvoice: {},
	ActionFiatSent: {}, ActionFiatSentOk: {}, ActionRelease: {}, ActionReleased: {},
	ActionCancel: {}, ActionCanceled: {}, ActionCooperativeCancelInitiatedByYou: {},
	ActionCooperativeCancelInitiatedByPeer: {}, ActionCooperativeCancelAccepted: {},
	ActionDisputeInitiatedByYou: {}, ActionDisputeInitiatedByPeer: {},
	ActionBuyerInvoiceAccepted: {}, ActionPurchaseCompleted: {},
	ActionHoldInvoicePaymentAccepted: {}, ActionHoldInvoicePaymentSettled: {},
	ActionHoldInvoicePaymentCanceled: {}, ActionWaitingSellerToPay: {},
	ActionWaitingBuyerInvoice: {}, ActionAddInvoice: {}, ActionBuyerTookOrder: {},
	ActionRate: {}, ActionRateUser: {}, ActionRateReceived: {}, ActionCantDo: {},
	ActionDispute: {}, ActionAdminCancel: {}, ActionAdminCanceled: {},
	ActionAdminSettle: {}, ActionAdminSettled: {}, ActionAdminAddSolver: {},
	ActionAdminTakeDispute: {}, ActionAdminTookDispute: {}, ActionPaymentFailed: {},
	ActionInvoiceUpdated: {}, ActionSendDM: {}, ActionTradePubkey: {},
	ActionRestoreSession: {}, ActionLastTradeIndex: {}, ActionOrders: {},
}

func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}
