package model

// CantDoReason is the machine-readable code a peer returns when it refuses a request.
type CantDoReason string

const (
	CantDoInvalidSignature      CantDoReason = "invalid-signature"
	CantDoInvalidTradeIndex     CantDoReason = "invalid-trade-index"
	CantDoInvalidAmount         CantDoReason = "invalid-amount"
	CantDoInvalidInvoice        CantDoReason = "invalid-invoice"
	CantDoInvalidPaymentRequest CantDoReason = "invalid-payment-request"
	CantDoInvalidPeer           CantDoReason = "invalid-peer"
	CantDoInvalidRating         CantDoReason = "invalid-rating"
	CantDoInvalidTextMessage    CantDoReason = "invalid-text-message"
	CantDoInvalidOrderKind      CantDoReason = "invalid-order-kind"
	CantDoInvalidOrderStatus    CantDoReason = "invalid-order-status"
	CantDoInvalidPubkey         CantDoReason = "invalid-pubkey"
	CantDoInvalidParameters     CantDoReason = "invalid-parameters"
	CantDoOrderAlreadyCanceled  CantDoReason = "order-already-canceled"
	CantDoCantCreateUser        CantDoReason = "cant-create-user"
	CantDoIsNotYourOrder        CantDoReason = "is-not-your-order"
	CantDoNotAllowedByStatus    CantDoReason = "not-allowed-by-status"
	CantDoOutOfRangeFiatAmount  CantDoReason = "out-of-range-fiat-amount"
	CantDoOutOfRangeSatsAmount  CantDoReason = "out-of-range-sats-amount"
	CantDoIsNotYourDispute      CantDoReason = "is-not-your-dispute"
	CantDoDisputeCreationError  CantDoReason = "dispute-creation-error"
	CantDoNotFound              CantDoReason = "not-found"
	CantDoInvalidDisputeStatus  CantDoReason = "invalid-dispute-status"
	CantDoInvalidAction         CantDoReason = "invalid-action"
	CantDoPendingOrderExists    CantDoReason = "pending-order-exists"
	CantDoInvalidFiatCurrency   CantDoReason = "invalid-fiat-currency"
	CantDoTooManyRequests       CantDoReason = "too-many-requests"
)

var cantDoDescriptions = map[CantDoReason]string{
	CantDoInvalidSignature:      "the request signature could not be verified",
	CantDoInvalidTradeIndex:     "the trade index is not greater than the last one used",
	CantDoInvalidAmount:         "the amount is invalid",
	CantDoInvalidInvoice:        "the lightning invoice is invalid",
	CantDoInvalidPaymentRequest: "the payment request is invalid",
	CantDoInvalidPeer:           "the peer is invalid",
	CantDoInvalidRating:         "the rating value is out of range",
	CantDoInvalidTextMessage:    "the text message is invalid",
	CantDoInvalidOrderKind:      "the order kind is invalid",
	CantDoInvalidOrderStatus:    "the order status does not allow this action",
	CantDoInvalidPubkey:         "the public key is invalid",
	CantDoInvalidParameters:     "the request parameters are invalid",
	CantDoOrderAlreadyCanceled:  "the order was already canceled",
	CantDoCantCreateUser:        "the user could not be created",
	CantDoIsNotYourOrder:        "this order does not belong to you",
	CantDoNotAllowedByStatus:    "the action is not allowed in the current order status",
	CantDoOutOfRangeFiatAmount:  "the fiat amount is outside the order range",
	CantDoOutOfRangeSatsAmount:  "the sats amount is outside the allowed range",
	CantDoIsNotYourDispute:      "this dispute is not assigned to you",
	CantDoDisputeCreationError:  "the dispute could not be created",
	CantDoNotFound:              "the requested item was not found",
	CantDoInvalidDisputeStatus:  "the dispute status does not allow this action",
	CantDoInvalidAction:         "the action is not valid here",
	CantDoPendingOrderExists:    "you already have a pending order",
	CantDoInvalidFiatCurrency:   "the fiat currency is not accepted",
	CantDoTooManyRequests:       "too many requests, try again later",
}

// Description is a human-readable rendering of the reason. Unknown codes are
// returned verbatim.
func (r CantDoReason) Description() string {
	if d, ok := cantDoDescriptions[r]; ok {
		return d
	}
	if r == "" {
		return "request refused"
	}
	return string(r)
}
