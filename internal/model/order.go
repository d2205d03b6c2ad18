package model

type (
	OrderKind   string
	OrderStatus string
	Party       string
)

const (
	OrderKindBuy  OrderKind = "buy"
	OrderKindSell OrderKind = "sell"

	StatusActive                OrderStatus = "active"
	StatusCanceled              OrderStatus = "canceled"
	StatusCanceledByAdmin       OrderStatus = "canceled-by-admin"
	StatusSettledByAdmin        OrderStatus = "settled-by-admin"
	StatusCompletedByAdmin      OrderStatus = "completed-by-admin"
	StatusDispute               OrderStatus = "dispute"
	StatusExpired               OrderStatus = "expired"
	StatusFiatSent              OrderStatus = "fiat-sent"
	StatusSettledHoldInvoice    OrderStatus = "settled-hold-invoice"
	StatusPending               OrderStatus = "pending"
	StatusSuccess               OrderStatus = "success"
	StatusWaitingBuyerInvoice   OrderStatus = "waiting-buyer-invoice"
	StatusWaitingPayment        OrderStatus = "waiting-payment"
	StatusCooperativelyCanceled OrderStatus = "cooperatively-canceled"
	StatusInProgress            OrderStatus = "in-progress"

	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

func (k OrderKind) Valid() bool {
	return k == OrderKindBuy || k == OrderKindSell
}

type (
	// SmallOrder is the order body carried inside protocol messages.
	SmallOrder struct {
		ID                *string      `json:"id"`
		Kind              *OrderKind   `json:"kind"`
		Status            *OrderStatus `json:"status"`
		Amount            int64        `json:"amount"`
		FiatCode          string       `json:"fiat_code"`
		MinAmount         *int64       `json:"min_amount"`
		MaxAmount         *int64       `json:"max_amount"`
		FiatAmount        int64        `json:"fiat_amount"`
		PaymentMethod     string       `json:"payment_method"`
		Premium           int64        `json:"premium"`
		BuyerTradePubkey  *string      `json:"buyer_trade_pubkey"`
		SellerTradePubkey *string      `json:"seller_trade_pubkey"`
		BuyerInvoice      *string      `json:"buyer_invoice"`
		CreatedAt         *int64       `json:"created_at"`
		ExpiresAt         *int64       `json:"expires_at"`
	}

	// Order is the latest published state of an order, folded from
	// replaceable events. Values are replaced wholesale, never mutated.
	Order struct {
		ID             string
		Kind           OrderKind
		Status         OrderStatus
		Amount         int64
		FiatCode       string
		FiatAmount     int64
		MinAmount      *int64
		MaxAmount      *int64
		PaymentMethods []string
		Premium        int64
		Network        string
		Layer          string
		Platform       string
		ExpiresAt      int64
		CreatedAt      int64
		EventID        string
		Author         string
	}

	// Dispute is the latest published state of a dispute.
	Dispute struct {
		ID        string
		Status    string
		Initiator string
		CreatedAt int64
		EventID   string
		Author    string
	}
)

// IsRange reports whether the order accepts a fiat range instead of a fixed amount.
func (o Order) IsRange() bool {
	return o.MinAmount != nil && o.MaxAmount != nil
}
