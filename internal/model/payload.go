package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type PayloadKind string

const (
	PayloadOrder          PayloadKind = "order"
	PayloadPaymentRequest PayloadKind = "payment_request"
	PayloadTextMessage    PayloadKind = "text_message"
	PayloadPeer           PayloadKind = "peer"
	PayloadRatingUser     PayloadKind = "rating_user"
	PayloadAmount         PayloadKind = "amount"
	PayloadDispute        PayloadKind = "dispute"
	PayloadCantDo         PayloadKind = "cant_do"
	PayloadNextTrade      PayloadKind = "next_trade"
	PayloadIDs            PayloadKind = "ids"
	PayloadOrders         PayloadKind = "orders"
)

var errPayloadShape = errors.New("payload must be an object with exactly one key")

type (
	// Payload is a tagged variant: Kind selects which field is meaningful.
	// Unrecognised kinds keep their JSON in Raw so they re-encode unchanged.
	Payload struct {
		Kind PayloadKind

		Order          *SmallOrder
		PaymentRequest *PaymentRequest
		TextMessage    string
		Peer           *Peer
		RatingUser     uint8
		Amount         int64
		Dispute        *DisputeRef
		CantDo         *CantDoReason
		NextTrade      *NextTrade
		IDs            []string
		Orders         []SmallOrder

		Raw json.RawMessage
	}

	PaymentRequest struct {
		Order   *SmallOrder
		Invoice string
		Amount  *int64
	}

	Peer struct {
		PubKey string `json:"pubkey"`
	}

	DisputeRef struct {
		ID    string
		Token *uint16
	}

	NextTrade struct {
		PubKey string
		Index  uint32
	}
)

func (p PayloadKind) Known() bool {
	switch p {
	case PayloadOrder, PayloadPaymentRequest, PayloadTextMessage, PayloadPeer,
		PayloadRatingUser, PayloadAmount, PayloadDispute, PayloadCantDo,
		PayloadNextTrade, PayloadIDs, PayloadOrders:
		return true
	}
	return false
}

func OrderPayload(o SmallOrder) *Payload {
	return &Payload{Kind: PayloadOrder, Order: &o}
}

func TextPayload(s string) *Payload {
	return &Payload{Kind: PayloadTextMessage, TextMessage: s}
}

func AmountPayload(n int64) *Payload {
	return &Payload{Kind: PayloadAmount, Amount: n}
}

func RatingPayload(r uint8) *Payload {
	return &Payload{Kind: PayloadRatingUser, RatingUser: r}
}

func PaymentRequestPayload(invoice string, amount *int64) *Payload {
	return &Payload{Kind: PayloadPaymentRequest, PaymentRequest: &PaymentRequest{Invoice: invoice, Amount: amount}}
}

func NextTradePayload(pubkey string, index uint32) *Payload {
	return &Payload{Kind: PayloadNextTrade, NextTrade: &NextTrade{PubKey: pubkey, Index: index}}
}

func CantDoPayload(r *CantDoReason) *Payload {
	return &Payload{Kind: PayloadCantDo, CantDo: r}
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var (
		body any
		err  error
	)
	switch p.Kind {
	case PayloadOrder:
		body = p.Order
	case PayloadPaymentRequest:
		if p.PaymentRequest == nil {
			return nil, fmt.Errorf("payment_request payload without body")
		}
		body = []any{p.PaymentRequest.Order, p.PaymentRequest.Invoice, p.PaymentRequest.Amount}
	case PayloadTextMessage:
		body = p.TextMessage
	case PayloadPeer:
		body = p.Peer
	case PayloadRatingUser:
		body = p.RatingUser
	case PayloadAmount:
		body = p.Amount
	case PayloadDispute:
		if p.Dispute == nil {
			return nil, fmt.Errorf("dispute payload without body")
		}
		body = []any{p.Dispute.ID, p.Dispute.Token}
	case PayloadCantDo:
		body = p.CantDo
	case PayloadNextTrade:
		if p.NextTrade == nil {
			return nil, fmt.Errorf("next_trade payload without body")
		}
		body = []any{p.NextTrade.PubKey, p.NextTrade.Index}
	case PayloadIDs:
		body = p.IDs
	case PayloadOrders:
		body = p.Orders
	default:
		if len(p.Raw) == 0 {
			return nil, fmt.Errorf("unknown payload %q without raw body", p.Kind)
		}
		body = p.Raw
	}
	var inner []byte
	if inner, err = json.Marshal(body); err != nil {
		return nil, err
	}
	key, err := json.Marshal(string(p.Kind))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(inner)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != 1 {
		return errPayloadShape
	}
	var (
		key string
		raw json.RawMessage
	)
	for k, v := range obj {
		key, raw = k, v
	}

	out := Payload{Kind: PayloadKind(key)}
	var err error
	switch out.Kind {
	case PayloadOrder:
		err = json.Unmarshal(raw, &out.Order)
		if err == nil && out.Order == nil {
			err = fmt.Errorf("order payload is null")
		}
	case PayloadPaymentRequest:
		out.PaymentRequest, err = decodePaymentRequest(raw)
	case PayloadTextMessage:
		err = json.Unmarshal(raw, &out.TextMessage)
	case PayloadPeer:
		err = json.Unmarshal(raw, &out.Peer)
		if err == nil && out.Peer == nil {
			err = fmt.Errorf("peer payload is null")
		}
	case PayloadRatingUser:
		err = json.Unmarshal(raw, &out.RatingUser)
	case PayloadAmount:
		err = json.Unmarshal(raw, &out.Amount)
	case PayloadDispute:
		out.Dispute, err = decodeDispute(raw)
	case PayloadCantDo:
		err = json.Unmarshal(raw, &out.CantDo)
	case PayloadNextTrade:
		out.NextTrade, err = decodeNextTrade(raw)
	case PayloadIDs:
		err = json.Unmarshal(raw, &out.IDs)
	case PayloadOrders:
		err = json.Unmarshal(raw, &out.Orders)
	default:
		out.Raw = append(json.RawMessage(nil), raw...)
	}
	if err != nil {
		return fmt.Errorf("payload %s: %w", key, err)
	}
	*p = out
	return nil
}

func decodePaymentRequest(raw json.RawMessage) (*PaymentRequest, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("payment_request needs at least 2 elements, got %d", len(parts))
	}
	var pr PaymentRequest
	if err := json.Unmarshal(parts[0], &pr.Order); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(parts[1], &pr.Invoice); err != nil {
		return nil, err
	}
	if len(parts) > 2 {
		if err := json.Unmarshal(parts[2], &pr.Amount); err != nil {
			return nil, err
		}
	}
	return &pr, nil
}

func decodeDispute(raw json.RawMessage) (*DisputeRef, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) < 1 {
		return nil, fmt.Errorf("dispute payload is empty")
	}
	var d DisputeRef
	if err := json.Unmarshal(parts[0], &d.ID); err != nil {
		return nil, err
	}
	if len(parts) > 1 {
		if err := json.Unmarshal(parts[1], &d.Token); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func decodeNextTrade(raw json.RawMessage) (*NextTrade, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("next_trade needs 2 elements, got %d", len(parts))
	}
	var nt NextTrade
	if err := json.Unmarshal(parts[0], &nt.PubKey); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(parts[1], &nt.Index); err != nil {
		return nil, err
	}
	return &nt, nil
}
