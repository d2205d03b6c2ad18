package model

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

const ProtocolVersion = 1

// MessageKind is the outer discriminant of a protocol message on the wire.
type MessageKind string

const (
	KindOrder   MessageKind = "order"
	KindDispute MessageKind = "dispute"
	KindCantDo  MessageKind = "cant-do"
	KindRate    MessageKind = "rate"
	KindDM      MessageKind = "dm"
	KindRestore MessageKind = "restore"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindOrder, KindDispute, KindCantDo, KindRate, KindDM, KindRestore:
		return true
	}
	return false
}

type (
	// Message is the logical unit exchanged between a trader and the
	// facilitator. On the wire it is {"<kind>": {version, request_id, ...}}.
	Message struct {
		Kind       MessageKind
		Version    int
		RequestID  *uint64
		TradeIndex *int64
		ID         *string
		Action     Action
		Payload    *Payload
	}

	messageBody struct {
		Version    int      `json:"version"`
		RequestID  *uint64  `json:"request_id"`
		TradeIndex *int64   `json:"trade_index"`
		ID         *string  `json:"id"`
		Action     Action   `json:"action"`
		Payload    *Payload `json:"payload"`
	}
)

// NewMessage fills the version and kind-appropriate defaults.
func NewMessage(kind MessageKind, action Action, id *string, requestID *uint64, tradeIndex *int64, payload *Payload) *Message {
	return &Message{
		Kind:       kind,
		Version:    ProtocolVersion,
		RequestID:  requestID,
		TradeIndex: tradeIndex,
		ID:         id,
		Action:     action,
		Payload:    payload,
	}
}

// NewRequestID returns a random non-zero id below 2^53 so it survives
// float-based JSON decoders on the other side.
func NewRequestID() uint64 {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		id := binary.BigEndian.Uint64(b[:]) & (1<<53 - 1)
		if id != 0 {
			return id
		}
	}
}

func (m *Message) MarshalJSON() ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("invalid message kind %q", m.Kind)
	}
	return json.Marshal(map[MessageKind]messageBody{
		m.Kind: {
			Version:    m.Version,
			RequestID:  m.RequestID,
			TradeIndex: m.TradeIndex,
			ID:         m.ID,
			Action:     m.Action,
			Payload:    m.Payload,
		},
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var obj map[MessageKind]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj) != 1 {
		return fmt.Errorf("message must have exactly one kind, got %d", len(obj))
	}
	for kind, raw := range obj {
		if !kind.Valid() {
			return fmt.Errorf("invalid message kind %q", kind)
		}
		var body messageBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("message %s: %w", kind, err)
		}
		if body.Action == "" {
			return fmt.Errorf("message %s: missing action", kind)
		}
		*m = Message{
			Kind:       kind,
			Version:    body.Version,
			RequestID:  body.RequestID,
			TradeIndex: body.TradeIndex,
			ID:         body.ID,
			Action:     body.Action,
			Payload:    body.Payload,
		}
	}
	return nil
}

// RefusalReason returns the reason when the message is a cant-do refusal.
func (m *Message) RefusalReason() (CantDoReason, bool) {
	if m.Action != ActionCantDo && m.Kind != KindCantDo {
		return "", false
	}
	if m.Payload != nil && m.Payload.Kind == PayloadCantDo && m.Payload.CantDo != nil {
		return *m.Payload.CantDo, true
	}
	return "", true
}
