package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/cryptographic/nip44"
	"p2p_trade/internal/cryptographic/signature"
	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"

	"github.com/btcsuite/btcd/btcec/v2"
)

var ErrDecode = errors.New("envelope decode failed")

// DecodeError is returned for any envelope that cannot be trusted. Such
// events are dropped at the transport boundary and never shown to users.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeErr(stage string, err error) error {
	return &DecodeError{Stage: stage, Err: err}
}

// Decode verifies and opens ev for recipient. It is pure: decoding the same
// event twice gives the same result.
func (c *Codec) Decode(ev *nostr.Event, recipient *btcec.PrivateKey) (*Decoded, error) {
	if err := ev.Verify(); err != nil {
		return nil, decodeErr("outer", err)
	}
	me := dh.PubKeyHex(recipient)

	switch ev.Kind {
	case nostr.KindGiftWrap:
		if err := soleRecipient(ev, me); err != nil {
			return nil, decodeErr("outer", err)
		}
		seal, err := UnwrapEvent(ev, recipient)
		if err != nil {
			return nil, decodeErr("unwrap", err)
		}
		if seal.Kind != nostr.KindSeal {
			return nil, decodeErr("seal", fmt.Errorf("unexpected kind %d", seal.Kind))
		}
		if err := seal.Verify(); err != nil {
			return nil, decodeErr("seal", err)
		}
		rumor, err := UnwrapEvent(seal, recipient)
		if err != nil {
			return nil, decodeErr("unseal", err)
		}
		if rumor.ID != rumor.ComputeID() {
			return nil, decodeErr("rumor", errors.New("id mismatch"))
		}
		if err := checkExpiry(rumor); err != nil {
			return nil, decodeErr("rumor", err)
		}
		msg, signed, err := parseContent(rumor.Content, rumor.PubKey)
		if err != nil {
			return nil, decodeErr("content", err)
		}
		// a seal signed by another key must be vouched for by the rumor author
		if rumor.PubKey != seal.PubKey && !signed {
			return nil, decodeErr("rumor", errors.New("rumor author differs from seal signer"))
		}
		return &Decoded{
			Message:   msg,
			Sender:    seal.PubKey,
			TradeKey:  rumor.PubKey,
			CreatedAt: rumor.CreatedAt,
			Signed:    signed,
			EventID:   ev.ID,
		}, nil

	case nostr.KindPrivateDM:
		if err := soleRecipient(ev, me); err != nil {
			return nil, decodeErr("outer", err)
		}
		if err := checkExpiry(ev); err != nil {
			return nil, decodeErr("outer", err)
		}
		senderPub, err := dh.ParsePubKeyHex(ev.PubKey)
		if err != nil {
			return nil, decodeErr("outer", err)
		}
		plain, err := nip44.Decrypt(nip44.ConversationKey(recipient, senderPub), ev.Content)
		if err != nil {
			return nil, decodeErr("decrypt", err)
		}
		msg, signed, err := parseContent(plain, ev.PubKey)
		if err != nil {
			return nil, decodeErr("content", err)
		}
		return &Decoded{
			Message:   msg,
			Sender:    ev.PubKey,
			TradeKey:  ev.PubKey,
			CreatedAt: ev.CreatedAt,
			Signed:    signed,
			EventID:   ev.ID,
		}, nil
	}
	return nil, decodeErr("outer", fmt.Errorf("unsupported kind %d", ev.Kind))
}

// UnwrapEvent decrypts one wrapping layer addressed to recipient. The returned
// event is not verified.
func UnwrapEvent(outer *nostr.Event, recipient *btcec.PrivateKey) (*nostr.Event, error) {
	senderPub, err := dh.ParsePubKeyHex(outer.PubKey)
	if err != nil {
		return nil, err
	}
	plain, err := nip44.Decrypt(nip44.ConversationKey(recipient, senderPub), outer.Content)
	if err != nil {
		return nil, err
	}
	var inner nostr.Event
	if err := json.Unmarshal([]byte(plain), &inner); err != nil {
		return nil, fmt.Errorf("inner event: %w", err)
	}
	return &inner, nil
}

func soleRecipient(ev *nostr.Event, me string) error {
	var found []string
	for _, t := range ev.Tags {
		if t.Key() == "p" {
			found = append(found, t.Value())
		}
	}
	if len(found) != 1 {
		return fmt.Errorf("expected one recipient tag, got %d", len(found))
	}
	if found[0] != me {
		return errors.New("not addressed to us")
	}
	return nil
}

func checkExpiry(ev *nostr.Event) error {
	if exp, ok := ev.Expiration(); ok && exp.Unix() < nostr.Now() {
		return errors.New("expired")
	}
	return nil
}

// parseContent accepts [message, signature|null] or a bare message. The
// signature, when present, must verify against author over the exact bytes
// of the message element.
func parseContent(content, author string) (*model.Message, bool, error) {
	var (
		msgRaw json.RawMessage
		sigHex *string
	)
	if len(content) > 0 && content[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal([]byte(content), &parts); err != nil {
			return nil, false, err
		}
		if len(parts) != 2 {
			return nil, false, fmt.Errorf("content tuple has %d elements", len(parts))
		}
		msgRaw = parts[0]
		if err := json.Unmarshal(parts[1], &sigHex); err != nil {
			return nil, false, fmt.Errorf("signature element: %w", err)
		}
	} else {
		msgRaw = json.RawMessage(content)
	}

	var msg model.Message
	if err := json.Unmarshal(msgRaw, &msg); err != nil {
		return nil, false, err
	}

	if sigHex == nil {
		return &msg, false, nil
	}
	sig, err := hex.DecodeString(*sigHex)
	if err != nil {
		return nil, false, fmt.Errorf("signature hex: %w", err)
	}
	pub, err := hex.DecodeString(author)
	if err != nil {
		return nil, false, fmt.Errorf("author hex: %w", err)
	}
	digest := sha256.Sum256(msgRaw)
	if !signature.Verify(pub, digest[:], sig) {
		return nil, false, errors.New("message signature invalid")
	}
	return &msg, true, nil
}
