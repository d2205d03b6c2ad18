package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/cryptographic/signature"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	KindTextNote      = 1
	KindSeal          = 13
	KindPrivateDM     = 14
	KindGiftWrap      = 1059
	KindTradeDocument = 38383
)

var (
	ErrSignature = errors.New("invalid event signature")
	// ErrInvalidUTF8 is returned when signing an event whose content or tags
	// would not survive JSON encoding byte for byte.
	ErrInvalidUTF8 = errors.New("event text is not valid utf-8")
)

type (
	Tag  []string
	Tags []Tag

	Event struct {
		ID        string `json:"id"`
		PubKey    string `json:"pubkey"`
		CreatedAt int64  `json:"created_at"`
		Kind      int    `json:"kind"`
		Tags      Tags   `json:"tags"`
		Content   string `json:"content"`
		Sig       string `json:"sig"`
	}
)

func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Find returns the first tag named key.
func (tags Tags) Find(key string) Tag {
	for _, t := range tags {
		if t.Key() == key {
			return t
		}
	}
	return nil
}

// Value returns the first value of the first tag named key, or "".
func (tags Tags) Value(key string) string {
	return tags.Find(key).Value()
}

// Expiration returns the expiration tag as a time, if present and numeric.
func (e *Event) Expiration() (time.Time, bool) {
	v := e.Tags.Value("expiration")
	if v == "" {
		return time.Time{}, false
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// Serialize returns the canonical array [0,pubkey,created_at,kind,tags,content]
// whose sha256 is the event id.
func (e *Event) Serialize() []byte {
	var b strings.Builder
	b.WriteString(`[0,"`)
	b.WriteString(e.PubKey)
	b.WriteString(`",`)
	b.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(e.Kind))
	b.WriteString(",[")
	for i, t := range e.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range t {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(&b, v)
		}
		b.WriteByte(']')
	}
	b.WriteString("],")
	writeString(&b, e.Content)
	b.WriteByte(']')
	return []byte(b.String())
}

// writeString escapes only what the canonical form requires; in particular
// '<', '>' and '&' stay literal, unlike encoding/json.
func writeString(b *strings.Builder, s string) {
	const hexDigits = "0123456789abcdef"
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\f':
			b.WriteString(`\f`)
		case r < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[r>>4])
			b.WriteByte(hexDigits[r&0xf])
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	b.WriteByte('"')
}

func (e *Event) hash() [32]byte {
	return sha256.Sum256(e.Serialize())
}

func (e *Event) ComputeID() string {
	h := e.hash()
	return hex.EncodeToString(h[:])
}

// Sign sets PubKey, ID and Sig. Any field change afterwards invalidates the event.
func (e *Event) Sign(priv *btcec.PrivateKey) error {
	if !e.validUTF8() {
		return ErrInvalidUTF8
	}
	e.PubKey = dh.PubKeyHex(priv)
	if e.Tags == nil {
		e.Tags = Tags{}
	}
	h := e.hash()
	sig, err := signature.Sign(priv, h[:])
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	e.ID = hex.EncodeToString(h[:])
	e.Sig = hex.EncodeToString(sig)
	return nil
}

func (e *Event) validUTF8() bool {
	if !utf8.ValidString(e.Content) {
		return false
	}
	for _, t := range e.Tags {
		for _, v := range t {
			if !utf8.ValidString(v) {
				return false
			}
		}
	}
	return true
}

// Verify checks both the id commitment and the signature.
func (e *Event) Verify() error {
	h := e.hash()
	if e.ID != hex.EncodeToString(h[:]) {
		return fmt.Errorf("%w: id mismatch", ErrSignature)
	}
	pub, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pub) != 32 {
		return fmt.Errorf("%w: bad pubkey", ErrSignature)
	}
	sig, err := hex.DecodeString(e.Sig)
	if err != nil || len(sig) != 64 {
		return fmt.Errorf("%w: bad sig encoding", ErrSignature)
	}
	if !signature.Verify(pub, h[:], sig) {
		return ErrSignature
	}
	return nil
}

// Now is the event clock; tests may replace it.
var Now = func() int64 {
	return time.Now().Unix()
}
