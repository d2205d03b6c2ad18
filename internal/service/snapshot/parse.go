package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
)

const (
	DocumentOrder   = "order"
	DocumentDispute = "dispute"
)

var (
	errMissingID   = errors.New("missing d tag")
	errMissingKind = errors.New("missing or invalid k tag")
	errWrongDoc    = errors.New("wrong document type")
)

// ParseOrder reads an order document from its tags. Unknown tags are
// ignored; only the id and the order kind are mandatory.
func ParseOrder(ev *nostr.Event) (model.Order, error) {
	if z := ev.Tags.Value("z"); z != "" && z != DocumentOrder {
		return model.Order{}, errWrongDoc
	}
	o := model.Order{
		ID:        ev.Tags.Value("d"),
		Kind:      model.OrderKind(ev.Tags.Value("k")),
		Status:    model.OrderStatus(ev.Tags.Value("s")),
		FiatCode:  ev.Tags.Value("f"),
		Network:   ev.Tags.Value("network"),
		Layer:     ev.Tags.Value("layer"),
		Platform:  ev.Tags.Value("y"),
		CreatedAt: ev.CreatedAt,
		EventID:   ev.ID,
		Author:    ev.PubKey,
	}
	if o.ID == "" {
		return model.Order{}, errMissingID
	}
	if !o.Kind.Valid() {
		return model.Order{}, errMissingKind
	}

	var err error
	if v := ev.Tags.Value("amt"); v != "" {
		if o.Amount, err = strconv.ParseInt(v, 10, 64); err != nil {
			return model.Order{}, fmt.Errorf("amt: %w", err)
		}
	}
	if v := ev.Tags.Value("premium"); v != "" {
		if o.Premium, err = strconv.ParseInt(v, 10, 64); err != nil {
			return model.Order{}, fmt.Errorf("premium: %w", err)
		}
	}
	if v := ev.Tags.Value("expiration"); v != "" {
		if o.ExpiresAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return model.Order{}, fmt.Errorf("expiration: %w", err)
		}
	}

	if fa := ev.Tags.Find("fa"); len(fa) > 1 {
		amounts := make([]int64, 0, 2)
		for _, v := range fa[1:] {
			if v == "" {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return model.Order{}, fmt.Errorf("fa: %w", err)
			}
			amounts = append(amounts, n)
		}
		switch len(amounts) {
		case 0:
		case 1:
			o.FiatAmount = amounts[0]
		default:
			lo, hi := amounts[0], amounts[1]
			o.MinAmount, o.MaxAmount = &lo, &hi
		}
	}

	if pm := ev.Tags.Find("pm"); len(pm) > 1 {
		for _, v := range pm[1:] {
			for _, m := range strings.Split(v, ",") {
				if m = strings.TrimSpace(m); m != "" {
					o.PaymentMethods = append(o.PaymentMethods, m)
				}
			}
		}
	}
	return o, nil
}

// ParseDispute reads a dispute document. The status tag is its discriminant.
func ParseDispute(ev *nostr.Event) (model.Dispute, error) {
	if z := ev.Tags.Value("z"); z != "" && z != DocumentDispute {
		return model.Dispute{}, errWrongDoc
	}
	d := model.Dispute{
		ID:        ev.Tags.Value("d"),
		Status:    ev.Tags.Value("s"),
		Initiator: ev.Tags.Value("initiator"),
		CreatedAt: ev.CreatedAt,
		EventID:   ev.ID,
		Author:    ev.PubKey,
	}
	if d.ID == "" {
		return model.Dispute{}, errMissingID
	}
	if d.Status == "" {
		return model.Dispute{}, errors.New("missing s tag")
	}
	return d, nil
}
