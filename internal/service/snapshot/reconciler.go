// Package snapshot folds replaceable order and dispute documents into the
// latest known state of each.
package snapshot

import (
	"context"
	"sort"
	"strings"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/nostr"
	"p2p_trade/internal/utils/log"

	"go.uber.org/zap"
)

const (
	DefaultLookback = 7 * 24 * time.Hour
	DefaultLimit    = 1000
)

type (
	OrderFilter struct {
		Status   *model.OrderStatus
		Currency string
		Kind     *model.OrderKind
	}

	DisputeFilter struct {
		Status string
	}

	Reconciler struct {
		network     nostr.Network
		facilitator string

		Lookback time.Duration
		Limit    int
	}

	candidate[T any] struct {
		key       string
		createdAt int64
		eventID   string
		value     T
	}
)

func NewReconciler(network nostr.Network, facilitator string) *Reconciler {
	return &Reconciler{
		network:     network,
		facilitator: facilitator,
		Lookback:    DefaultLookback,
		Limit:       DefaultLimit,
	}
}

func (r *Reconciler) query(ctx context.Context, doc string) ([]*nostr.Event, error) {
	f := nostr.Filter{
		Kinds: []int{nostr.KindTradeDocument},
		Tags:  map[string][]string{"z": {doc}},
		Since: nostr.Timestamp(nostr.Now() - int64(r.Lookback/time.Second)),
		Limit: r.Limit,
	}
	if r.facilitator != "" {
		f.Authors = []string{r.facilitator}
	}
	return r.network.Query(ctx, f)
}

func (r *Reconciler) FetchOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	events, err := r.query(ctx, DocumentOrder)
	if err != nil {
		return nil, err
	}
	return FilterOrders(FoldOrders(events), filter), nil
}

func (r *Reconciler) FetchDisputes(ctx context.Context, filter DisputeFilter) ([]model.Dispute, error) {
	events, err := r.query(ctx, DocumentDispute)
	if err != nil {
		return nil, err
	}
	return FilterDisputes(FoldDisputes(events), filter), nil
}

// FoldOrders keeps the newest order per id, newest first. The result does not
// depend on input order or duplicates.
func FoldOrders(events []*nostr.Event) []model.Order {
	return fold(events, ParseOrder, func(o model.Order) string { return o.ID })
}

func FoldDisputes(events []*nostr.Event) []model.Dispute {
	return fold(events, ParseDispute, func(d model.Dispute) string { return d.ID })
}

func fold[T any](events []*nostr.Event, parse func(*nostr.Event) (T, error), key func(T) string) []T {
	latest := make(map[string]candidate[T], len(events))
	for _, ev := range events {
		v, err := parse(ev)
		if err != nil {
			log.Warn("skipping malformed document", zap.String("event", ev.ID), zap.Error(err))
			continue
		}
		c := candidate[T]{key: key(v), createdAt: ev.CreatedAt, eventID: ev.ID, value: v}
		if cur, ok := latest[c.key]; ok && !newer(c, cur) {
			continue
		}
		latest[c.key] = c
	}

	all := make([]candidate[T], 0, len(latest))
	for _, c := range latest {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].createdAt != all[j].createdAt {
			return all[i].createdAt > all[j].createdAt
		}
		return all[i].key < all[j].key
	})

	out := make([]T, len(all))
	for i, c := range all {
		out[i] = c.value
	}
	return out
}

// newer breaks timestamp ties by the greater event id.
func newer[T any](a, b candidate[T]) bool {
	if a.createdAt != b.createdAt {
		return a.createdAt > b.createdAt
	}
	return a.eventID > b.eventID
}

func FilterOrders(orders []model.Order, f OrderFilter) []model.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.Currency != "" && !strings.EqualFold(o.FiatCode, f.Currency) {
			continue
		}
		if f.Kind != nil && o.Kind != *f.Kind {
			continue
		}
		out = append(out, o)
	}
	return out
}

func FilterDisputes(disputes []model.Dispute, f DisputeFilter) []model.Dispute {
	out := disputes[:0:0]
	for _, d := range disputes {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	return out
}
