package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/snapshot"

	"github.com/spf13/cobra"
)

func fetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.RequestTimeout)
}

func ordersCmd() *cobra.Command {
	var status, currency, kind string
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List the current order book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter snapshot.OrderFilter
			filter.Currency = currency
			if status != "" {
				s := model.OrderStatus(status)
				filter.Status = &s
			}
			if kind != "" {
				k := model.OrderKind(kind)
				if !k.Valid() {
					return fmt.Errorf("kind must be buy or sell")
				}
				filter.Kind = &k
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := fetchTimeout(cmd.Context())
			defer cancel()
			orders, err := newReconciler(e).FetchOrders(ctx, filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tFIAT\tSATS\tMETHODS\tPREMIUM\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
					o.ID, o.Kind, o.Status, fiat(o), o.Amount,
					strings.Join(o.PaymentMethods, ","), o.Premium, when(o.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.StatusPending), "order status, empty for all")
	cmd.Flags().StringVar(&currency, "currency", "", "fiat currency code")
	cmd.Flags().StringVar(&kind, "kind", "", "buy or sell")
	return cmd
}

func disputesCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "disputes",
		Short: "List open disputes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := fetchTimeout(cmd.Context())
			defer cancel()
			disputes, err := newReconciler(e).FetchDisputes(ctx, snapshot.DisputeFilter{Status: status})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tINITIATOR\tCREATED")
			for _, d := range disputes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Status, d.Initiator, when(d.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "dispute status, empty for all")
	return cmd
}

func fiat(o model.Order) string {
	if o.IsRange() {
		return fmt.Sprintf("%d-%d %s", *o.MinAmount, *o.MaxAmount, o.FiatCode)
	}
	return fmt.Sprintf("%d %s", o.FiatAmount, o.FiatCode)
}

func when(ts int64) string {
	return time.Unix(ts, 0).Format(time.DateTime)
}
