package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/app"

	"github.com/spf13/cobra"
)

func printReply(reply *model.Message) error {
	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// replyCmd is a command whose only output is the facilitator's reply.
func replyCmd(use, short string, args cobra.PositionalArgs, call func(context.Context, *app.App, []string) (*model.Message, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reply, err := call(ctx, a, argv)
				if err != nil {
					return err
				}
				return printReply(reply)
			})
		},
	}
}

func optionalAmount(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create, take and settle orders",
	}
	cmd.AddCommand(
		newOrderCmd(),
		takeOrderCmd(),
		replyCmd("invoice <order-id> <invoice>", "Send the buyer's invoice", cobra.ExactArgs(2),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.AddInvoice(ctx, args[0], args[1], nil)
			}),
		replyCmd("fiat-sent <order-id>", "Tell the seller the fiat payment went out", cobra.ExactArgs(1),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.FiatSent(ctx, args[0])
			}),
		replyCmd("release <order-id>", "Release the held sats to the buyer", cobra.ExactArgs(1),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.Release(ctx, args[0])
			}),
		replyCmd("cancel <order-id>", "Cancel an order", cobra.ExactArgs(1),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.Cancel(ctx, args[0])
			}),
		replyCmd("dispute <order-id>", "Open a dispute on an order", cobra.ExactArgs(1),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.Dispute(ctx, args[0])
			}),
		replyCmd("rate <order-id> <1-5>", "Rate the counterparty", cobra.ExactArgs(2),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				n, err := strconv.ParseUint(args[1], 10, 8)
				if err != nil {
					return nil, fmt.Errorf("rating: %w", err)
				}
				return a.RateUser(ctx, args[0], uint8(n))
			}),
	)
	return cmd
}

func newOrderCmd() *cobra.Command {
	var (
		kind, currency, methods string
		fiatAmount, minAmount   int64
		maxAmount, amount       int64
		premium                 int64
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Publish a new order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k := model.OrderKind(kind)
			order := model.SmallOrder{
				Kind:          &k,
				Amount:        amount,
				FiatCode:      currency,
				FiatAmount:    fiatAmount,
				MinAmount:     optionalAmount(minAmount),
				MaxAmount:     optionalAmount(maxAmount),
				PaymentMethod: methods,
				Premium:       premium,
			}
			if (order.MinAmount == nil) != (order.MaxAmount == nil) {
				return fmt.Errorf("--min and --max go together")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				created, err := a.NewOrder(ctx, order)
				if err != nil {
					return err
				}
				fmt.Println("order:", *created.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "", "buy or sell")
	f.StringVar(&currency, "currency", "", "fiat currency code")
	f.StringVar(&methods, "methods", "", "comma separated payment methods")
	f.Int64Var(&fiatAmount, "fiat-amount", 0, "fixed fiat amount")
	f.Int64Var(&minAmount, "min", 0, "range order minimum fiat amount")
	f.Int64Var(&maxAmount, "max", 0, "range order maximum fiat amount")
	f.Int64Var(&amount, "sats", 0, "sats amount, 0 for market price")
	f.Int64Var(&premium, "premium", 0, "premium over market price in percent")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("currency")
	_ = cmd.MarkFlagRequired("methods")
	return cmd
}

func takeOrderCmd() *cobra.Command {
	var (
		kind, invoice string
		amount        int64
	)
	cmd := &cobra.Command{
		Use:   "take <order-id>",
		Short: "Take an order from the book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reply, err := a.TakeOrder(ctx, args[0], model.OrderKind(kind), optionalAmount(amount), invoice)
				if err != nil {
					return err
				}
				return printReply(reply)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind of the order being taken: buy or sell")
	cmd.Flags().StringVar(&invoice, "invoice", "", "lightning invoice when taking a sell order")
	cmd.Flags().Int64Var(&amount, "amount", 0, "fiat amount for range orders")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
