package commands

import (
	"context"
	"fmt"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/app"

	"github.com/spf13/cobra"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Dispute resolution, needs --admin",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "take-dispute <dispute-id>",
			Short: "Assign a dispute to yourself",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					order, err := a.TakeDispute(ctx, args[0])
					if err != nil {
						return err
					}
					if order.ID != nil {
						fmt.Println("order:", *order.ID)
					}
					for party, pub := range map[model.Party]*string{
						model.PartyBuyer:  order.BuyerTradePubkey,
						model.PartySeller: order.SellerTradePubkey,
					} {
						if pub != nil {
							fmt.Printf("%s: %s\n", party, *pub)
						}
					}
					return nil
				})
			},
		},
		replyCmd("settle <order-id>", "Settle a disputed order in favour of the buyer", cobra.ExactArgs(1),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.AdminSettle(ctx, args[0])
			}),
		replyCmd("cancel <order-id>", "Cancel a disputed order and refund the seller", cobra.ExactArgs(1),
			func(ctx context.Context, a *app.App, args []string) (*model.Message, error) {
				return a.AdminCancel(ctx, args[0])
			}),
	)
	return cmd
}
