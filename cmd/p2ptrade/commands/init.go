package commands

import (
	"fmt"

	userRepo "p2p_trade/internal/repository/user"
	"p2p_trade/internal/service/app"

	"github.com/spf13/cobra"
)

// init: create the local account, optionally restoring a mnemonic.
func initCmd() *cobra.Command {
	var (
		mnemonic   string
		tradeIndex int64
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or restore the local identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := initMongo(ctx, cfg.Mongo.URI)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			users := userRepo.NewUserRepo(client.Database(cfg.Mongo.Database))
			user, err := app.Bootstrap(ctx, users, mnemonic)
			if err != nil {
				return err
			}
			// a restored account must not reuse trade keys it handed out before
			if tradeIndex > 0 {
				if err := users.RaiseTradeIndex(ctx, user.ID, tradeIndex); err != nil {
					return err
				}
			}

			fmt.Println("identity:", user.IdentityPubKey)
			if mnemonic == "" {
				fmt.Println("mnemonic:", user.Mnemonic)
				fmt.Println("write the mnemonic down, it is the only backup of your keys")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "restore from this BIP39 mnemonic")
	cmd.Flags().Int64Var(&tradeIndex, "trade-index", 0, "last trade index used by the restored account")
	return cmd
}

func identityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the identity public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := initMongo(ctx, cfg.Mongo.URI)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			user, err := userRepo.NewUserRepo(client.Database(cfg.Mongo.Database)).GetCurrent(ctx)
			if err != nil {
				return err
			}
			if user == nil {
				return app.ErrNotInitialized
			}
			fmt.Println(user.IdentityPubKey)
			return nil
		},
	}
}
