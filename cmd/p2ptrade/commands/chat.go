package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"p2p_trade/internal/model"
	"p2p_trade/internal/service/app"
	"p2p_trade/internal/service/attachment"
	"p2p_trade/internal/service/chat"

	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Dispute chat between a trade party and the admin",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "join <order-id> <dispute-id> <admin-pubkey>",
			Short: "Derive the chat key shared with the admin of a dispute",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					k, err := a.JoinDisputeChat(ctx, args[0], args[1], args[2])
					if err != nil {
						return err
					}
					fmt.Printf("joined as %s, chat address %s\n", k.Party, k.PubKeyHex())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "send <order-id> <dispute-id> <text>",
			Short: "Write to the admin",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					return a.SendDisputeChat(ctx, args[0], args[1], args[2])
				})
			},
		},
		&cobra.Command{
			Use:   "admin-send <dispute-id> <buyer|seller> <text>",
			Short: "Write to a trade party as the dispute admin",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				party, err := parseParty(args[1])
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					return a.AdminSendChat(ctx, args[0], party, args[2])
				})
			},
		},
		&cobra.Command{
			Use:   "close <dispute-id>",
			Short: "Forget the chat keys and transcripts of a resolved dispute",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
					return a.CloseDisputeChat(ctx, args[0])
				})
			},
		},
		showChatCmd(),
	)
	return cmd
}

func showChatCmd() *cobra.Command {
	var (
		follow   bool
		download string
	)
	cmd := &cobra.Command{
		Use:   "show <dispute-id> <buyer|seller>",
		Short: "Print a dispute transcript",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			party, err := parseParty(args[1])
			if err != nil {
				return err
			}
			key := chat.TranscriptKey(args[0], party)

			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p := chat.NewPoller(a.Channel, a.ChatKeys, a.Shared)
				p.Interval = cfg.PollInterval
				if err := p.Load(ctx); err != nil {
					return err
				}
				if err := p.PollOnce(ctx); err != nil {
					return err
				}
				printed := printTranscript(a.Shared.Transcript(key), 0)

				if download != "" {
					for _, m := range a.Shared.Transcript(key) {
						if m.EventID != download {
							continue
						}
						path, err := a.DownloadAttachment(ctx, m)
						if err != nil {
							return err
						}
						fmt.Println("saved", path)
						return nil
					}
					return fmt.Errorf("no message %s in transcript", download)
				}
				if !follow {
					return nil
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				go func() {
					_ = p.Run(ctx)
				}()
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						printed = printTranscript(a.Shared.Transcript(key), printed)
						a.Shared.ClearPending(key)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new messages")
	cmd.Flags().StringVar(&download, "download", "", "save the attachment carried by this event id")
	return cmd
}

func printTranscript(msgs []model.ChatMessage, from int) int {
	for _, m := range msgs[min(from, len(msgs)):] {
		if att, ok := model.ParseAttachment(m.Text); ok {
			fmt.Printf("%s %s [%s] %s (%s)\n", when(m.CreatedAt), short(m.Sender), m.EventID, attachment.SanitizeFilename(att.Filename), att.MimeType)
			continue
		}
		fmt.Printf("%s %s %s\n", when(m.CreatedAt), short(m.Sender), m.Text)
	}
	return len(msgs)
}

func short(pub string) string {
	if len(pub) <= 8 {
		return pub
	}
	return pub[:8]
}

func parseParty(s string) (model.Party, error) {
	switch p := model.Party(s); p {
	case model.PartyBuyer, model.PartySeller:
		return p, nil
	}
	return "", fmt.Errorf("party must be buyer or seller, got %q", s)
}
