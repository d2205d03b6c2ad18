package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"p2p_trade/internal/service/app"
	"p2p_trade/internal/utils/log"

	"github.com/spf13/cobra"
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the terminal dashboard (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context())
		},
	}
}

// log lines written to the terminal would tear the dashboard
const dashboardLog = "p2ptrade.log"

func runDashboard(ctx context.Context) error {
	if cfg.LogFile == "" {
		if err := log.SetOutput(dashboardLog); err != nil {
			return err
		}
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			a.Stop()
		}()
		return a.Run(ctx)
	})
}
