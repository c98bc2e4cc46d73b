package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/bot"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/wallet"
	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram approval console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		b, err := bot.NewBot(cfg)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, wallet.WithPendingNotifier(b.NotifyPending))
		if err != nil {
			return err
		}
		defer a.Close()
		b.Attach(a.svc)

		go func() {
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c
			logging.Info("Shutting down...")
			b.Stop()
		}()

		b.Start()
		return nil
	},
}
