// cmd/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/custody"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/wallet"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "evm-wallet",
	Short:         "Custodial EVM wallet with policy-gated transaction approval",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.{yaml,json})")
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(botCmd)
}

// app is everything one command needs, opened from configuration.
type app struct {
	cfg   *config.Config
	store *db.DB
	svc   *wallet.Service
}

func openApp(ctx context.Context, opts ...wallet.Option) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, opts...)
}

func newApp(ctx context.Context, cfg *config.Config, opts ...wallet.Option) (*app, error) {
	if err := logging.Init(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	keys, err := custody.New(cfg)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(ctx, cfg.StateDir, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	svc := wallet.New(cfg, store, keys, wallet.NewChainRegistry(cfg), opts...)
	return &app{cfg: cfg, store: store, svc: svc}, nil
}

func (a *app) Close() {
	_ = a.svc.Close()
	_ = a.store.Close()
	logging.Sync()
}

// withApp opens the app for the duration of one command.
func withApp(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, args)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
