package main

import (
	"context"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/spf13/cobra"
)

var historyFilter struct {
	wallet string
	chain  uint64
	action string
	limit  int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the audit log, most recent first",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		entries, err := a.svc.QueryHistory(ctx, db.AuditFilter{
			WalletID: historyFilter.wallet,
			ChainID:  historyFilter.chain,
			Action:   db.AuditAction(historyFilter.action),
			Limit:    historyFilter.limit,
		})
		if err != nil {
			return err
		}
		return printJSON(entries)
	}),
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFilter.wallet, "wallet", "", "only entries for this wallet")
	f.Uint64Var(&historyFilter.chain, "chain", 0, "only entries for this chain id")
	f.StringVar(&historyFilter.action, "action", "", "only entries with this action, e.g. send_approved")
	f.IntVar(&historyFilter.limit, "limit", 50, "maximum number of entries")
}
