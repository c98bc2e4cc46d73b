package main

import (
	"context"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/wallet"
	"github.com/spf13/cobra"
)

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Request, approve and inspect transactions",
}

var (
	txOpts   wallet.TxOptions
	txNonce  int64
	valueWei string
	txData   string
)

// addTxFlags registers the flags every request command shares.
func addTxFlags(c *cobra.Command) {
	fs := c.Flags()
	fs.StringVar(&txOpts.WalletID, "wallet", "", "wallet id (default wallet when omitted)")
	fs.Uint64Var(&txOpts.ChainID, "chain", 0, "chain id (default_chain_id when omitted)")
	fs.StringVar(&txOpts.GasLimit, "gas-limit", "", "gas limit override")
	fs.StringVar(&txOpts.GasPrice, "gas-price", "", "legacy gas price override in wei")
	fs.StringVar(&txOpts.MaxFeePerGas, "max-fee", "", "EIP-1559 max fee per gas in wei")
	fs.StringVar(&txOpts.MaxPriorityFeePerGas, "max-priority-fee", "", "EIP-1559 priority fee per gas in wei")
	fs.Int64Var(&txNonce, "nonce", -1, "nonce override")
}

func options() wallet.TxOptions {
	opts := txOpts
	if txNonce >= 0 {
		n := uint64(txNonce)
		opts.Nonce = &n
	}
	return opts
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <valueWei>",
	Short: "Request a native transfer",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		tx, err := a.svc.RequestSend(ctx, wallet.SendRequest{TxOptions: options(), To: args[0], ValueWei: args[1]})
		if err != nil {
			return err
		}
		return printJSON(tx)
	}),
}

var erc20ApproveCmd = &cobra.Command{
	Use:   "erc20-approve <token> <spender> <amountWei>",
	Short: "Request an ERC-20 allowance",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		tx, err := a.svc.RequestERC20Approve(ctx, wallet.ERC20ApproveRequest{
			TxOptions: options(), Token: args[0], Spender: args[1], AmountWei: args[2],
		})
		if err != nil {
			return err
		}
		return printJSON(tx)
	}),
}

var erc20TransferCmd = &cobra.Command{
	Use:   "erc20-transfer <token> <recipient> <amountWei>",
	Short: "Request an ERC-20 transfer",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		tx, err := a.svc.RequestERC20Transfer(ctx, wallet.ERC20TransferRequest{
			TxOptions: options(), Token: args[0], Recipient: args[1], AmountWei: args[2],
		})
		if err != nil {
			return err
		}
		return printJSON(tx)
	}),
}

var callCmd = &cobra.Command{
	Use:   "call <contract>",
	Short: "Request a contract call with raw calldata",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		tx, err := a.svc.RequestContractCall(ctx, wallet.ContractCallRequest{
			TxOptions: options(), Contract: args[0], ValueWei: valueWei, Data: txData,
		})
		if err != nil {
			return err
		}
		return printJSON(tx)
	}),
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, erc20ApproveCmd, erc20TransferCmd, callCmd} {
		addTxFlags(c)
	}
	callCmd.Flags().StringVar(&valueWei, "value", "0", "native value in wei")
	callCmd.Flags().StringVar(&txData, "data", "", "0x-prefixed calldata")
	_ = callCmd.MarkFlagRequired("data")

	txCmd.AddCommand(
		sendCmd,
		erc20ApproveCmd,
		erc20TransferCmd,
		callCmd,
		&cobra.Command{
			Use:   "approve <txId>",
			Short: "Sign and broadcast a pending transaction",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				tx, err := a.svc.ApproveTx(ctx, args[0])
				if tx != nil {
					_ = printJSON(tx)
				}
				return err
			}),
		},
		&cobra.Command{
			Use:   "reject <txId>",
			Short: "Reject a pending transaction",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				tx, err := a.svc.RejectTx(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(tx)
			}),
		},
		&cobra.Command{
			Use:   "get <txId>",
			Short: "Show one transaction",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				tx, err := a.svc.GetPendingTx(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(tx)
			}),
		},
		&cobra.Command{
			Use:   "pending",
			Short: "List transactions awaiting approval",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				txs, err := a.svc.ListPending(ctx)
				if err != nil {
					return err
				}
				return printJSON(txs)
			}),
		},
	)
}
