package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage custodial wallets",
}

var (
	recoverIndex   uint32
	balanceChain   uint64
	createMnemonic bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a new wallet key in custody",
	Long: "Generate a new wallet key in custody. With --mnemonic the key is derived\n" +
		"from a fresh 24-word seed phrase, printed once to stderr for backup.",
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if !createMnemonic {
			w, err := a.svc.CreateWallet(ctx)
			if err != nil {
				return err
			}
			return printJSON(w)
		}

		w, mnemonic, err := a.svc.CreateMnemonicWallet(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Seed phrase (write it down, it will not be shown again):\n%s\n", mnemonic)
		return printJSON(w)
	}),
}

func init() {
	walletCmd.AddCommand(
		createCmd,
		&cobra.Command{
			Use:   "import",
			Short: "Import a hex private key read from stdin",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				key, err := readSecret("Private key: ")
				if err != nil {
					return err
				}
				w, err := a.svc.ImportWallet(ctx, key)
				if err != nil {
					return err
				}
				return printJSON(w)
			}),
		},
		recoverCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List wallets and the default",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
				state, err := a.svc.ListWallets(ctx)
				if err != nil {
					return err
				}
				return printJSON(state)
			}),
		},
		&cobra.Command{
			Use:   "address [walletId]",
			Short: "Print a wallet address (the default when omitted)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				addr, err := a.svc.GetAddress(ctx, firstArg(args))
				if err != nil {
					return err
				}
				fmt.Println(addr)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-default <walletId>",
			Short: "Make a wallet the default",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, a *app, args []string) error {
				return a.svc.SetDefaultWallet(ctx, args[0])
			}),
		},
		balanceCmd,
	)

	createCmd.Flags().BoolVar(&createMnemonic, "mnemonic", false, "derive the key from a new BIP-39 seed phrase")
	recoverCmd.Flags().Uint32Var(&recoverIndex, "index", 0, "account index in m/44'/60'/0'/0/index")
	balanceCmd.Flags().Uint64Var(&balanceChain, "chain", 0, "chain id (default_chain_id when omitted)")
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover a wallet from a BIP-39 mnemonic read from stdin",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		mnemonic, err := readSecret("Mnemonic: ")
		if err != nil {
			return err
		}
		w, err := a.svc.RecoverWallet(ctx, mnemonic, recoverIndex)
		if err != nil {
			return err
		}
		return printJSON(w)
	}),
}

var balanceCmd = &cobra.Command{
	Use:   "balance [walletId]",
	Short: "Print the native balance in wei",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		bal, err := a.svc.GetBalance(ctx, firstArg(args), balanceChain)
		if err != nil {
			return err
		}
		fmt.Println(bal.String())
		return nil
	}),
}

// readSecret reads one line from stdin so secrets stay out of argv and
// shell history.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
