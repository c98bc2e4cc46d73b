package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/wallet"
	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"
)

const handlerTimeout = 2 * time.Minute

func (b *Bot) registerHandlers() {
	b.telegramBot.Handle("/start", b.adminOnly(b.handleStart))
	b.telegramBot.Handle("/help", b.adminOnly(b.handleHelp))
	b.telegramBot.Handle("/wallets", b.adminOnly(b.handleWallets))
	b.telegramBot.Handle("/balance", b.adminOnly(b.handleBalance))
	b.telegramBot.Handle("/send", b.adminOnly(b.handleSend))
	b.telegramBot.Handle("/pending", b.adminOnly(b.handlePending))
	b.telegramBot.Handle("/tx", b.adminOnly(b.handleTx))
	b.telegramBot.Handle("/approve", b.adminOnly(b.handleApprove))
	b.telegramBot.Handle("/reject", b.adminOnly(b.handleReject))
	b.telegramBot.Handle("/history", b.adminOnly(b.handleHistory))
}

const helpText = `/wallets - List custodial wallets
/balance [walletId] [chainId] - Native balance
/send <to> <valueWei> [chainId] - Request a native transfer
/pending - Transactions awaiting approval
/tx <txId> - Show one transaction
/approve <txId> - Sign and broadcast
/reject <txId> - Reject
/history [limit] - Recent audit entries
/help - This message`

func (b *Bot) isAdmin(u *telebot.User) bool {
	return u != nil && b.admins[u.ID]
}

func (b *Bot) adminOnly(h func(ctx context.Context, m *telebot.Message)) func(*telebot.Message) {
	return func(m *telebot.Message) {
		if !b.isAdmin(m.Sender) {
			var id int64
			if m.Sender != nil {
				id = m.Sender.ID
			}
			logging.Warn("Ignoring command from non-admin", zap.Int64("userId", id), zap.String("text", m.Text))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		h(ctx, m)
	}
}

func (b *Bot) handleStart(_ context.Context, m *telebot.Message) {
	b.sendMessage(m.Sender, "EVM custody console. Use /help to see the available commands.")
}

func (b *Bot) handleHelp(_ context.Context, m *telebot.Message) {
	b.sendMessage(m.Sender, helpText)
}

func (b *Bot) handleWallets(ctx context.Context, m *telebot.Message) {
	state, err := b.service.ListWallets(ctx)
	if err != nil {
		b.replyError(m, "Error while listing wallets", err)
		return
	}
	if len(state.Wallets) == 0 {
		b.sendMessage(m.Sender, "No wallets yet.")
		return
	}

	var sb strings.Builder
	for _, w := range sortedWallets(state) {
		sb.WriteString(w.Address)
		if w.WalletID == state.DefaultWalletID {
			sb.WriteString(" (default)")
		}
		sb.WriteString("\n")
	}
	b.sendMessage(m.Sender, sb.String())
}

func (b *Bot) handleBalance(ctx context.Context, m *telebot.Message) {
	args := strings.Fields(m.Payload)
	var walletID string
	var chainID uint64
	for _, a := range args {
		if id, err := strconv.ParseUint(a, 10, 64); err == nil {
			chainID = id
		} else {
			walletID = a
		}
	}

	balance, err := b.service.GetBalance(ctx, walletID, chainID)
	if err != nil {
		b.replyError(m, "Error while getting balance", err)
		return
	}
	b.sendMessage(m.Sender, fmt.Sprintf("Balance: %s wei", balance))
}

func (b *Bot) handleSend(ctx context.Context, m *telebot.Message) {
	args := strings.Fields(m.Payload)
	if len(args) < 2 || len(args) > 3 {
		b.sendMessage(m.Sender, "Usage: /send <to> <valueWei> [chainId]")
		return
	}

	req := wallet.SendRequest{To: args[0], ValueWei: args[1]}
	if len(args) == 3 {
		id, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			b.sendMessage(m.Sender, "Invalid chain id.")
			return
		}
		req.ChainID = id
	}

	tx, err := b.service.RequestSend(ctx, req)
	if err != nil {
		b.replyError(m, "Request rejected", err)
		return
	}
	if tx.Status == db.StatusSent {
		b.sendMessage(m.Sender, "Sent:\n\n"+formatTx(tx, b.config))
	}
	// In notify mode NotifyPending reports the new request to every admin.
}

func (b *Bot) handlePending(ctx context.Context, m *telebot.Message) {
	txs, err := b.service.ListPending(ctx)
	if err != nil {
		b.replyError(m, "Error while listing pending transactions", err)
		return
	}
	if len(txs) == 0 {
		b.sendMessage(m.Sender, "Nothing is awaiting approval.")
		return
	}

	parts := make([]string, 0, len(txs))
	for i := range txs {
		parts = append(parts, formatTx(&txs[i], b.config))
	}
	b.sendMessage(m.Sender, strings.Join(parts, "\n\n"))
}

func (b *Bot) handleTx(ctx context.Context, m *telebot.Message) {
	txID, ok := b.txIDArg(m)
	if !ok {
		return
	}
	tx, err := b.service.GetPendingTx(ctx, txID)
	if err != nil {
		b.replyError(m, "Error while getting transaction", err)
		return
	}
	b.sendMessage(m.Sender, formatTx(tx, b.config))
}

func (b *Bot) handleApprove(ctx context.Context, m *telebot.Message) {
	txID, ok := b.txIDArg(m)
	if !ok {
		return
	}
	logging.Info("Approval requested from Telegram", zap.String("txId", txID), zap.Int64("userId", m.Sender.ID))

	tx, err := b.service.ApproveTx(ctx, txID)
	if err != nil {
		b.replyError(m, "Approval failed", err)
		return
	}
	b.sendMessage(m.Sender, "Transaction sent!\n\n"+formatTx(tx, b.config))
}

func (b *Bot) handleReject(ctx context.Context, m *telebot.Message) {
	txID, ok := b.txIDArg(m)
	if !ok {
		return
	}
	if _, err := b.service.RejectTx(ctx, txID); err != nil {
		b.replyError(m, "Reject failed", err)
		return
	}
	b.sendMessage(m.Sender, "Transaction "+txID+" rejected.")
}

func (b *Bot) handleHistory(ctx context.Context, m *telebot.Message) {
	limit := 10
	if s := strings.TrimSpace(m.Payload); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			b.sendMessage(m.Sender, "Usage: /history [limit]")
			return
		}
		limit = n
	}

	entries, err := b.service.QueryHistory(ctx, db.AuditFilter{Limit: limit})
	if err != nil {
		b.replyError(m, "Error while getting history", err)
		return
	}
	if len(entries) == 0 {
		b.sendMessage(m.Sender, "The audit log is empty.")
		return
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(formatAudit(e))
		sb.WriteString("\n")
	}
	b.sendMessage(m.Sender, sb.String())
}

func (b *Bot) txIDArg(m *telebot.Message) (string, bool) {
	txID := strings.TrimSpace(m.Payload)
	if txID == "" || strings.ContainsAny(txID, " \n") {
		b.sendMessage(m.Sender, "Usage: "+strings.Fields(m.Text)[0]+" <txId>")
		return "", false
	}
	return txID, true
}

func (b *Bot) replyError(m *telebot.Message, prefix string, err error) {
	logging.Error(prefix, zap.Error(err))
	b.sendMessage(m.Sender, fmt.Sprintf("%s: %s", prefix, userMessage(err)))
}

// userMessage keeps internal error detail out of chat for unexpected
// failures.
func userMessage(err error) string {
	for _, known := range []error{
		wallet.ErrValidation,
		wallet.ErrPolicyViolation,
		wallet.ErrNotFound,
		wallet.ErrExpired,
		wallet.ErrAlreadyProcessed,
		wallet.ErrBroadcast,
		wallet.ErrKeyAccess,
	} {
		if errors.Is(err, known) {
			if errors.Is(err, wallet.ErrKeyAccess) {
				return known.Error()
			}
			return err.Error()
		}
	}
	return "internal error, see logs"
}

func sortedWallets(state *db.WalletState) []db.Wallet {
	out := make([]db.Wallet, 0, len(state.Wallets))
	for _, w := range state.Wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].WalletID < out[j].WalletID
	})
	return out
}

func formatTx(tx *db.PendingTx, cfg *config.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ID: %s\nStatus: %s\nKind: %s\nChain: %d\nFrom: %s\nTo: %s\nValue: %s wei",
		tx.TxID, tx.Status, tx.Kind, tx.ChainID, tx.From, tx.To, tx.ValueWei)

	switch tx.Kind {
	case db.KindERC20Transfer:
		fmt.Fprintf(&sb, "\nToken: %s\nRecipient: %s\nAmount: %s", tx.TokenAddress, tx.Recipient, tx.AmountWei)
	case db.KindERC20Approve:
		fmt.Fprintf(&sb, "\nToken: %s\nSpender: %s\nAmount: %s", tx.TokenAddress, tx.Spender, tx.AmountWei)
	case db.KindContractCall:
		fmt.Fprintf(&sb, "\nData: %s", tx.Data)
	}

	if tx.TxHash != "" {
		sb.WriteString("\nHash: " + tx.TxHash)
		if link := explorerLink(cfg, tx.ChainID, tx.TxHash); link != "" {
			sb.WriteString("\n" + link)
		}
	}
	if tx.Error != "" {
		sb.WriteString("\nError: " + tx.Error)
	}
	sb.WriteString("\nCreated: " + tx.CreatedAt.UTC().Format("02.01.2006 15:04:05") + " UTC")
	return sb.String()
}

func explorerLink(cfg *config.Config, chainID uint64, hash string) string {
	if cfg == nil {
		return ""
	}
	base := strings.TrimRight(cfg.Chains[chainID].BlockExplorerURL, "/")
	if base == "" {
		return ""
	}
	return base + "/tx/" + hash
}

func formatAudit(e db.AuditEntry) string {
	s := e.At.UTC().Format("02.01.2006 15:04:05") + " " + string(e.Action)
	if e.TxID != "" {
		s += " tx=" + e.TxID
	}
	if e.WalletID != "" {
		s += " wallet=" + e.WalletID
	}
	if e.TxHash != "" {
		s += " hash=" + e.TxHash
	}
	if e.Error != "" {
		s += " error=" + e.Error
	}
	return s
}
