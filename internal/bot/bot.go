// internal/bot/bot.go
package bot

import (
	"errors"
	"time"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/wallet"
	"go.uber.org/zap"
	"gopkg.in/tucnak/telebot.v2"
)

// Bot is the operator console: admins review, approve and reject pending
// transactions from Telegram.
type Bot struct {
	telegramBot *telebot.Bot
	config      *config.Config
	service     *wallet.Service
	admins      map[int64]bool
	stopChan    chan struct{}
}

func NewBot(cfg *config.Config) (*Bot, error) {
	if cfg.Telegram.Token == "" {
		return nil, errors.New("telegram.token is required to run the bot")
	}
	if len(cfg.Telegram.AdminIDs) == 0 {
		return nil, errors.New("telegram.admin_ids must list at least one operator")
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	return &Bot{
		telegramBot: b,
		config:      cfg,
		admins:      adminSet(cfg.Telegram.AdminIDs),
		stopChan:    make(chan struct{}),
	}, nil
}

// Attach sets the service the handlers act on. It must be called before
// Start; the service is built after the bot so it can take NotifyPending.
func (b *Bot) Attach(svc *wallet.Service) {
	b.service = svc
}

func adminSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Start registers handlers and polls until Stop is called.
func (b *Bot) Start() {
	b.registerHandlers()
	logging.Info("The bot has been launched", zap.Int("admins", len(b.admins)))

	go b.telegramBot.Start()

	<-b.stopChan
	b.telegramBot.Stop()
	logging.Info("The bot has been stopped")
}

func (b *Bot) Stop() {
	close(b.stopChan)
}

// NotifyPending tells every admin about a transaction waiting for approval.
func (b *Bot) NotifyPending(tx *db.PendingTx) {
	text := "New transaction awaiting approval:\n\n" + formatTx(tx, b.config) +
		"\n\n/approve " + tx.TxID + "\n/reject " + tx.TxID
	for id := range b.admins {
		b.sendMessage(&telebot.User{ID: id}, text)
	}
}

func (b *Bot) sendMessage(to telebot.Recipient, message string) {
	if _, err := b.telegramBot.Send(to, message); err != nil {
		logging.Error("Error sending message",
			zap.String("recipient", to.Recipient()),
			zap.Error(err),
		)
	}
}
