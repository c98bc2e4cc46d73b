// internal/wallet/service.go
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/custody"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"go.uber.org/zap"
)

// PendingTTL bounds how long a pending transaction can still be approved.
const PendingTTL = 30 * time.Minute

// Service is the custodial wallet: key custody, spending policy, the
// approval state machine and the audit trail behind one API.
type Service struct {
	cfg    *config.Config
	db     *db.DB
	keys   custody.KeyStore
	chains ChainProvider
	policy *Policy

	now       func() time.Time
	newID     func() string
	onPending func(*db.PendingTx)

	// spendMu serializes the daily-limit recheck, broadcast and ledger
	// update of value-bearing approvals.
	spendMu sync.Mutex
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPendingNotifier registers fn to be called for every transaction left
// waiting for approval.
func WithPendingNotifier(fn func(*db.PendingTx)) Option {
	return func(s *Service) { s.onPending = fn }
}

func New(cfg *config.Config, store *db.DB, keys custody.KeyStore, chains ChainProvider, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		db:     store,
		keys:   keys,
		chains: chains,
		policy: NewPolicy(cfg),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the chain clients. The database is owned by the caller.
func (s *Service) Close() error {
	s.chains.Close()
	return nil
}

// audit records e. Failures are logged and never reach the caller.
func (s *Service) audit(ctx context.Context, e *db.AuditEntry) {
	e.At = s.now().UTC()
	if err := s.db.Audit.Append(context.WithoutCancel(ctx), e); err != nil {
		logging.Warn("Failed to append audit entry",
			zap.String("action", string(e.Action)),
			zap.String("txId", e.TxID),
			zap.Error(err))
	}
}

func (s *Service) resolveWallet(ctx context.Context, walletID string) (*db.Wallet, error) {
	if walletID == "" {
		def, err := s.db.Wallets.Default(ctx)
		if err != nil {
			return nil, err
		}
		if def == "" {
			return nil, fmt.Errorf("%w: no wallet id given and no default wallet set", ErrNotFound)
		}
		walletID = def
	} else if addr, err := normalizeAddress("walletId", walletID); err == nil {
		walletID = addr.Hex()
	}

	w, err := s.db.Wallets.Get(ctx, walletID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, walletID)
	}
	return w, err
}

func (s *Service) resolveChain(chainID uint64) (uint64, error) {
	if chainID == 0 {
		chainID = s.cfg.DefaultChainID
	}
	if chainID == 0 {
		return 0, fmt.Errorf("%w: no chain id given and no default chain configured", ErrValidation)
	}
	if _, ok := s.cfg.Chains[chainID]; !ok {
		return 0, fmt.Errorf("%w: chain %d is not configured", ErrValidation, chainID)
	}
	return chainID, nil
}

func (s *Service) GetPendingTx(ctx context.Context, txID string) (*db.PendingTx, error) {
	tx, err := s.db.Pending.Get(ctx, txID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
	}
	return tx, err
}

// ListPending returns transactions still waiting for approval.
func (s *Service) ListPending(ctx context.Context) ([]db.PendingTx, error) {
	return s.db.Pending.List(ctx, db.StatusPending)
}

func (s *Service) QueryHistory(ctx context.Context, f db.AuditFilter) ([]db.AuditEntry, error) {
	if f.WalletID != "" {
		if addr, err := normalizeAddress("walletId", f.WalletID); err == nil {
			f.WalletID = addr.Hex()
		}
	}
	return s.db.Audit.Query(ctx, f)
}
