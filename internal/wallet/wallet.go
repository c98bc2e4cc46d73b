// internal/wallet/wallet.go
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/custody"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"go.uber.org/zap"
)

func (s *Service) CreateWallet(ctx context.Context) (*db.Wallet, error) {
	logging.Info("Starting wallet creation", zap.String("custody", s.keys.Name()))

	id, _, err := s.keys.Create(ctx)
	if err != nil {
		return nil, keyStoreError(err)
	}
	w, err := s.register(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &db.AuditEntry{Action: db.ActionWalletCreated, WalletID: w.WalletID})
	logging.Info("Wallet successfully created", zap.String("walletId", w.WalletID))
	return w, nil
}

func (s *Service) ImportWallet(ctx context.Context, privateKeyHex string) (*db.Wallet, error) {
	cleaned := evmutils.CleanInput(privateKeyHex)
	if !evmutils.IsHexPrivateKey(cleaned) {
		return nil, fmt.Errorf("%w: private key must be 32 bytes of hex", ErrValidation)
	}

	id, err := s.keys.Import(ctx, cleaned)
	if err != nil {
		return nil, keyStoreError(err)
	}
	w, err := s.register(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &db.AuditEntry{Action: db.ActionWalletImported, WalletID: w.WalletID})
	logging.Info("Wallet successfully imported", zap.String("walletId", w.WalletID))
	return w, nil
}

// RecoverWallet derives the key at m/44'/60'/0'/0/index from a BIP-39
// mnemonic and imports it.
func (s *Service) RecoverWallet(ctx context.Context, mnemonic string, index uint32) (*db.Wallet, error) {
	w, err := s.importDerived(ctx, mnemonic, index)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &db.AuditEntry{Action: db.ActionWalletRecovered, WalletID: w.WalletID})
	logging.Info("Wallet successfully recovered", zap.String("walletId", w.WalletID), zap.Uint32("index", index))
	return w, nil
}

// CreateMnemonicWallet generates a 24-word phrase and stores the key at
// index 0. The phrase is returned once and never persisted.
func (s *Service) CreateMnemonicWallet(ctx context.Context) (*db.Wallet, string, error) {
	mnemonic, err := evmutils.GenerateMnemonic()
	if err != nil {
		return nil, "", err
	}
	w, err := s.importDerived(ctx, mnemonic, 0)
	if err != nil {
		return nil, "", err
	}

	s.audit(ctx, &db.AuditEntry{Action: db.ActionWalletCreated, WalletID: w.WalletID})
	logging.Info("Wallet successfully created from new seed phrase", zap.String("walletId", w.WalletID))
	return w, mnemonic, nil
}

func (s *Service) importDerived(ctx context.Context, mnemonic string, index uint32) (*db.Wallet, error) {
	key, err := evmutils.DeriveKey(mnemonic, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	id, err := s.keys.Import(ctx, evmutils.PrivateKeyToHex(key))
	if err != nil {
		return nil, keyStoreError(err)
	}
	return s.register(ctx, id)
}

// register saves the wallet record for a stored key. The first wallet becomes
// the default. When the record cannot be saved, the key is removed only if no
// wallet with this id was registered before, so re-importing a live wallet
// never drops its key.
func (s *Service) register(ctx context.Context, walletID string) (*db.Wallet, error) {
	_, lookupErr := s.db.Wallets.Get(ctx, walletID)

	w := &db.Wallet{WalletID: walletID, Address: walletID, CreatedAt: s.now().UTC()}
	if err := s.db.Wallets.Add(ctx, w); err != nil {
		if errors.Is(lookupErr, db.ErrNotFound) {
			if _, delErr := s.keys.Delete(ctx, walletID); delErr != nil {
				logging.Error("Failed to remove orphaned key", zap.String("walletId", walletID), zap.Error(delErr))
			}
		}
		return nil, err
	}

	def, err := s.db.Wallets.Default(ctx)
	if err != nil {
		return nil, err
	}
	if def == "" {
		if err := s.db.Wallets.SetDefault(ctx, walletID); err != nil {
			return nil, err
		}
	}

	return s.db.Wallets.Get(ctx, walletID)
}

func (s *Service) ListWallets(ctx context.Context) (*db.WalletState, error) {
	return s.db.Wallets.Load(ctx)
}

// GetAddress returns the address of walletID, or of the default wallet when
// walletID is empty.
func (s *Service) GetAddress(ctx context.Context, walletID string) (string, error) {
	w, err := s.resolveWallet(ctx, walletID)
	if err != nil {
		return "", err
	}
	return w.Address, nil
}

func (s *Service) SetDefaultWallet(ctx context.Context, walletID string) error {
	w, err := s.resolveWallet(ctx, walletID)
	if err != nil {
		return err
	}
	if err := s.db.Wallets.SetDefault(ctx, w.WalletID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: wallet %s", ErrNotFound, w.WalletID)
		}
		return err
	}
	s.audit(ctx, &db.AuditEntry{Action: db.ActionWalletDefaultSet, WalletID: w.WalletID})
	return nil
}

// GetBalance returns the native balance in wei at the latest block.
func (s *Service) GetBalance(ctx context.Context, walletID string, chainID uint64) (*big.Int, error) {
	w, err := s.resolveWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	chainID, err = s.resolveChain(chainID)
	if err != nil {
		return nil, err
	}

	client, err := s.chains.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, common.HexToAddress(w.Address), nil)
	if err != nil {
		logging.Error("Error while getting balance", zap.String("address", w.Address), zap.Error(err))
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func keyStoreError(err error) error {
	switch {
	case errors.Is(err, custody.ErrInvalidKey):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", ErrKeyAccess, err)
	}
}
