package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultWalletKey = "default_wallet_id"

type WalletStore struct {
	db *gorm.DB
}

// Add inserts w; adding an existing wallet id is a no-op.
func (s *WalletStore) Add(ctx context.Context, w *Wallet) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet_id"}}, DoNothing: true}).
		Create(w).Error
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

func (s *WalletStore) Get(ctx context.Context, walletID string) (*Wallet, error) {
	var w Wallet
	err := s.db.WithContext(ctx).Where("wallet_id = ?", walletID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (s *WalletStore) List(ctx context.Context) ([]Wallet, error) {
	var wallets []Wallet
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// Load returns the whole registry with its default pointer.
func (s *WalletStore) Load(ctx context.Context) (*WalletState, error) {
	wallets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	def, err := s.Default(ctx)
	if err != nil {
		return nil, err
	}

	state := &WalletState{DefaultWalletID: def, Wallets: make(map[string]Wallet, len(wallets))}
	for _, w := range wallets {
		state.Wallets[w.WalletID] = w
	}
	return state, nil
}

// Default returns the default wallet id, or "" when none is set.
func (s *WalletStore) Default(ctx context.Context) (string, error) {
	var m Metadata
	err := s.db.WithContext(ctx).Where("meta_key = ?", defaultWalletKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get default wallet: %w", err)
	}
	return m.Value, nil
}

// SetDefault points the default at an existing wallet.
func (s *WalletStore) SetDefault(ctx context.Context, walletID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Wallet{}).Where("wallet_id = ?", walletID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check wallet: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "meta_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"meta_value"}),
		}).Create(&Metadata{Key: defaultWalletKey, Value: walletID}).Error
	})
}
