package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PendingStore struct {
	db *gorm.DB
}

// Add inserts tx; a second Add with the same TxID is ignored.
func (s *PendingStore) Add(ctx context.Context, tx *PendingTx) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_id"}}, DoNothing: true}).
		Create(tx).Error
	if err != nil {
		return fmt.Errorf("failed to save pending transaction: %w", err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, txID string) (*PendingTx, error) {
	var tx PendingTx
	err := s.db.WithContext(ctx).Where("tx_id = ?", txID).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transaction: %w", err)
	}
	return &tx, nil
}

// List returns transactions newest first; an empty status lists all of them.
func (s *PendingStore) List(ctx context.Context, status TxStatus) ([]PendingTx, error) {
	q := s.db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var txs []PendingTx
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

// Transition moves txID from one status to another with a conditional update.
// It fails with ErrStaleStatus if the stored status is no longer from, so two
// callers racing on the same record cannot both win.
func (s *PendingStore) Transition(ctx context.Context, txID string, from, to TxStatus, upd TxUpdate) (*PendingTx, error) {
	if !canTransition(from, to) {
		return nil, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}

	values := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if upd.TxHash != "" {
		values["tx_hash"] = upd.TxHash
	}
	if upd.Error != "" {
		values["error"] = upd.Error
	}
	if upd.Nonce != nil {
		values["nonce"] = *upd.Nonce
	}
	if upd.GasLimit != "" {
		values["gas_limit"] = upd.GasLimit
	}
	if upd.GasPrice != "" {
		values["gas_price"] = upd.GasPrice
	}
	if upd.MaxFeePerGas != "" {
		values["max_fee_per_gas"] = upd.MaxFeePerGas
	}
	if upd.MaxPriorityFeePerGas != "" {
		values["max_priority_fee_per_gas"] = upd.MaxPriorityFeePerGas
	}

	res := s.db.WithContext(ctx).
		Model(&PendingTx{}).
		Where("tx_id = ? AND status = ?", txID, from).
		Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update pending transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, txID)
		if err != nil {
			return nil, err
		}
		return current, fmt.Errorf("transaction %s is %s, expected %s: %w", txID, current.Status, from, ErrStaleStatus)
	}
	return s.Get(ctx, txID)
}
