package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000
)

// AuditLog is append-only: there is no update or delete.
type AuditLog struct {
	db *gorm.DB
}

func (a *AuditLog) Append(ctx context.Context, e *AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := a.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries, most recent first.
func (a *AuditLog) Query(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	q := a.db.WithContext(ctx).Order("id desc").Limit(limit)
	if f.WalletID != "" {
		q = q.Where("wallet_id = ?", f.WalletID)
	}
	if f.ChainID != 0 {
		q = q.Where("chain_id = ?", f.ChainID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}

	var entries []AuditEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	return entries, nil
}
