package db

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DayKey is the UTC calendar day used by the spend ledger.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SpendLedger keeps one running total of native value sent per UTC day.
type SpendLedger struct {
	db *gorm.DB
}

// SpentOn returns the total for date, zero when nothing was spent.
func (l *SpendLedger) SpentOn(ctx context.Context, date string) (*big.Int, error) {
	return spentOn(l.db.WithContext(ctx), date, false)
}

// AddSpend adds value to the total for date and returns the new total. The
// first spend of a day starts the total at value.
func (l *SpendLedger) AddSpend(ctx context.Context, date string, value *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, errors.New("spend value must be non-negative")
	}

	var total *big.Int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := spentOn(tx, date, isPostgres(tx))
		if err != nil {
			return err
		}
		total = new(big.Int).Add(current, value)

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}},
			DoUpdates: clause.AssignmentColumns([]string{"total_wei", "updated_at"}),
		}).Create(&DailySpend{
			Date:      date,
			TotalWei:  total.String(),
			UpdatedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record spend: %w", err)
	}
	return total, nil
}

func spentOn(q *gorm.DB, date string, lock bool) (*big.Int, error) {
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec DailySpend
	err := q.Where("day = ?", date).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daily spend: %w", err)
	}
	v, ok := new(big.Int).SetString(rec.TotalWei, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt daily spend total %q for %s", rec.TotalWei, date)
	}
	return v, nil
}
