package db

import (
	"fmt"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckSchema verifies every table the stores rely on exists.
func CheckSchema(conn *gorm.DB) error {
	m := conn.Migrator()
	for _, model := range []interface{ TableName() string }{
		Wallet{}, Metadata{}, PendingTx{}, DailySpend{}, AuditEntry{},
	} {
		name := model.TableName()
		if !m.HasTable(name) {
			logging.Error("Missing table", zap.String("table", name))
			return fmt.Errorf("table %s is missing", name)
		}
		logging.Debug("Table info", zap.String("table", name), zap.String("dialect", conn.Dialector.Name()))
	}
	return nil
}
