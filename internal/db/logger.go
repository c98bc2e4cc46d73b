package db

import (
	"fmt"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"gorm.io/gorm/logger"
)

// zapWriter sends gorm's log lines to the global zap logger, which writes to
// stderr and keeps stdout clean for command output.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logging.Error(fmt.Sprintf(format, args...))
}

// newGormLogger reports failed queries only. A First miss is an expected
// lookup result for the stores, so it is not logged.
func newGormLogger() logger.Interface {
	return logger.New(zapWriter{}, logger.Config{
		LogLevel:                  logger.Error,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
