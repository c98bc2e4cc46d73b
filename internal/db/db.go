// internal/db/db.go
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNotFound    = errors.New("record not found")
	ErrStaleStatus = errors.New("status changed concurrently")
)

// DB owns the connection and the stores built on it.
type DB struct {
	conn *gorm.DB

	Wallets *WalletStore
	Pending *PendingStore
	Spend   *SpendLedger
	Audit   *AuditLog
}

// Open connects to PostgreSQL when databaseURL is set and to
// <stateDir>/wallet.db otherwise, then brings the schema up to date.
func Open(ctx context.Context, stateDir, databaseURL string) (*DB, error) {
	gormCfg := &gorm.Config{
		Logger: newGormLogger(),
	}

	var (
		conn *gorm.DB
		err  error
	)
	if databaseURL != "" {
		conn, err = openPostgres(ctx, databaseURL, gormCfg)
	} else {
		conn, err = openSQLite(stateDir, gormCfg)
	}
	if err != nil {
		return nil, err
	}

	if err := CheckSchema(conn); err != nil {
		return nil, err
	}
	return newDB(conn), nil
}

func newDB(conn *gorm.DB) *DB {
	return &DB{
		conn:    conn,
		Wallets: &WalletStore{db: conn},
		Pending: &PendingStore{db: conn},
		Spend:   &SpendLedger{db: conn},
		Audit:   &AuditLog{db: conn},
	}
}

func openSQLite(stateDir string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if stateDir == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	path := filepath.Join(stateDir, "wallet.db")
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	conn, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers inside the process.
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(&Wallet{}, &Metadata{}, &PendingTx{}, &DailySpend{}, &AuditEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logging.Info("SQLite database initialized", zap.String("path", path))
	return conn, nil
}

func openPostgres(ctx context.Context, databaseURL string, gormCfg *gorm.Config) (*gorm.DB, error) {
	var conn *gorm.DB
	err := utils.Retry(ctx, 30, 2*time.Second, logging.GetLogger(), func() error {
		var err error
		conn, err = gorm.Open(postgres.Open(databaseURL), gormCfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("error running migrations: %w", err)
	}
	return conn, nil
}

func runMigrations(databaseURL string) error {
	logging.Info("Starting migrations")

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("error initializing migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}

	logging.Info("Migrations completed successfully")
	return nil
}

func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	sqlDB, err := d.conn.DB()
	if err != nil {
		return fmt.Errorf("error getting sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func isPostgres(conn *gorm.DB) bool {
	return strings.EqualFold(conn.Dialector.Name(), "postgres")
}
