package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"crypto_monitor/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStorage persists trade and book-update batches. It is the only
// durable write path in the system.
type SQLiteStorage struct {
	db *gorm.DB
}

// NewSQLiteStorage opens (or creates) the database at the given path
// and migrates the record tables.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	dbDir := filepath.Dir(path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TradeRow{}, &domain.BookUpdateRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// WriteBatch writes all records in a single transaction: either every
// record lands or none do, so a failed attempt can be retried whole.
func (s *SQLiteStorage) WriteBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	trades := make([]domain.TradeRow, 0, len(records))
	books := make([]domain.BookUpdateRow, 0)
	for _, r := range records {
		switch rec := r.(type) {
		case *domain.TradeRecord:
			trades = append(trades, domain.NewTradeRow(rec))
		case *domain.OrderBookUpdate:
			books = append(books, domain.NewBookUpdateRow(rec))
		default:
			return fmt.Errorf("unsupported record kind: %s", r.Kind())
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(trades) > 0 {
			if err := tx.Create(&trades).Error; err != nil {
				return err
			}
		}
		if len(books) > 0 {
			if err := tx.Create(&books).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// TradeCount returns the number of persisted trades (status reporting).
func (s *SQLiteStorage) TradeCount() (int64, error) {
	var n int64
	err := s.db.Model(&domain.TradeRow{}).Count(&n).Error
	return n, err
}

// BookCount returns the number of persisted book updates.
func (s *SQLiteStorage) BookCount() (int64, error) {
	var n int64
	err := s.db.Model(&domain.BookUpdateRow{}).Count(&n).Error
	return n, err
}

// Close releases the underlying database handle.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
