package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/memtensor/userdesk/pkg/errors"
)

// Entry is one stored key
type Entry struct {
	Key       string     `gorm:"primaryKey;column:name;size:255"`
	Value     string     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName overrides the gorm table name
func (Entry) TableName() string { return "session_entries" }

// DBStore is a Store backed by a SQLite database through gorm
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDBStore opens (or creates) the SQLite database at path. ":memory:"
// gives a private in-memory database.
func NewDBStore(path string) (*DBStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.NewStorageError("failed to open session database", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.NewStorageError("failed to open session database", err)
	}
	// one connection keeps an in-memory database shared and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.NewStorageError("failed to migrate session database", err)
	}
	return &DBStore{db: db, now: time.Now}, nil
}

func (s *DBStore) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl).UTC()
	return &t
}

func (s *DBStore) live(tx *gorm.DB, key string) (*Entry, error) {
	var e Entry
	err := tx.Where("name = ?", key).Take(&e).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errors.NewStorageError("session lookup failed", err)
	}
	if e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt) {
		tx.Delete(&Entry{}, "name = ?", key)
		return nil, notFound(key)
	}
	return &e, nil
}

func (s *DBStore) Get(ctx context.Context, key string) (string, error) {
	e, err := s.live(s.db.WithContext(ctx), key)
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

func (s *DBStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := Entry{Key: key, Value: value, ExpiresAt: s.expiry(ttl)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return errors.NewStorageError("session write failed", err)
	}
	return nil
}

func (s *DBStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.live(tx, key)
		if IsNotFound(err) {
			n = 1
			return tx.Create(&Entry{Key: key, Value: "1", ExpiresAt: s.expiry(ttl)}).Error
		}
		if err != nil {
			return err
		}
		n, err = strconv.ParseInt(e.Value, 10, 64)
		if err != nil {
			return errors.NewStorageError("value is not an integer", err).WithDetail("key", key)
		}
		n++
		return tx.Model(&Entry{}).Where("name = ?", key).Update("value", strconv.FormatInt(n, 10)).Error
	})
	if err != nil {
		if errors.IsAppError(err) {
			return 0, err
		}
		return 0, errors.NewStorageError("session increment failed", err)
	}
	return n, nil
}

func (s *DBStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Delete(&Entry{}, "name IN ?", keys).Error; err != nil {
		return errors.NewStorageError("session delete failed", err)
	}
	return nil
}

// Purge removes every expired entry and returns how many were removed
func (s *DBStore) Purge(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).Delete(&Entry{})
	if res.Error != nil {
		return 0, errors.NewStorageError("session purge failed", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
