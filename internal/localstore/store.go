package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opGet    = "get"
	opSet    = "set"
	opRemove = "remove"
	opDecode = "decode"
	opEncode = "encode"
)

var (
	// ErrCorruptValue marks a stored value that is not valid JSON for its expected shape.
	ErrCorruptValue = errors.New("localstore: corrupt value")

	errMissingDatabase = errors.New("database handle is required")
)

// Store is the key/value persistence contract shared by the draft store and the pending queue.
// Values are JSON documents.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// StorageError reports a failed persistence operation. The operation that produced it must
// be treated as not applied.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("localstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps err as a StorageError.
func NewStorageError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}

// NewDecodeError reports a stored value that could not be parsed.
func NewDecodeError(key string, err error) error {
	return NewStorageError(opDecode, key, fmt.Errorf("%w: %v", ErrCorruptValue, err))
}

// NewEncodeError reports a value that could not be serialized for storage.
func NewEncodeError(key string, err error) error {
	return NewStorageError(opEncode, key, err)
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

// Entry is a persisted key/value pair.
type Entry struct {
	Key              string         `gorm:"column:entry_key;primaryKey;size:190;not null"`
	Value            datatypes.JSON `gorm:"column:entry_value;not null"`
	UpdatedAtSeconds int64          `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "local_entries"
}

// SQLiteStoreConfig describes the dependencies of a SQLiteStore.
type SQLiteStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// SQLiteStore persists entries in a single table. Each Set is one upsert statement, so a
// value is either fully replaced or left untouched.
type SQLiteStore struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewSQLiteStore constructs a SQLiteStore.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Get returns the value stored under key and whether it exists.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("local store read failed", zap.String("key", key), zap.Error(err))
		return "", false, NewStorageError(opGet, key, err)
	}
	return string(entry.Value), true, nil
}

// Set replaces the value stored under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	entry := Entry{
		Key:              key,
		Value:            datatypes.JSON(value),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_s"}),
		}).
		Create(&entry).Error
	if err != nil {
		s.logger.Error("local store write failed", zap.String("key", key), zap.Error(err))
		return NewStorageError(opSet, key, err)
	}
	return nil
}

// Remove deletes the value stored under key. Removing a missing key is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error; err != nil {
		s.logger.Error("local store delete failed", zap.String("key", key), zap.Error(err))
		return NewStorageError(opRemove, key, err)
	}
	return nil
}
