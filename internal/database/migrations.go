package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/offline"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillQueueStatus = "2026-10-01_backfill_queue_status"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillQueueStatus, apply: backfillQueueStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillQueueStatus writes the queue summary for queues persisted before the summary
// entry existed. A queue entry that does not parse is left for the queue to report.
func backfillQueueStatus(db *gorm.DB) error {
	ctx := context.Background()
	store, err := localstore.NewSQLiteStore(localstore.SQLiteStoreConfig{Database: db})
	if err != nil {
		return err
	}
	if _, found, err := store.Get(ctx, offline.QueueStatusKey); err != nil || found {
		return err
	}
	queued, err := localstore.LoadList[json.RawMessage](ctx, store, offline.QueueKey)
	if err != nil {
		if errors.Is(err, localstore.ErrCorruptValue) {
			return nil
		}
		return err
	}
	if len(queued) == 0 {
		return nil
	}
	return localstore.SaveValue(ctx, store, offline.QueueStatusKey, offline.NewStatus(len(queued), time.Now()))
}
