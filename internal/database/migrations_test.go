package database

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/offline"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openMigrationDatabase(testContext *testing.T) (*gorm.DB, *localstore.SQLiteStore) {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&localstore.Entry{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	store, err := localstore.NewSQLiteStore(localstore.SQLiteStoreConfig{Database: database})
	if err != nil {
		testContext.Fatalf("failed to construct store: %v", err)
	}
	return database, store
}

func TestApplyMigrationsBackfillsQueueStatus(testContext *testing.T) {
	database, store := openMigrationDatabase(testContext)
	ctx := context.Background()

	legacyQueue := `[{"localId":"offline-1","fishType":"jurel"},{"localId":"offline-2","fishType":"merluza"}]`
	if err := store.Set(ctx, offline.QueueKey, legacyQueue); err != nil {
		testContext.Fatalf("failed to seed queue: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	status, found, err := localstore.LoadValue[offline.Status](ctx, store, offline.QueueStatusKey)
	if err != nil || !found {
		testContext.Fatalf("expected status to be backfilled, found=%v err=%v", found, err)
	}
	if status.PendingCount != 2 || !status.HasPending {
		testContext.Fatalf("unexpected status %#v", status)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillQueueStatus).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database, store := openMigrationDatabase(testContext)
	ctx := context.Background()

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}
	if _, found, _ := store.Get(ctx, offline.QueueStatusKey); found {
		testContext.Fatalf("empty queue should not get a status entry")
	}

	if err := store.Set(ctx, offline.QueueKey, `[{"localId":"offline-1"}]`); err != nil {
		testContext.Fatalf("failed to seed queue: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}
	if _, found, _ := store.Get(ctx, offline.QueueStatusKey); found {
		testContext.Fatalf("migration must not run twice")
	}
}

func TestApplyMigrationsToleratesCorruptQueue(testContext *testing.T) {
	database, store := openMigrationDatabase(testContext)

	if err := store.Set(context.Background(), offline.QueueKey, `{"broken":`); err != nil {
		testContext.Fatalf("failed to seed queue: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("corrupt queue should not block startup: %v", err)
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "weighsync.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	if !database.Migrator().HasTable(&localstore.Entry{}) || !database.Migrator().HasTable(&migrationRecord{}) {
		testContext.Fatalf("expected key/value and migration tables")
	}
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}
