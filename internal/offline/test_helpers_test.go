package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/weighing"
	"gorm.io/gorm"
)

var errDiskFull = errors.New("disk full")

type sequenceIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequenceIDGenerator) NewID(prefix string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", prefix, g.next), nil
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Unix(1700000000, 0).UTC()}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type flakyStore struct {
	localstore.Store
	mu      sync.Mutex
	failSet bool
	sets    int
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	fail := s.failSet
	s.sets++
	s.mu.Unlock()
	if fail {
		return localstore.NewStorageError("set", key, errDiskFull)
	}
	return s.Store.Set(ctx, key, value)
}

func (s *flakyStore) setFailing(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = fail
}

func (s *flakyStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func newTestStore(t *testing.T) *flakyStore {
	t.Helper()

	dsn := fmt.Sprintf("file:offline_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&localstore.Entry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	store, err := localstore.NewSQLiteStore(localstore.SQLiteStoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return &flakyStore{Store: store}
}

func newTestDraftStore(t *testing.T, store localstore.Store) *DraftStore {
	t.Helper()
	drafts, err := NewDraftStore(DraftStoreConfig{
		Store:       store,
		Clock:       newSteppingClock().Now,
		IDGenerator: &sequenceIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct draft store: %v", err)
	}
	return drafts
}

func newTestQueue(t *testing.T, store localstore.Store) *Queue {
	t.Helper()
	queue, err := NewQueue(QueueConfig{
		Store:       store,
		Clock:       newSteppingClock().Now,
		IDGenerator: &sequenceIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct queue: %v", err)
	}
	return queue
}

func vesselID(value int64) *int64 {
	return &value
}

func submittableRecord(vessel int64, fishType string) weighing.Record {
	return weighing.Record{
		FishType:  fishType,
		UnitPrice: 1000,
		VesselID:  vesselID(vessel),
		Containers: []weighing.Container{
			{Code: "B1", TareWeight: 20, GrossWeight: weighing.NewNumber(100).Pointer(), ContainerType: weighing.ContainerTypeBin},
		},
	}
}

func localIDs(records []weighing.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.LocalID)
	}
	return out
}
