package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/navipesca/weighsync/internal/ids"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/offline"
	"github.com/navipesca/weighsync/internal/remote"
	"github.com/navipesca/weighsync/internal/weighing"
	"gorm.io/gorm"
)

type scriptedSubmitter struct {
	mu       sync.Mutex
	failures map[string]error
	payloads []remote.RecordPayload
	nextID   int
	started  chan struct{}
	release  chan struct{}
}

func newScriptedSubmitter() *scriptedSubmitter {
	return &scriptedSubmitter{failures: map[string]error{}, nextID: 100}
}

func (s *scriptedSubmitter) CreateRecord(ctx context.Context, payload remote.RecordPayload) (remote.RemoteRecord, error) {
	s.mu.Lock()
	started, release := s.started, s.release
	s.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	if err, ok := s.failures[payload.FishType]; ok {
		return remote.RemoteRecord{}, err
	}
	s.nextID++
	return remote.RemoteRecord{ID: remote.RemoteID(strconv.Itoa(s.nextID)), RecordPayload: payload}, nil
}

func (s *scriptedSubmitter) failFishType(fishType string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[fishType] = err
}

func (s *scriptedSubmitter) submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.payloads))
	for _, payload := range s.payloads {
		out = append(out, payload.FishType)
	}
	return out
}

type staticCredentials struct {
	err error
}

func (c staticCredentials) Token() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "token", nil
}

type fixture struct {
	queue     *offline.Queue
	drafts    *offline.DraftStore
	submitter *scriptedSubmitter
	engine    *Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:syncer_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	generator := ids.NewUUIDGenerator()
	queue, err := offline.NewQueue(offline.QueueConfig{Store: store, IDGenerator: generator})
	if err != nil {
		t.Fatalf("failed to construct queue: %v", err)
	}
	drafts, err := offline.NewDraftStore(offline.DraftStoreConfig{Store: store, IDGenerator: generator})
	if err != nil {
		t.Fatalf("failed to construct drafts: %v", err)
	}
	submitter := newScriptedSubmitter()
	engine, err := NewEngine(EngineConfig{Submitter: submitter, Operator: "Rosa"})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	return fixture{queue: queue, drafts: drafts, submitter: submitter, engine: engine}
}

func (f fixture) newService(t *testing.T, configure func(*ServiceConfig)) *Service {
	t.Helper()
	cfg := ServiceConfig{
		Queue:       f.queue,
		Drafts:      f.drafts,
		Engine:      f.engine,
		Credentials: staticCredentials{},
	}
	if configure != nil {
		configure(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func (f fixture) enqueue(t *testing.T, fishTypes ...string) []weighing.Record {
	t.Helper()
	queued := make([]weighing.Record, 0, len(fishTypes))
	for _, fishType := range fishTypes {
		record, err := f.queue.Enqueue(context.Background(), submittableRecord(fishType))
		if err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		queued = append(queued, record)
	}
	return queued
}

func submittableRecord(fishType string) weighing.Record {
	vessel := int64(5)
	return weighing.Record{
		FishType:  fishType,
		UnitPrice: 1000,
		VesselID:  &vessel,
		Containers: []weighing.Container{
			{Code: "B1", TareWeight: 20, GrossWeight: weighing.NewNumber(100).Pointer(), ContainerType: weighing.ContainerTypeBin},
		},
	}
}
