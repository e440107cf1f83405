package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/navipesca/weighsync/internal/connectivity"
	"github.com/navipesca/weighsync/internal/ids"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/offline"
	"github.com/navipesca/weighsync/internal/remote"
	"github.com/navipesca/weighsync/internal/syncer"
	"github.com/navipesca/weighsync/internal/weighing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubSubmitter struct {
	mu     sync.Mutex
	err    error
	nextID int
}

func (s *stubSubmitter) CreateRecord(_ context.Context, payload remote.RecordPayload) (remote.RemoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return remote.RemoteRecord{}, s.err
	}
	s.nextID++
	return remote.RemoteRecord{ID: remote.RemoteID(strconv.Itoa(s.nextID)), RecordPayload: payload}, nil
}

type stubRemoteReader struct {
	records []remote.RemoteRecord
	vessels []remote.Vessel
	err     error
}

func (s stubRemoteReader) ListRecords(context.Context) ([]remote.RemoteRecord, error) {
	return s.records, s.err
}

func (s stubRemoteReader) ListVessels(context.Context) ([]remote.Vessel, error) {
	return s.vessels, s.err
}

type staticCredentials struct{}

func (staticCredentials) Token() (string, error) {
	return "token", nil
}

type testServer struct {
	handler   http.Handler
	drafts    *offline.DraftStore
	queue     *offline.Queue
	events    *EventDispatcher
	sync      *syncer.Service
	submitter *stubSubmitter
}

type testServerOptions struct {
	connected bool
	reader    RemoteReader
	session   SessionHolder
}

func newTestServer(t *testing.T, options testServerOptions) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	drafts, err := offline.NewDraftStore(offline.DraftStoreConfig{Store: store, IDGenerator: generator})
	if err != nil {
		t.Fatalf("failed to construct drafts: %v", err)
	}
	queue, err := offline.NewQueue(offline.QueueConfig{Store: store, IDGenerator: generator})
	if err != nil {
		t.Fatalf("failed to construct queue: %v", err)
	}
	submitter := &stubSubmitter{}
	engine, err := syncer.NewEngine(syncer.EngineConfig{Submitter: submitter, Operator: "Rosa"})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	events := NewEventDispatcher()
	service, err := syncer.NewService(syncer.ServiceConfig{
		Queue:        queue,
		Drafts:       drafts,
		Engine:       engine,
		Credentials:  staticCredentials{},
		Connectivity: connectivity.Static(options.connected),
		Notify:       events.SyncNotifier(queue),
	})
	if err != nil {
		t.Fatalf("failed to construct sync service: %v", err)
	}

	reader := options.reader
	if reader == nil {
		reader = stubRemoteReader{}
	}
	handler, err := NewHTTPHandler(Dependencies{
		Drafts:            drafts,
		Queue:             queue,
		Sync:              service,
		Remote:            reader,
		Session:           options.session,
		Events:            events,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return testServer{handler: handler, drafts: drafts, queue: queue, events: events, sync: service, submitter: submitter}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func mustDecode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func submittableRecord(vessel int64, fishType string) weighing.Record {
	return weighing.Record{
		FishType:  fishType,
		UnitPrice: 1000,
		VesselID:  &vessel,
		Containers: []weighing.Container{
			{Code: "B1", TareWeight: 20, GrossWeight: weighing.NewNumber(100).Pointer(), ContainerType: weighing.ContainerTypeBin},
		},
	}
}
