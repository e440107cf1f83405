package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/navipesca/weighsync/internal/connectivity"
	"github.com/navipesca/weighsync/internal/weighing"
	"go.uber.org/zap"
)

var (
	// ErrSyncInProgress is returned when a drain or retry is already running.
	ErrSyncInProgress = errors.New("syncer: sync already in progress")
	// ErrMissingCredential is returned when no usable backend credential is held.
	ErrMissingCredential = errors.New("syncer: credential required")
	// ErrRecordNotQueued is returned by RetryOne for an unknown local id.
	ErrRecordNotQueued = errors.New("syncer: record not queued")

	errMissingQueue       = errors.New("syncer: queue required")
	errMissingDrafts      = errors.New("syncer: draft store required")
	errMissingEngine      = errors.New("syncer: engine required")
	errMissingCredentials = errors.New("syncer: credential source required")
)

// Queue is the pending queue as seen by the sync service.
type Queue interface {
	Enqueue(ctx context.Context, record weighing.Record) (weighing.Record, error)
	List(ctx context.Context) ([]weighing.Record, error)
	RemoveByIndices(ctx context.Context, indices []int) error
	RemoveByIDs(ctx context.Context, localIDs []string) error
	MarkFailed(ctx context.Context, failures map[string]string) error
	Clear(ctx context.Context) error
}

// Drafts is the part of the draft store the sync service needs.
type Drafts interface {
	Remove(ctx context.Context, localID string) error
}

// Credentials reports the backend credential.
type Credentials interface {
	Token() (string, error)
}

// Report summarizes one drain.
type Report struct {
	Attempted  int       `json:"attempted"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Summary renders the report for the operator.
func (r Report) Summary() string {
	return fmt.Sprintf("synced %d of %d", r.Synced, r.Attempted)
}

// SubmitResult describes where a submitted record ended up.
type SubmitResult struct {
	Synced   bool             `json:"synced"`
	RemoteID string           `json:"remoteId,omitempty"`
	Queued   *weighing.Record `json:"queued,omitempty"`
	Message  string           `json:"error,omitempty"`
}

// ServiceConfig describes the dependencies of a Service.
type ServiceConfig struct {
	Queue        Queue
	Drafts       Drafts
	Engine       *Engine
	Credentials  Credentials
	Connectivity connectivity.Signal
	Notify       func(Report)
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Service applies sync outcomes to the pending queue. Drains, retries and queue deletions
// are serialized so the positions captured by a drain stay valid until it removes them.
type Service struct {
	mu           sync.Mutex
	queue        Queue
	drafts       Drafts
	engine       *Engine
	credentials  Credentials
	connectivity connectivity.Signal
	notify       func(Report)
	clock        func() time.Time
	logger       *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queue == nil {
		return nil, errMissingQueue
	}
	if cfg.Drafts == nil {
		return nil, errMissingDrafts
	}
	if cfg.Engine == nil {
		return nil, errMissingEngine
	}
	if cfg.Credentials == nil {
		return nil, errMissingCredentials
	}
	signal := cfg.Connectivity
	if signal == nil {
		signal = connectivity.Static(true)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		queue:        cfg.Queue,
		drafts:       cfg.Drafts,
		engine:       cfg.Engine,
		credentials:  cfg.Credentials,
		connectivity: signal,
		notify:       cfg.Notify,
		clock:        clock,
		logger:       logger,
	}, nil
}

// SyncPending drains the whole queue once. Successful records are removed in a single call
// using their positions in the drained snapshot; failed records stay queued, marked failed.
func (s *Service) SyncPending(ctx context.Context) (Report, error) {
	if !s.mu.TryLock() {
		return Report{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	if err := s.requireCredential(); err != nil {
		return Report{}, err
	}

	records, err := s.queue.List(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{StartedAt: s.clock().UTC()}
	if len(records) == 0 {
		report.FinishedAt = report.StartedAt
		report.Outcomes = []Outcome{}
		return report, nil
	}

	outcomes := s.engine.DrainAll(ctx, records)
	applyErr := s.apply(context.WithoutCancel(ctx), outcomes)

	report.Attempted = len(outcomes)
	report.Outcomes = outcomes
	for _, outcome := range outcomes {
		if outcome.Success {
			report.Synced++
		} else {
			report.Failed++
		}
	}
	report.FinishedAt = s.clock().UTC()

	s.logger.Info("queue drained",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed))
	s.publish(report)
	return report, applyErr
}

// RetryOne transmits the queued record stored under localID and removes it by id on success.
func (s *Service) RetryOne(ctx context.Context, localID string) (Outcome, error) {
	if !s.mu.TryLock() {
		return Outcome{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	if err := s.requireCredential(); err != nil {
		return Outcome{}, err
	}

	records, err := s.queue.List(ctx)
	if err != nil {
		return Outcome{}, err
	}
	index := -1
	for position, record := range records {
		if record.LocalID == localID {
			index = position
			break
		}
	}
	if index < 0 {
		return Outcome{}, fmt.Errorf("%w: %s", ErrRecordNotQueued, localID)
	}

	startedAt := s.clock().UTC()
	outcome := s.engine.SyncOne(ctx, records[index])
	outcome.Index = index

	storeCtx := context.WithoutCancel(ctx)
	var applyErr error
	if outcome.Success {
		applyErr = s.queue.RemoveByIDs(storeCtx, []string{localID})
	} else if err := s.queue.MarkFailed(storeCtx, map[string]string{localID: outcome.Message}); err != nil {
		s.logger.Warn("failed record could not be marked", zap.String("local_id", localID), zap.Error(err))
	}

	report := Report{Attempted: 1, Outcomes: []Outcome{outcome}, StartedAt: startedAt, FinishedAt: s.clock().UTC()}
	if outcome.Success {
		report.Synced = 1
	} else {
		report.Failed = 1
	}
	s.publish(report)
	return outcome, applyErr
}

// Submit finalizes record. It is transmitted directly when the backend is reachable;
// otherwise, or when transmission fails, it is queued under a fresh local id. The draft the
// record came from is removed once it was transmitted or queued.
func (s *Service) Submit(ctx context.Context, record weighing.Record) (SubmitResult, error) {
	if err := record.ValidateSubmittable(); err != nil {
		return SubmitResult{}, err
	}
	draftID := record.LocalID

	var result SubmitResult
	if s.connectivity.Connected(ctx) && s.requireCredential() == nil {
		outcome := s.engine.SyncOne(ctx, record)
		if outcome.Success {
			result = SubmitResult{Synced: true, RemoteID: outcome.RemoteID}
		} else {
			result.Message = outcome.Message
		}
	}

	if !result.Synced {
		pending := record.Clone()
		pending.LocalID = ""
		queued, err := s.queue.Enqueue(ctx, pending)
		if err != nil {
			return SubmitResult{}, err
		}
		if result.Message != "" {
			if err := s.queue.MarkFailed(ctx, map[string]string{queued.LocalID: result.Message}); err != nil {
				s.logger.Warn("failed record could not be marked", zap.String("local_id", queued.LocalID), zap.Error(err))
			} else {
				queued.SyncStatus = weighing.SyncStatusFailed
				queued.LastError = result.Message
			}
		}
		result.Queued = &queued
	}

	if draftID != "" {
		if err := s.drafts.Remove(context.WithoutCancel(ctx), draftID); err != nil {
			s.logger.Warn("submitted draft could not be removed", zap.String("local_id", draftID), zap.Error(err))
		}
	}
	return result, nil
}

// Discard removes queued records by local id without transmitting them.
func (s *Service) Discard(ctx context.Context, localIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.RemoveByIDs(ctx, localIDs)
}

// ClearQueue drops every queued record.
func (s *Service) ClearQueue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.Clear(ctx)
}

func (s *Service) apply(ctx context.Context, outcomes []Outcome) error {
	synced := make([]int, 0, len(outcomes))
	failures := make(map[string]string)
	for _, outcome := range outcomes {
		if outcome.Success {
			synced = append(synced, outcome.Index)
			continue
		}
		failures[outcome.LocalID] = outcome.Message
	}

	if err := s.queue.RemoveByIndices(ctx, synced); err != nil {
		s.logger.Error("synced records could not be removed", zap.Int("count", len(synced)), zap.Error(err))
		return err
	}
	if err := s.queue.MarkFailed(ctx, failures); err != nil {
		s.logger.Warn("failed records could not be marked", zap.Int("count", len(failures)), zap.Error(err))
	}
	return nil
}

func (s *Service) requireCredential() error {
	if _, err := s.credentials.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingCredential, err)
	}
	return nil
}

func (s *Service) publish(report Report) {
	if s.notify != nil {
		s.notify(report)
	}
}
