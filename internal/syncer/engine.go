package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/navipesca/weighsync/internal/remote"
	"github.com/navipesca/weighsync/internal/weighing"
	"go.uber.org/zap"
)

var errMissingSubmitter = errors.New("syncer: submitter required")

// Submitter transmits a single record to the backend.
type Submitter interface {
	CreateRecord(ctx context.Context, payload remote.RecordPayload) (remote.RemoteRecord, error)
}

// Outcome is the result of one transmission attempt. Index is the position of the record in
// the drained snapshot.
type Outcome struct {
	Index    int    `json:"index"`
	LocalID  string `json:"localId"`
	Success  bool   `json:"success"`
	RemoteID string `json:"remoteId,omitempty"`
	Message  string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

// EngineConfig describes the dependencies of an Engine.
type EngineConfig struct {
	Submitter Submitter
	Operator  string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Engine transmits queued records one at a time. It never mutates the queue; callers apply
// the outcomes.
type Engine struct {
	submitter Submitter
	operator  string
	clock     func() time.Time
	logger    *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Submitter == nil {
		return nil, errMissingSubmitter
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		submitter: cfg.Submitter,
		operator:  cfg.Operator,
		clock:     clock,
		logger:    logger,
	}, nil
}

// DrainAll attempts every record in order and returns one outcome per record. A failed
// record never stops the pass. Once ctx is done the remaining records are reported as failed
// without being attempted; a request already in flight is allowed to finish.
func (e *Engine) DrainAll(ctx context.Context, records []weighing.Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for index, record := range records {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, failure(index, record.LocalID, err))
			continue
		}
		outcomes = append(outcomes, e.attempt(ctx, index, record))
	}
	return outcomes
}

// SyncOne attempts a single record.
func (e *Engine) SyncOne(ctx context.Context, record weighing.Record) Outcome {
	if err := ctx.Err(); err != nil {
		return failure(0, record.LocalID, err)
	}
	return e.attempt(ctx, 0, record)
}

func (e *Engine) attempt(ctx context.Context, index int, record weighing.Record) Outcome {
	payload, err := remote.BuildPayload(record, remote.PayloadDefaults{Operator: e.operator, Now: e.clock().UTC()})
	if err != nil {
		e.logger.Warn("record not transmittable", zap.String("local_id", record.LocalID), zap.Error(err))
		return failure(index, record.LocalID, err)
	}

	created, err := e.submitter.CreateRecord(context.WithoutCancel(ctx), payload)
	if err != nil {
		e.logger.Warn("record transmission failed", zap.String("local_id", record.LocalID), zap.Error(err))
		return failure(index, record.LocalID, err)
	}

	e.logger.Info("record transmitted", zap.String("local_id", record.LocalID), zap.String("remote_id", string(created.ID)))
	return Outcome{
		Index:    index,
		LocalID:  record.LocalID,
		Success:  true,
		RemoteID: string(created.ID),
	}
}

func failure(index int, localID string, err error) Outcome {
	return Outcome{
		Index:   index,
		LocalID: localID,
		Message: remote.Message(err),
		Err:     err,
	}
}
