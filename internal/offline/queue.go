package offline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/navipesca/weighsync/internal/ids"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/weighing"
	"go.uber.org/zap"
)

const (
	// QueueKey is the storage key holding the pending queue.
	QueueKey = "pesajes_pendientes"
	// QueueStatusKey is the storage key holding the cached queue summary.
	QueueStatusKey = "pesajes_status"
)

// Status summarizes the pending queue without loading it.
type Status struct {
	PendingCount int       `json:"pendingCount"`
	HasPending   bool      `json:"hasPending"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// NewStatus builds the summary of a queue holding count records.
func NewStatus(count int, at time.Time) Status {
	return Status{
		PendingCount: count,
		HasPending:   count > 0,
		LastUpdated:  at.UTC(),
	}
}

// QueueConfig describes the dependencies of a Queue.
type QueueConfig struct {
	Store       localstore.Store
	Clock       func() time.Time
	IDGenerator ids.Generator
	Logger      *zap.Logger
}

// Queue holds finalized records awaiting transmission, oldest first. Mutations read the
// whole queue, compute the new one and write it back in a single Set under the queue mutex,
// so a failed write leaves the previous queue intact.
type Queue struct {
	mu     sync.Mutex
	store  localstore.Store
	clock  func() time.Time
	ids    ids.Generator
	logger *zap.Logger
}

// NewQueue constructs a Queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opNewQueue, reasonMissingStore, errMissingStore)
	}
	if cfg.IDGenerator == nil {
		return nil, newServiceError(opNewQueue, reasonMissingIDs, errMissingIDGenerator)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Queue{
		store:  cfg.Store,
		clock:  clock,
		ids:    cfg.IDGenerator,
		logger: logger,
	}, nil
}

// Enqueue appends a submittable record to the end of the queue. Records of the same vessel
// are never deduplicated.
func (q *Queue) Enqueue(ctx context.Context, record weighing.Record) (weighing.Record, error) {
	if err := record.ValidateSubmittable(); err != nil {
		return weighing.Record{}, newServiceError(opEnqueue, reasonInvalid, err)
	}

	incoming := record.Refresh()
	incoming.RemoteID = ""
	incoming.SyncStatus = weighing.SyncStatusPending
	incoming.LastError = ""
	if err := assignLocalIDs(q.ids, &incoming, ids.QueuePrefix); err != nil {
		logError(q.logger, opEnqueue, reasonIDFailed, err)
		return weighing.Record{}, newServiceError(opEnqueue, reasonIDFailed, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	queued, err := q.load(ctx, opEnqueue)
	if err != nil {
		return weighing.Record{}, err
	}
	for _, existing := range queued {
		if existing.LocalID == incoming.LocalID {
			cause := fmt.Errorf("%w: %s", errDuplicateLocalID, incoming.LocalID)
			return weighing.Record{}, newServiceError(opEnqueue, reasonDuplicateID, cause)
		}
	}

	now := q.clock().UTC()
	incoming.CreatedAt = now
	incoming.UpdatedAt = now
	if err := q.save(ctx, opEnqueue, append(queued, incoming), now); err != nil {
		return weighing.Record{}, err
	}

	q.logger.Info("record queued",
		zap.String(fieldLocalID, incoming.LocalID),
		vesselField(incoming.VesselID),
		zap.Int(fieldCount, len(queued)+1))
	return incoming.Clone(), nil
}

// List returns the queue in transmission order.
func (q *Queue) List(ctx context.Context) ([]weighing.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.load(ctx, opListQueue)
}

// RemoveByIndices removes the records at the given zero-based positions of the queue as it
// is stored when the call runs. Out-of-range positions are ignored. Positions are not stable
// across mutations; callers outside a single drain pass should use RemoveByIDs.
func (q *Queue) RemoveByIndices(ctx context.Context, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	drop := make(map[int]struct{}, len(indices))
	for _, index := range indices {
		drop[index] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	queued, err := q.load(ctx, opRemoveByIndices)
	if err != nil {
		return err
	}
	remaining := make([]weighing.Record, 0, len(queued))
	for index, record := range queued {
		if _, ok := drop[index]; !ok {
			remaining = append(remaining, record)
		}
	}
	return q.replace(ctx, opRemoveByIndices, queued, remaining)
}

// RemoveByIDs removes the records with the given local ids. Unknown ids are ignored.
func (q *Queue) RemoveByIDs(ctx context.Context, localIDs []string) error {
	if len(localIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(localIDs))
	for _, id := range localIDs {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	queued, err := q.load(ctx, opRemoveByIDs)
	if err != nil {
		return err
	}
	remaining := make([]weighing.Record, 0, len(queued))
	for _, record := range queued {
		if _, ok := drop[record.LocalID]; !ok {
			remaining = append(remaining, record)
		}
	}
	return q.replace(ctx, opRemoveByIDs, queued, remaining)
}

// MarkFailed flags queued records as failed, keyed by local id, storing the failure message.
// Every other field of a failed record, updatedAt included, is left as it was queued.
func (q *Queue) MarkFailed(ctx context.Context, failures map[string]string) error {
	if len(failures) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	queued, err := q.load(ctx, opMarkFailed)
	if err != nil {
		return err
	}
	now := q.clock().UTC()
	changed := 0
	for index, record := range queued {
		message, ok := failures[record.LocalID]
		if !ok {
			continue
		}
		record.SyncStatus = weighing.SyncStatusFailed
		record.LastError = message
		queued[index] = record
		changed++
	}
	if changed == 0 {
		return nil
	}
	return q.save(ctx, opMarkFailed, queued, now)
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Remove(ctx, QueueKey); err != nil {
		logError(q.logger, opClearQueue, reasonWriteFailed, err)
		return newServiceError(opClearQueue, reasonWriteFailed, err)
	}
	q.writeStatus(ctx, NewStatus(0, q.clock()))
	q.logger.Info("queue cleared")
	return nil
}

// Status returns the cached queue summary, rebuilding it from the queue when absent.
func (q *Queue) Status(ctx context.Context) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	status, found, err := localstore.LoadValue[Status](ctx, q.store, QueueStatusKey)
	if err == nil && found {
		return status, nil
	}
	if err != nil {
		q.logger.Warn("queue status unreadable, rebuilding", zap.Error(err))
	}

	queued, loadErr := q.load(ctx, opQueueStatus)
	if loadErr != nil {
		return Status{}, loadErr
	}
	status = NewStatus(len(queued), q.clock())
	q.writeStatus(ctx, status)
	return status, nil
}

func (q *Queue) replace(ctx context.Context, operation string, before, after []weighing.Record) error {
	if len(after) == len(before) {
		return nil
	}
	if err := q.save(ctx, operation, after, q.clock().UTC()); err != nil {
		return err
	}
	q.logger.Info("queued records removed",
		zap.String("operation", operation),
		zap.Int("removed", len(before)-len(after)),
		zap.Int(fieldCount, len(after)))
	return nil
}

func (q *Queue) load(ctx context.Context, operation string) ([]weighing.Record, error) {
	queued, err := localstore.LoadList[weighing.Record](ctx, q.store, QueueKey)
	if err != nil {
		logError(q.logger, operation, reasonReadFailed, err)
		return nil, newServiceError(operation, reasonReadFailed, err)
	}
	for index, record := range queued {
		queued[index] = record.Refresh()
	}
	return queued, nil
}

func (q *Queue) save(ctx context.Context, operation string, queued []weighing.Record, now time.Time) error {
	if err := localstore.SaveList(ctx, q.store, QueueKey, queued); err != nil {
		logError(q.logger, operation, reasonWriteFailed, err, zap.Int(fieldCount, len(queued)))
		return newServiceError(operation, reasonWriteFailed, err)
	}
	q.writeStatus(ctx, NewStatus(len(queued), now))
	return nil
}

// writeStatus refreshes the cached summary. The queue entry is authoritative; a failed
// summary write is logged and the summary entry dropped so Status rebuilds it.
func (q *Queue) writeStatus(ctx context.Context, status Status) {
	if err := localstore.SaveValue(ctx, q.store, QueueStatusKey, status); err != nil {
		q.logger.Warn("queue status write failed", zap.Error(err))
		if removeErr := q.store.Remove(ctx, QueueStatusKey); removeErr != nil {
			q.logger.Warn("stale queue status could not be dropped", zap.Error(removeErr))
		}
	}
}
