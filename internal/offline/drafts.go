package offline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/navipesca/weighsync/internal/ids"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/weighing"
	"go.uber.org/zap"
)

// DraftsKey is the storage key holding the draft collection.
const DraftsKey = "pesajes_drafts"

// DraftStoreConfig describes the dependencies of a DraftStore.
type DraftStoreConfig struct {
	Store       localstore.Store
	Clock       func() time.Time
	IDGenerator ids.Generator
	Logger      *zap.Logger
}

// DraftStore keeps at most one in-progress weighing record per vessel. Every mutation is a
// full read-modify-write of the collection and runs under the store mutex.
type DraftStore struct {
	mu     sync.Mutex
	store  localstore.Store
	clock  func() time.Time
	ids    ids.Generator
	logger *zap.Logger
}

// UpsertResult describes the draft that was stored. Merged is set when the incoming record
// overwrote another draft of the same vessel; MergedFrom then holds the incoming local id.
type UpsertResult struct {
	Draft      weighing.Record
	Merged     bool
	MergedFrom string
}

// NewDraftStore constructs a DraftStore.
func NewDraftStore(cfg DraftStoreConfig) (*DraftStore, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opNewDraftStore, reasonMissingStore, errMissingStore)
	}
	if cfg.IDGenerator == nil {
		return nil, newServiceError(opNewDraftStore, reasonMissingIDs, errMissingIDGenerator)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &DraftStore{
		store:  cfg.Store,
		clock:  clock,
		ids:    cfg.IDGenerator,
		logger: logger,
	}, nil
}

// Upsert validates and stores record, assigning local ids to the record and its containers
// when missing.
func (d *DraftStore) Upsert(ctx context.Context, record weighing.Record) (UpsertResult, error) {
	if err := record.Validate(); err != nil {
		return UpsertResult{}, newServiceError(opUpsertDraft, reasonInvalid, err)
	}

	incoming := record.Refresh()
	incoming.SyncStatus = ""
	incoming.LastError = ""
	if err := assignLocalIDs(d.ids, &incoming, ids.RecordPrefix(incoming.VesselID)); err != nil {
		logError(d.logger, opUpsertDraft, reasonIDFailed, err)
		return UpsertResult{}, newServiceError(opUpsertDraft, reasonIDFailed, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	drafts, err := localstore.LoadList[weighing.Record](ctx, d.store, DraftsKey)
	if err != nil {
		logError(d.logger, opUpsertDraft, reasonReadFailed, err, zap.String(fieldLocalID, incoming.LocalID))
		return UpsertResult{}, newServiceError(opUpsertDraft, reasonReadFailed, err)
	}

	resolution := resolveDraftUpsert(drafts, incoming, d.clock().UTC())
	if err := localstore.SaveList(ctx, d.store, DraftsKey, resolution.drafts); err != nil {
		logError(d.logger, opUpsertDraft, reasonWriteFailed, err, zap.String(fieldLocalID, incoming.LocalID))
		return UpsertResult{}, newServiceError(opUpsertDraft, reasonWriteFailed, err)
	}

	if resolution.merged {
		d.logger.Info("draft merged into existing vessel draft",
			zap.String(fieldLocalID, resolution.stored.LocalID),
			zap.String("incoming_local_id", resolution.foldedLocalID),
			vesselField(resolution.stored.VesselID))
	} else {
		d.logger.Debug("draft saved", zap.String(fieldLocalID, resolution.stored.LocalID), vesselField(resolution.stored.VesselID))
	}

	return UpsertResult{
		Draft:      resolution.stored.Clone(),
		Merged:     resolution.merged,
		MergedFrom: resolution.foldedLocalID,
	}, nil
}

// GetAll returns every stored draft in storage order. Callers sort for display.
func (d *DraftStore) GetAll(ctx context.Context) ([]weighing.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	drafts, err := d.load(ctx, opListDrafts)
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

// GetByID returns the draft stored under localID.
func (d *DraftStore) GetByID(ctx context.Context, localID string) (weighing.Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	drafts, err := d.load(ctx, opGetDraft)
	if err != nil {
		return weighing.Record{}, false, err
	}
	for _, draft := range drafts {
		if draft.LocalID == localID {
			return draft, true, nil
		}
	}
	return weighing.Record{}, false, nil
}

// FindByVessel returns the draft in progress for vesselID, if any.
func (d *DraftStore) FindByVessel(ctx context.Context, vesselID int64) (weighing.Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	drafts, err := d.load(ctx, opFindVesselDraft)
	if err != nil {
		return weighing.Record{}, false, err
	}
	for _, draft := range drafts {
		if draft.VesselID != nil && *draft.VesselID == vesselID {
			return draft, true, nil
		}
	}
	return weighing.Record{}, false, nil
}

// Remove deletes the draft stored under localID. Unknown ids are ignored.
func (d *DraftStore) Remove(ctx context.Context, localID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	drafts, err := d.load(ctx, opRemoveDraft)
	if err != nil {
		return err
	}
	remaining := make([]weighing.Record, 0, len(drafts))
	for _, draft := range drafts {
		if draft.LocalID != localID {
			remaining = append(remaining, draft)
		}
	}
	if len(remaining) == len(drafts) {
		return nil
	}
	if err := localstore.SaveList(ctx, d.store, DraftsKey, remaining); err != nil {
		logError(d.logger, opRemoveDraft, reasonWriteFailed, err, zap.String(fieldLocalID, localID))
		return newServiceError(opRemoveDraft, reasonWriteFailed, err)
	}
	d.logger.Debug("draft removed", zap.String(fieldLocalID, localID))
	return nil
}

func (d *DraftStore) load(ctx context.Context, operation string) ([]weighing.Record, error) {
	drafts, err := localstore.LoadList[weighing.Record](ctx, d.store, DraftsKey)
	if err != nil {
		logError(d.logger, operation, reasonReadFailed, err)
		return nil, newServiceError(operation, reasonReadFailed, err)
	}
	for index, draft := range drafts {
		drafts[index] = draft.Refresh()
	}
	return drafts, nil
}

func assignLocalIDs(generator ids.Generator, record *weighing.Record, prefix string) error {
	if strings.TrimSpace(record.LocalID) == "" {
		id, err := generator.NewID(prefix)
		if err != nil {
			return err
		}
		record.LocalID = id
	}
	for index, container := range record.Containers {
		if strings.TrimSpace(container.LocalID) != "" {
			continue
		}
		id, err := generator.NewID(ids.ContainerPrefix(container.Code))
		if err != nil {
			return err
		}
		record.Containers[index].LocalID = id
	}
	return nil
}
