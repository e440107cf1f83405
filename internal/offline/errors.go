package offline

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	errMissingStore       = errors.New("local store is required")
	errMissingIDGenerator = errors.New("id generator is required")
	errDuplicateLocalID   = errors.New("local id already queued")
	noOpLogger            = zap.NewNop()
)

// ServiceError carries a dotted "<operation>.<reason>" code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opNewDraftStore    = "drafts.new"
	opUpsertDraft      = "drafts.upsert"
	opListDrafts       = "drafts.get_all"
	opGetDraft         = "drafts.get_by_id"
	opFindVesselDraft  = "drafts.find_by_vessel"
	opRemoveDraft      = "drafts.remove"
	opNewQueue         = "queue.new"
	opEnqueue          = "queue.enqueue"
	opListQueue        = "queue.list"
	opRemoveByIndices  = "queue.remove_by_indices"
	opRemoveByIDs      = "queue.remove_by_ids"
	opClearQueue       = "queue.clear"
	opQueueStatus      = "queue.status"
	opMarkFailed       = "queue.mark_failed"
	reasonMissingStore = "missing_store"
	reasonMissingIDs   = "missing_id_generator"
	reasonInvalid      = "invalid_record"
	reasonIDFailed     = "id_generation_failed"
	reasonReadFailed   = "storage_read_failed"
	reasonWriteFailed  = "storage_write_failed"
	reasonDuplicateID  = "duplicate_local_id"
	fieldLocalID       = "local_id"
	fieldVesselID      = "vessel_id"
	fieldCount         = "count"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	if logger == nil {
		logger = noOpLogger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("offline store error", attrs...)
}

func vesselField(vesselID *int64) zap.Field {
	if vesselID == nil {
		return zap.Skip()
	}
	return zap.Int64(fieldVesselID, *vesselID)
}
