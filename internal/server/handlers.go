package server

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/offline"
	"github.com/navipesca/weighsync/internal/remote"
	"github.com/navipesca/weighsync/internal/syncer"
	"github.com/navipesca/weighsync/internal/weighing"
	"go.uber.org/zap"
)

type totalsRequestPayload struct {
	UnitPrice  weighing.Number      `json:"unitPrice"`
	Containers []weighing.Container `json:"containers"`
}

type upsertDraftResponsePayload struct {
	Draft      weighing.Record `json:"draft"`
	Merged     bool            `json:"merged"`
	MergedFrom string          `json:"mergedFrom,omitempty"`
}

type sessionRequestPayload struct {
	Token string `json:"token"`
}

type listResponsePayload[T any] struct {
	Items []T `json:"items"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleTotals(c *gin.Context) {
	var request totalsRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, weighing.ComputeTotals(request.Containers, request.UnitPrice.Float64()))
}

func (h *httpHandler) handleListDrafts(c *gin.Context) {
	ctx := c.Request.Context()
	if raw := c.Query("vesselId"); raw != "" {
		vesselID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vessel_id"})
			return
		}
		draft, found, err := h.drafts.FindByVessel(ctx, vesselID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		items := []weighing.Record{}
		if found {
			items = append(items, draft)
		}
		c.JSON(http.StatusOK, listResponsePayload[weighing.Record]{Items: items})
		return
	}

	drafts, err := h.drafts.GetAll(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
	})
	c.JSON(http.StatusOK, listResponsePayload[weighing.Record]{Items: drafts})
}

func (h *httpHandler) handleUpsertDraft(c *gin.Context) {
	var record weighing.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.drafts.Upsert(c.Request.Context(), record)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.Merged {
		h.events.Publish(Event{Type: EventDraftMerged, LocalIDs: []string{result.Draft.LocalID, result.MergedFrom}})
	}
	c.JSON(http.StatusOK, upsertDraftResponsePayload{
		Draft:      result.Draft,
		Merged:     result.Merged,
		MergedFrom: result.MergedFrom,
	})
}

func (h *httpHandler) handleGetDraft(c *gin.Context) {
	draft, found, err := h.drafts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (h *httpHandler) handleRemoveDraft(c *gin.Context) {
	if err := h.drafts.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListQueue(c *gin.Context) {
	queued, err := h.queue.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload[weighing.Record]{Items: queued})
}

func (h *httpHandler) handleEnqueue(c *gin.Context) {
	var record weighing.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	queued, err := h.queue.Enqueue(c.Request.Context(), record)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishQueueChanged(c, queued.LocalID)
	c.JSON(http.StatusCreated, queued)
}

func (h *httpHandler) handleClearQueue(c *gin.Context) {
	if err := h.sync.ClearQueue(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	h.publishQueueChanged(c)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleQueueStatus(c *gin.Context) {
	status, err := h.queue.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handleSyncQueue(c *gin.Context) {
	report, err := h.sync.SyncPending(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": report.Summary(), "report": report})
}

func (h *httpHandler) handleDiscard(c *gin.Context) {
	localID := c.Param("id")
	if err := h.sync.Discard(c.Request.Context(), []string{localID}); err != nil {
		h.respondError(c, err)
		return
	}
	h.publishQueueChanged(c, localID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRetry(c *gin.Context) {
	outcome, err := h.sync.RetryOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	var record weighing.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.sync.Submit(c.Request.Context(), record)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.Queued != nil {
		h.publishQueueChanged(c, result.Queued.LocalID)
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *httpHandler) handleListRecords(c *gin.Context) {
	records, err := h.remote.ListRecords(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload[remote.RemoteRecord]{Items: records})
}

func (h *httpHandler) handleListVessels(c *gin.Context) {
	vessels, err := h.remote.ListVessels(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload[remote.Vessel]{Items: vessels})
}

func (h *httpHandler) handleSessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"valid": h.session.Valid()})
}

func (h *httpHandler) handleReplaceSession(c *gin.Context) {
	var request sessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.session.Replace(request.Token)
	c.JSON(http.StatusOK, gin.H{"valid": h.session.Valid()})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event := <-stream:
			c.SSEvent(event.Type, event)
			return true
		case <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"source": eventSource, "timestamp": time.Now().UTC()})
			return true
		}
	})
}

func (h *httpHandler) publishQueueChanged(c *gin.Context, localIDs ...string) {
	event := Event{Type: EventQueueChanged, LocalIDs: localIDs}
	status, err := h.queue.Status(c.Request.Context())
	if err != nil {
		h.logger.Warn("queue status unavailable for event", zap.Error(err))
	} else {
		event.Status = &status
	}
	h.events.Publish(event)
}

// respondError maps service failures onto HTTP statuses. The body carries a stable error
// token and, when available, the service code of the failing operation.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, token := classifyError(err)
	body := gin.H{"error": token}
	var serviceErr *offline.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if remote.IsSubmissionError(err) {
		body["message"] = remote.Message(err)
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("error_token", token), zap.Error(err))
	} else {
		h.logger.Info("request rejected", zap.String("path", c.FullPath()), zap.String("error_token", token), zap.Error(err))
	}
	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, weighing.ErrValidation):
		return http.StatusBadRequest, "invalid_record"
	case errors.Is(err, syncer.ErrRecordNotQueued):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, syncer.ErrMissingCredential):
		return http.StatusUnauthorized, "credential_required"
	case localstore.IsStorageError(err):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case remote.IsSubmissionError(err):
		return http.StatusBadGateway, "backend_unavailable"
	default:
		var serviceErr *offline.ServiceError
		if errors.As(err, &serviceErr) {
			return http.StatusConflict, "rejected"
		}
		return http.StatusInternalServerError, "internal_error"
	}
}
