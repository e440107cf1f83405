package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/navipesca/weighsync/internal/offline"
	"github.com/navipesca/weighsync/internal/remote"
	"github.com/navipesca/weighsync/internal/syncer"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

var (
	errMissingDrafts = errors.New("draft store dependency required")
	errMissingQueue  = errors.New("queue dependency required")
	errMissingSync   = errors.New("sync service dependency required")
	errMissingRemote = errors.New("remote reader dependency required")
)

// RemoteReader lists what the backend already holds.
type RemoteReader interface {
	ListRecords(ctx context.Context) ([]remote.RemoteRecord, error)
	ListVessels(ctx context.Context) ([]remote.Vessel, error)
}

// SessionHolder exposes the operator credential to the local API.
type SessionHolder interface {
	Valid() bool
	Replace(token string)
}

type Dependencies struct {
	Drafts            *offline.DraftStore
	Queue             *offline.Queue
	Sync              *syncer.Service
	Remote            RemoteReader
	Session           SessionHolder
	Events            *EventDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Drafts == nil {
		return nil, errMissingDrafts
	}
	if deps.Queue == nil {
		return nil, errMissingQueue
	}
	if deps.Sync == nil {
		return nil, errMissingSync
	}
	if deps.Remote == nil {
		return nil, errMissingRemote
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		drafts:    deps.Drafts,
		queue:     deps.Queue,
		sync:      deps.Sync,
		remote:    deps.Remote,
		session:   deps.Session,
		events:    events,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/totals", handler.handleTotals)

	router.GET("/drafts", handler.handleListDrafts)
	router.PUT("/drafts", handler.handleUpsertDraft)
	router.GET("/drafts/:id", handler.handleGetDraft)
	router.DELETE("/drafts/:id", handler.handleRemoveDraft)

	router.GET("/queue", handler.handleListQueue)
	router.POST("/queue", handler.handleEnqueue)
	router.DELETE("/queue", handler.handleClearQueue)
	router.GET("/queue/status", handler.handleQueueStatus)
	router.POST("/queue/sync", handler.handleSyncQueue)
	router.DELETE("/queue/:id", handler.handleDiscard)
	router.POST("/queue/:id/sync", handler.handleRetry)

	router.POST("/records", handler.handleSubmit)
	router.GET("/records", handler.handleListRecords)
	router.GET("/vessels", handler.handleListVessels)

	if handler.session != nil {
		router.GET("/session", handler.handleSessionStatus)
		router.PUT("/session", handler.handleReplaceSession)
	}

	router.GET("/events", handler.handleEvents)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Accept", "Cache-Control"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	drafts    *offline.DraftStore
	queue     *offline.Queue
	sync      *syncer.Service
	remote    RemoteReader
	session   SessionHolder
	events    *EventDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}
