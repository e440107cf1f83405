package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/navipesca/weighsync/internal/connectivity"
	"github.com/navipesca/weighsync/internal/offline"
	"go.uber.org/zap"
)

const defaultInterval = time.Minute

var (
	errMissingSyncer      = errors.New("syncer: sync service required")
	errMissingStatusQueue = errors.New("syncer: queue status source required")
)

// PendingSyncer runs a drain.
type PendingSyncer interface {
	SyncPending(ctx context.Context) (Report, error)
}

// StatusSource reports the pending queue summary.
type StatusSource interface {
	Status(ctx context.Context) (offline.Status, error)
}

// WorkerConfig describes the dependencies of a Worker.
type WorkerConfig struct {
	Syncer       PendingSyncer
	Queue        StatusSource
	Connectivity connectivity.Signal
	Interval     time.Duration
	Logger       *zap.Logger
}

// Worker drains the queue periodically while the backend is reachable.
type Worker struct {
	syncer       PendingSyncer
	queue        StatusSource
	connectivity connectivity.Signal
	interval     time.Duration
	logger       *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Syncer == nil {
		return nil, errMissingSyncer
	}
	if cfg.Queue == nil {
		return nil, errMissingStatusQueue
	}
	signal := cfg.Connectivity
	if signal == nil {
		signal = connectivity.Static(true)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		syncer:       cfg.Syncer,
		queue:        cfg.Queue,
		connectivity: signal,
		interval:     interval,
		logger:       logger,
	}, nil
}

// Run drains once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("auto-sync worker started", zap.Duration("interval", w.interval))
	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("auto-sync worker stopped")
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs a single drain when the backend is reachable and records are pending. It reports
// whether a drain ran.
func (w *Worker) Tick(ctx context.Context) bool {
	if !w.connectivity.Connected(ctx) {
		w.logger.Debug("auto-sync skipped: offline")
		return false
	}
	status, err := w.queue.Status(ctx)
	if err != nil {
		w.logger.Warn("auto-sync skipped: queue status unavailable", zap.Error(err))
		return false
	}
	if !status.HasPending {
		return false
	}

	report, err := w.syncer.SyncPending(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		w.logger.Debug("auto-sync skipped: drain already running")
		return false
	case errors.Is(err, ErrMissingCredential):
		w.logger.Debug("auto-sync skipped: no credential", zap.Error(err))
		return false
	case err != nil:
		w.logger.Warn("auto-sync failed", zap.Error(err))
		return true
	}
	w.logger.Info("auto-sync completed", zap.String("summary", report.Summary()))
	return true
}
