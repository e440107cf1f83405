package server

import (
	"context"
	"sync"
	"time"

	"github.com/navipesca/weighsync/internal/offline"
	"github.com/navipesca/weighsync/internal/syncer"
)

const (
	EventDraftMerged   = "draft-merged"
	EventQueueChanged  = "queue-changed"
	EventSyncCompleted = "sync-completed"
	// EventSessionTerminated tells the operator to sign in again.
	EventSessionTerminated = "session-terminated"
	eventHeartbeat         = "heartbeat"
	eventSource            = "weighsync"
)

// Event is pushed to every stream subscriber.
type Event struct {
	Type      string          `json:"type"`
	LocalIDs  []string        `json:"localIds,omitempty"`
	Status    *offline.Status `json:"status,omitempty"`
	Report    *syncer.Report  `json:"report,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventDispatcher fans events out to stream subscribers. Slow subscribers miss events rather
// than block publishers.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[int64]chan Event),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that lives until ctx is done or the cleanup func runs.
func (d *EventDispatcher) Subscribe(ctx context.Context) (<-chan Event, func()) {
	stream := make(chan Event, d.bufferSize)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subscribers[id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *EventDispatcher) Publish(event Event) {
	if event.Type == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock().UTC()
	}
	event.Source = eventSource

	d.mu.RLock()
	streams := make([]chan Event, 0, len(d.subscribers))
	for _, stream := range d.subscribers {
		streams = append(streams, stream)
	}
	d.mu.RUnlock()

	for _, stream := range streams {
		select {
		case stream <- event:
		default:
		}
	}
}

// QueueStatusReader supplies the summary attached to queue-changed events.
type QueueStatusReader interface {
	Status(ctx context.Context) (offline.Status, error)
}

// SyncNotifier adapts the dispatcher to the sync service's report hook. Every drain or retry
// publishes sync-completed followed by queue-changed carrying the refreshed queue summary, so
// subscribers see the queue shrink whoever started the drain.
func (d *EventDispatcher) SyncNotifier(queue QueueStatusReader) func(syncer.Report) {
	return func(report syncer.Report) {
		synced := make([]string, 0, report.Synced)
		for _, outcome := range report.Outcomes {
			if outcome.Success {
				synced = append(synced, outcome.LocalID)
			}
		}
		d.Publish(Event{Type: EventSyncCompleted, LocalIDs: synced, Report: &report})

		if queue == nil || report.Attempted == 0 {
			return
		}
		changed := Event{Type: EventQueueChanged, LocalIDs: synced}
		if status, err := queue.Status(context.Background()); err == nil {
			changed.Status = &status
		}
		d.Publish(changed)
	}
}
