// Package audit publishes per-query audit events to Kafka. The trail is
// fire-and-forget observability: a full buffer or broker outage drops
// events with a warning and never blocks or fails a request.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/answergate/answergate/pkg/kafka"
)

// Event records the outcome of one pipeline query. Blocked documents
// appear by id only; their text never leaves the gate.
type Event struct {
	RequestID  string    `json:"request_id"`
	Subject    string    `json:"subject"`
	Question   string    `json:"question"`
	Outcome    string    `json:"outcome"`
	UsedIDs    []string  `json:"used_documents"`
	BlockedIDs []string  `json:"blocked_documents"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher is the narrow producer interface, satisfied by pkg/kafka.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Trail buffers events and publishes them asynchronously.
type Trail struct {
	publisher Publisher
	eventCh   chan Event
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewTrail creates a Trail with the given buffer size.
func NewTrail(publisher Publisher, bufferSize int) *Trail {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Trail{
		publisher: publisher,
		eventCh:   make(chan Event, bufferSize),
		logger:    slog.Default().With("component", "audit-trail"),
		done:      make(chan struct{}),
	}
}

// Start launches the publishing loop. It runs until ctx is cancelled or
// Close is called.
func (t *Trail) Start(ctx context.Context) {
	go func() {
		defer close(t.done)
		for {
			select {
			case event, ok := <-t.eventCh:
				if !ok {
					return
				}
				if err := t.publisher.Publish(ctx, kafka.Event{
					Key:   event.Subject,
					Value: event,
				}); err != nil {
					t.logger.Error("failed to publish audit event", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	t.logger.Info("audit trail started", "buffer_size", cap(t.eventCh))
}

// Record enqueues an event, dropping it when the buffer is full or the
// trail has been closed. It never blocks and never panics, so callers on
// the request path need no shutdown coordination.
func (t *Trail) Record(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.logger.Warn("audit event dropped (trail closed)")
		return
	}
	select {
	case t.eventCh <- event:
	default:
		t.logger.Warn("audit event dropped (buffer full)")
	}
}

// Close stops the publishing loop after draining enqueued events. It is
// idempotent.
func (t *Trail) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.eventCh)
	t.mu.Unlock()
	<-t.done
}
