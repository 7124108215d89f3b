// Package eventbus implements the supervisor's typed, best-effort fan-out
// (spec §4.1). Ordering is per-emitter FIFO only; a slow subscriber never
// blocks the emitter — its own ring buffer drops excess events instead.
//
// The per-subscriber bounded-channel-with-drop pattern generalizes the
// teacher's sseWriter (internal/web/sse.go), which already treats a stalled
// reader as best-effort rather than something the writer waits on.
package eventbus

import (
	"sync"
	"time"
)

// Type is one of the fixed lifecycle event kinds (spec §4.1).
type Type string

const (
	WorkerState   Type = "worker:state"
	WorkerAdded   Type = "worker:added"
	WorkerRemoved Type = "worker:removed"
	ToolCall      Type = "tool:call"
	ToolResult    Type = "tool:result"
	SessionOpened Type = "session:opened"
	SessionClosed Type = "session:closed"
	PoolScaled    Type = "pool:scaled"
)

// Envelope wraps every event delivered to a subscriber.
type Envelope struct {
	Type      Type  `json:"type"`
	TimestampMS int64 `json:"monotonic_timestamp_ms"`
	Data      any   `json:"data"`
}

// defaultBufferSize bounds each subscriber's private ring; once full the
// oldest unread event is dropped to make room for the new one so the
// emitter's Emit call never blocks.
const defaultBufferSize = 256

// subscriber is a single listener's bounded mailbox.
type subscriber struct {
	ch chan Envelope
}

// Bus is the process-wide event fan-out. The zero value is not usable; use New.
type Bus struct {
	mu   sync.RWMutex
	subs map[int64]*subscriber
	next int64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int64]*subscriber)}
}

// Subscribe registers a new listener and returns its event channel plus an
// unsubscribe function. The channel is closed by Unsubscribe only — callers
// must call the returned function when done reading to release resources.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	sub := &subscriber{ch: make(chan Envelope, defaultBufferSize)}
	b.subs[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Emit delivers an event to every current subscriber without blocking. A
// subscriber whose buffer is full has its oldest queued event dropped to
// make room — per spec §4.1, excess is dropped to that subscriber only.
func (b *Bus) Emit(t Type, data any) {
	env := Envelope{Type: t, TimestampMS: time.Now().UnixMilli(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- env:
		default:
			// Buffer full: drop the oldest queued event, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- env:
			default:
				// Still full (concurrent reader raced us) — drop this event.
			}
		}
	}
}

// SubscriberCount reports the current number of live subscribers (for /health).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
