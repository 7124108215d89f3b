// Package session implements the multi-client session layer (spec §4.5,
// component F): minting session ids at the HTTP surface, idle GC, and
// teardown into the supervisor's release_session. Architecturally this is
// the teacher's TTL-ticker Store generalized from chat turn history to
// worker-call routing metadata — same cleanupLoop/done/Close shape, entirely
// different payload.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/eventbus"
	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
)

// minCleanupInterval guards against a degenerate ticker when cleanupInterval
// is misconfigured to near zero.
const minCleanupInterval = time.Millisecond

// ReleaseFunc tears down any supervisor-owned state for a closing session
// (spec §4.3's release_session). Kept as a callback, mirroring the
// queue package's cyclic-reference-breaking pattern, so session has no
// import on supervisor.
type ReleaseFunc func(sessionID string)

// Session is one client's logical attachment (spec §3).
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Store is the thread-safe session registry with idle-TTL eviction.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxSessions     int
	idleTimeout     time.Duration
	cleanupInterval time.Duration

	release ReleaseFunc
	bus     *eventbus.Bus
	log     *zap.SugaredLogger

	done chan struct{}
}

// New creates a Store and starts its background idle-GC goroutine. Call
// CloseStore to stop it during shutdown.
func New(maxSessions int, idleTimeout, cleanupInterval time.Duration, release ReleaseFunc, bus *eventbus.Bus, log *zap.SugaredLogger) *Store {
	if cleanupInterval < minCleanupInterval {
		cleanupInterval = minCleanupInterval
	}
	s := &Store{
		sessions:        make(map[string]*Session),
		maxSessions:     maxSessions,
		idleTimeout:     idleTimeout,
		cleanupInterval: cleanupInterval,
		release:         release,
		bus:             bus,
		log:             log,
		done:            make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Open mints a fresh session, rejecting with a Conflict error when at
// capacity (spec §4.5: the HTTP layer maps this to a 503).
func (s *Store) Open() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.maxSessions {
		return nil, swarmerr.New(swarmerr.Conflict, "max_sessions (%d) reached", s.maxSessions)
	}
	now := time.Now()
	sess := &Session{ID: uuid.NewString(), CreatedAt: now, LastActiveAt: now}
	s.sessions[sess.ID] = sess
	s.emit(eventbus.SessionOpened, map[string]any{"session_id": sess.ID})
	return sess, nil
}

// Touch refreshes a session's last_active_at. Unknown ids are reported so
// the caller (the control surface) can mint a replacement session per spec
// §4.5's "unknown ids... mint a fresh session with a new id" rule.
func (s *Store) Touch(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.LastActiveAt = time.Now()
	return sess, true
}

// Get returns a session without updating its activity timestamp.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Close ends one session immediately (the /mcp DELETE path), returning
// false if the id was unknown.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.teardown(id)
	return true
}

// List returns a snapshot of every live session (the /api/sessions payload).
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

// Count reports the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseStore stops the background cleanup goroutine. Safe to call multiple
// times; named distinctly from the per-session Close to avoid ambiguity.
func (s *Store) CloseStore() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.reapIdle()
		}
	}
}

func (s *Store) reapIdle() {
	cutoff := time.Now().Add(-s.idleTimeout)
	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.LastActiveAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.teardown(id)
	}
}

// teardown runs supervisor.release_session (best effort) and emits
// session:closed (spec §4.5).
func (s *Store) teardown(id string) {
	if s.release != nil {
		s.release(id)
	}
	s.emit(eventbus.SessionClosed, map[string]any{"session_id": id})
	if s.log != nil {
		s.log.Debugw("session: closed", "session_id", id)
	}
}

func (s *Store) emit(t eventbus.Type, data any) {
	if s.bus != nil {
		s.bus.Emit(t, data)
	}
}
