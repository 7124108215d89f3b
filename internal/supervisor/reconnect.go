package supervisor

import (
	"context"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// scheduleReconnectOrStop implements spec §4.3's CONNECTED->ERROR transition
// policy. Session-owned instances never reconnect. A LOCAL instance whose
// stderr tail carries a permanent-failure marker goes straight to a terminal
// ERROR with no reconnect scheduled. Otherwise an exponential-backoff
// reconnect is scheduled: delay = base_delay * 2^attempt, up to
// max_attempts.
func (s *Supervisor) scheduleReconnectOrStop(inst *worker.WorkerInstance) {
	if s.isStopping() {
		return
	}
	if worker.IsSessionOwned(inst.InternalName) {
		return
	}
	if inst.Stderr != nil && inst.Stderr.HasPermanentFailureMarker() {
		inst.LastError = inst.Stderr.Last(5)
		return
	}
	if inst.ReconnectCount >= reconnectMaxAttempts {
		return
	}

	attempt := inst.ReconnectCount
	delay := reconnectBaseDelay * time.Duration(1<<uint(attempt))

	s.reconnectMu.Lock()
	if t, ok := s.reconnects[inst.InternalName]; ok {
		t.Stop()
	}
	s.reconnects[inst.InternalName] = time.AfterFunc(delay, func() {
		s.attemptReconnect(inst)
	})
	s.reconnectMu.Unlock()
}

// attemptReconnect retries the transport connect for inst, incrementing
// reconnect_count on failure and resetting it to 0 on success (spec §4.3).
func (s *Supervisor) attemptReconnect(inst *worker.WorkerInstance) {
	if s.isStopping() || inst.State() == worker.Stopped {
		return
	}

	lock := s.baseLock(inst.BaseName)
	lock.Lock()
	defer lock.Unlock()

	if inst.State() == worker.Stopped {
		return
	}

	inst.ReconnectCount++
	s.spawn(context.Background(), inst)

	if inst.State() == worker.Connected {
		inst.ReconnectCount = 0
		if !worker.IsDerivedName(inst.InternalName) {
			s.q.RegisterInstance(inst.BaseName, inst.InternalName, inst.Index)
		}
	}
	// On failure, spawn() already called markError -> scheduleReconnectOrStop,
	// which carries ReconnectCount forward for the next crash's backoff.
}

// cancelReconnect stops any pending reconnect timer for an instance.
func (s *Supervisor) cancelReconnect(internalName string) {
	s.reconnectMu.Lock()
	if t, ok := s.reconnects[internalName]; ok {
		t.Stop()
		delete(s.reconnects, internalName)
	}
	s.reconnectMu.Unlock()
}
