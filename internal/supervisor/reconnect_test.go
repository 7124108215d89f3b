package supervisor

import (
	"testing"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

func hasPendingReconnect(s *Supervisor, name string) bool {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()
	_, ok := s.reconnects[name]
	return ok
}

// TestScheduleReconnectOrStop_PermanentFailureShortCircuits covers spec
// §4.3's terminal-ERROR path: a worker whose stderr tail carries a
// permanent-failure marker (e.g. ENOENT, "command not found") never gets a
// reconnect timer, however few attempts it has made.
func TestScheduleReconnectOrStop_PermanentFailureShortCircuits(t *testing.T) {
	cfg := testConfig()
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo", "demo", 0, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Error)
	inst.Stderr.Append("bash: demo: command not found")

	s.scheduleReconnectOrStop(inst)

	if hasPendingReconnect(s, "demo") {
		t.Fatal("expected no reconnect timer for a permanent-failure marker")
	}
	if inst.LastError == "" {
		t.Fatal("expected last_error to be populated from the stderr tail")
	}
}

// TestScheduleReconnectOrStop_MaxAttemptsShortCircuits covers the other
// terminal path: once reconnect_count reaches reconnectMaxAttempts, no
// further reconnect is scheduled.
func TestScheduleReconnectOrStop_MaxAttemptsShortCircuits(t *testing.T) {
	cfg := testConfig()
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo", "demo", 0, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Error)
	inst.ReconnectCount = reconnectMaxAttempts

	s.scheduleReconnectOrStop(inst)

	if hasPendingReconnect(s, "demo") {
		t.Fatal("expected no reconnect timer once reconnect_count reaches max_attempts")
	}
}

// TestScheduleReconnectOrStop_SessionOwnedNeverReconnects covers the
// session-owned exclusion named alongside the other two short-circuits in
// spec §4.3.
func TestScheduleReconnectOrStop_SessionOwnedNeverReconnects(t *testing.T) {
	cfg := testConfig()
	s := newTestSupervisor(t, cfg)

	name := worker.SessionName("demo", "abcd1234")
	inst := worker.NewInstance(name, "demo", 0, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Error)

	s.scheduleReconnectOrStop(inst)

	if hasPendingReconnect(s, name) {
		t.Fatal("expected no reconnect timer for a session-owned instance")
	}
}

// TestScheduleReconnectOrStop_BackoffDelayMatchesFormula verifies the
// exponential backoff itself: delay = reconnectBaseDelay * 2^attempt. The
// instance's transport is left empty so workerclient.New rejects it
// synchronously inside attemptReconnect, with no real process or network
// I/O involved in observing when the timer fires.
func TestScheduleReconnectOrStop_BackoffDelayMatchesFormula(t *testing.T) {
	cfg := testConfig()
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo", "demo", 0, worker.WorkerConfig{Name: "demo", Transport: ""})
	inst.SetState(worker.Error)
	s.setInstance(inst)

	s.scheduleReconnectOrStop(inst)

	const margin = 300 * time.Millisecond
	time.Sleep(reconnectBaseDelay - margin)
	if got := inst.ReconnectCount; got != 0 {
		t.Fatalf("reconnect fired before its backoff delay elapsed (reconnect_count=%d)", got)
	}

	time.Sleep(2 * margin)
	if got := inst.ReconnectCount; got != 1 {
		t.Fatalf("expected exactly one reconnect attempt once the backoff delay elapsed, got reconnect_count=%d", got)
	}
}
