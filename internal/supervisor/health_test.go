package supervisor

import (
	"testing"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// TestReapIdle_SkipsBusyInstance is the regression case for the bug the
// supervisor.invoke busy-wiring fix addresses: a scaled instance that is
// actively serving a call must never be reaped, no matter how long it has
// sat past cfg.IdleKill since it last connected.
func TestReapIdle_SkipsBusyInstance(t *testing.T) {
	cfg := testConfig()
	cfg.IdleKill = 20 * time.Millisecond
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo#1", "demo", 1, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Connected)
	inst.SetBusy(true)
	s.setInstance(inst)

	time.Sleep(40 * time.Millisecond)
	s.reapIdle()

	if _, ok := s.instance("demo#1"); !ok {
		t.Fatal("expected a busy instance to survive the idle reaper")
	}
}

// TestReapIdle_StopsIdleNonBusyInstance is the complement: a scaled instance
// that is not busy and has sat past cfg.IdleKill is reaped.
func TestReapIdle_StopsIdleNonBusyInstance(t *testing.T) {
	cfg := testConfig()
	cfg.IdleKill = 20 * time.Millisecond
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo#1", "demo", 1, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Connected)
	s.setInstance(inst)

	time.Sleep(40 * time.Millisecond)
	s.reapIdle()

	if _, ok := s.instance("demo#1"); ok {
		t.Fatal("expected an idle, non-busy scaled instance to be reaped")
	}
}

// TestReapIdle_NeverTouchesPrimaries confirms a non-derived (primary) name is
// never a reap candidate regardless of idle duration or busy state.
func TestReapIdle_NeverTouchesPrimaries(t *testing.T) {
	cfg := testConfig()
	cfg.IdleKill = 20 * time.Millisecond
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo", "demo", 0, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Connected)
	s.setInstance(inst)

	time.Sleep(40 * time.Millisecond)
	s.reapIdle()

	if _, ok := s.instance("demo"); !ok {
		t.Fatal("expected a primary instance to never be reaped")
	}
}
