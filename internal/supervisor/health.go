package supervisor

import (
	"context"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/eventbus"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// idleReaperLoop stops scaled pool instances (never primaries, never
// session-owned) that have sat idle, not busy, for at least cfg.IdleKill
// (spec §4.3). Runs on the fixed idleReapInterval.
func (s *Supervisor) idleReaperLoop(ctx context.Context) {
	ticker := time.NewTicker(idleReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapIdle()
		}
	}
}

func (s *Supervisor) reapIdle() {
	if s.isStopping() {
		return
	}
	s.mu.RLock()
	var candidates []*worker.WorkerInstance
	for _, inst := range s.instances {
		if worker.IsScaled(inst.InternalName) && inst.State() == worker.Connected && !inst.Busy() {
			candidates = append(candidates, inst)
		}
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, inst := range candidates {
		if now.Sub(inst.LastActiveAt()) < s.cfg.IdleKill {
			continue
		}
		lock := s.baseLock(inst.BaseName)
		lock.Lock()
		if inst.State() == worker.Connected && !inst.Busy() && now.Sub(inst.LastActiveAt()) >= s.cfg.IdleKill {
			s.q.UnregisterInstance(inst.BaseName, inst.InternalName)
			s.stopInstanceLocked(inst)
		}
		lock.Unlock()
	}
}

// healthWatchdogLoop probes every connected primary with list_tools under
// cfg.HealthTimeout; on a failure it emits a "restarting" worker-state event
// and restarts the instance (spec §4.3).
func (s *Supervisor) healthWatchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.healthCheckAll(ctx)
		}
	}
}

func (s *Supervisor) healthCheckAll(ctx context.Context) {
	if s.isStopping() {
		return
	}
	s.mu.RLock()
	var primaries []*worker.WorkerInstance
	for _, inst := range s.instances {
		if !worker.IsDerivedName(inst.InternalName) && inst.State() == worker.Connected {
			primaries = append(primaries, inst)
		}
	}
	s.mu.RUnlock()

	for _, inst := range primaries {
		s.healthCheckOne(ctx, inst)
	}
}

func (s *Supervisor) healthCheckOne(ctx context.Context, inst *worker.WorkerInstance) {
	cli, ok := clientFor(inst)
	if !ok {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()
	if _, err := cli.ListTools(probeCtx); err != nil {
		if inst.State() != worker.Connected {
			return
		}
		s.emit(eventbus.WorkerState, map[string]any{
			"name":   inst.InternalName,
			"state":  "restarting",
			"reason": "health_check_failed",
		})
		s.log.Warnw("supervisor: health check failed, restarting", "worker", inst.InternalName, "err", err)
		go s.Restart(context.Background(), inst.InternalName)
	}
}
