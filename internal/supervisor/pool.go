package supervisor

import (
	"context"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// onScaleUp is the queue's ScaleUpFunc (spec §4.3/§4.4). Pool scaling only
// applies to LOCAL, non-stateful primaries, capped at cfg.MaxPool. It always
// clears the queue's scale-pending flag for base, whether or not a new
// instance was actually spawned.
func (s *Supervisor) onScaleUp(base string) {
	defer s.q.ClearScalePending(base)

	if s.isStopping() {
		return
	}

	lock := s.baseLock(base)
	lock.Lock()
	defer lock.Unlock()

	primary, ok := s.instance(base)
	if !ok || primary.State() != worker.Connected {
		return
	}
	if primary.Config.Transport != worker.Local || primary.Config.Stateful {
		return
	}

	s.mu.RLock()
	poolSize := 0
	used := make(map[int]bool)
	for _, inst := range s.instances {
		if inst.BaseName == base {
			poolSize++
			used[inst.Index] = true
		}
	}
	s.mu.RUnlock()

	if poolSize >= s.cfg.MaxPool {
		return
	}

	idx := 1
	for used[idx] {
		idx++
	}

	cfg := primary.Config.Clone()
	internalName := worker.ScaledName(base, idx)
	inst := worker.NewInstance(internalName, base, idx, cfg)
	s.setInstance(inst)

	s.spawn(context.Background(), inst)
	if inst.State() == worker.Connected {
		s.q.RegisterInstance(base, internalName, idx)
	} else {
		s.dropInstance(internalName)
	}
}
