// Package supervisor is the core runtime (spec §4.3, component E): the
// per-worker lifecycle state machine, pool scaling, idle reaping, the health
// watchdog, and session-scoped stateful instance routing. It is the
// generalization of the teacher's internal/mcp.Manager — network I/O always
// happens outside the instance-index lock, exactly as Manager.ConnectAll and
// Manager.Reload perform connects/closes outside mu before taking it only to
// publish final state.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/eventbus"
	"github.com/SpideXD/mcp-swarm/internal/queue"
	"github.com/SpideXD/mcp-swarm/internal/store"
	"github.com/SpideXD/mcp-swarm/internal/swarmconfig"
	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// idleReapInterval is fixed by spec §4.3, unlike health_interval which is
// configurable.
const idleReapInterval = 10 * time.Second

// reconnectBaseDelay and reconnectMaxAttempts drive the exponential backoff
// in spec §4.3: delay = base * 2^attempt, up to max_attempts.
const (
	reconnectBaseDelay   = 2 * time.Second
	reconnectMaxAttempts = 3
)

// Supervisor owns the live instance index. One mutex per base name
// serializes spawn/stop races on that base (spec §5); the index map itself
// is guarded by mu.
type Supervisor struct {
	mu        sync.RWMutex
	instances map[string]*worker.WorkerInstance // internal_name -> instance

	baseMu     sync.Mutex
	baseLocks  map[string]*sync.Mutex
	sessionMu  sync.Mutex
	sessionLocks map[string]*sync.Mutex // key "session|base"

	reconnectMu sync.Mutex
	reconnects  map[string]*time.Timer

	sessionMu2      sync.Mutex
	sessionOwned    map[string]map[string]string // session -> base -> internal name
	sessionTempDirs map[string][]string          // session -> owned temp dirs

	gw   store.Gateway
	bus  *eventbus.Bus
	q    *queue.Queue
	cfg  *swarmconfig.Config
	log  *zap.SugaredLogger

	stopping bool
	stopMu   sync.Mutex

	stopBackground context.CancelFunc
}

// New creates a Supervisor. Start must be called to begin the background
// reaper and watchdog loops and to restore persisted workers.
func New(gw store.Gateway, bus *eventbus.Bus, cfg *swarmconfig.Config, log *zap.SugaredLogger) *Supervisor {
	s := &Supervisor{
		instances:       make(map[string]*worker.WorkerInstance),
		baseLocks:       make(map[string]*sync.Mutex),
		sessionLocks:    make(map[string]*sync.Mutex),
		reconnects:      make(map[string]*time.Timer),
		sessionOwned:    make(map[string]map[string]string),
		sessionTempDirs: make(map[string][]string),
		gw:              gw,
		bus:             bus,
		cfg:             cfg,
		log:             log,
	}
	s.q = queue.New(cfg.QueueTTL, cfg.ScaleUpWait, s.executeQueued, s.onScaleUp, log)
	return s
}

func (s *Supervisor) baseLock(base string) *sync.Mutex {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	l, ok := s.baseLocks[base]
	if !ok {
		l = &sync.Mutex{}
		s.baseLocks[base] = l
	}
	return l
}

func (s *Supervisor) sessionLock(session, base string) *sync.Mutex {
	key := session + "|" + base
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	l, ok := s.sessionLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.sessionLocks[key] = l
	}
	return l
}

// Start restores persisted workers (spec §6.3) and launches the idle reaper
// and health watchdog loops.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.restoreAtStartup(ctx); err != nil {
		return err
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel
	go s.idleReaperLoop(bgCtx)
	if s.cfg.HealthInterval > 0 {
		go s.healthWatchdogLoop(bgCtx)
	}
	return nil
}

// restoreAtStartup implements spec §6.3: terminate orphaned PIDs (SIGTERM
// then SIGKILL after 2s, verifying a signal-0 liveness check first), clear
// the process_ids table, then re-declare every persisted worker in
// parallel with best-effort per-worker failures.
func (s *Supervisor) restoreAtStartup(ctx context.Context) error {
	pids, err := s.gw.ListProcessIDs()
	if err != nil {
		return fmt.Errorf("supervisor: list process ids: %w", err)
	}
	for name, pid := range pids {
		if pid <= 0 {
			continue
		}
		if !processAlive(pid) {
			continue
		}
		terminateOrphan(pid, s.log, name)
	}
	if err := s.gw.ClearProcessIDs(); err != nil {
		return fmt.Errorf("supervisor: clear process ids: %w", err)
	}

	configs, err := s.gw.ListWorkers()
	if err != nil {
		return fmt.Errorf("supervisor: list workers: %w", err)
	}

	var wg sync.WaitGroup
	for _, cfg := range configs {
		wg.Add(1)
		go func(cfg worker.WorkerConfig) {
			defer wg.Done()
			inst := s.declareInternal(ctx, cfg, false)
			state := inst.State()
			s.log.Infow("supervisor: restore at boot", "worker", cfg.Name, "state", state)
		}(cfg)
	}
	wg.Wait()
	return nil
}

// processAlive performs the signal-0 liveness check spec §9 requires before
// escalating to SIGTERM/SIGKILL.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscallSignal0()) == nil
}

// Stop halts the supervisor's background loops without touching live
// instances; used during final shutdown after stop_all.
func (s *Supervisor) Stop() {
	if s.stopBackground != nil {
		s.stopBackground()
	}
	s.q.Stop()
}

// List returns a snapshot of every live instance.
func (s *Supervisor) List() []worker.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]worker.Snapshot, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst.Snapshot())
	}
	return out
}

// Get returns the live instance snapshot for an internal name, if any.
func (s *Supervisor) Get(internalName string) (worker.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[internalName]
	if !ok {
		return worker.Snapshot{}, false
	}
	return inst.Snapshot(), true
}

// Snapshot returns every live instance grouped by base name.
func (s *Supervisor) Snapshot() map[string][]worker.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]worker.Snapshot)
	for _, inst := range s.instances {
		out[inst.BaseName] = append(out[inst.BaseName], inst.Snapshot())
	}
	return out
}

func (s *Supervisor) setInstance(inst *worker.WorkerInstance) {
	s.mu.Lock()
	s.instances[inst.InternalName] = inst
	s.mu.Unlock()
}

func (s *Supervisor) dropInstance(internalName string) {
	s.mu.Lock()
	delete(s.instances, internalName)
	s.mu.Unlock()
}

func (s *Supervisor) instance(internalName string) (*worker.WorkerInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[internalName]
	return inst, ok
}

func (s *Supervisor) isStopping() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stopping
}

// emit publishes a lifecycle event on the bus (component A).
func (s *Supervisor) emit(t eventbus.Type, data any) {
	if s.bus != nil {
		s.bus.Emit(t, data)
	}
}

// workerErrorKind maps an unexpected Go error into the taxonomy's SpawnFailed
// kind, the default for connect-time failures (spec §7).
func workerErrorKind(err error) error {
	return swarmerr.Wrap(swarmerr.SpawnFailed, err, "%v", err)
}
