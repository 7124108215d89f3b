package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/eventbus"
	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
	"github.com/SpideXD/mcp-swarm/internal/workerclient"
)

// Declare creates or replaces the primary instance for config.Name (spec
// §4.3). If a primary already exists it is stopped first. On CONNECTED the
// config is persisted; a spawn that never reaches CONNECTED is not
// persisted, so failed declarations are not auto-restored at next startup
// (spec §7).
func (s *Supervisor) Declare(ctx context.Context, cfg worker.WorkerConfig) worker.Snapshot {
	inst := s.declareInternal(ctx, cfg, true)
	return inst.Snapshot()
}

func (s *Supervisor) declareInternal(ctx context.Context, cfg worker.WorkerConfig, persistOnSuccess bool) *worker.WorkerInstance {
	lock := s.baseLock(cfg.Name)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok := s.instance(cfg.Name); ok {
		s.stopInstanceLocked(existing)
	}

	inst := worker.NewInstance(cfg.Name, cfg.Name, 0, cfg)
	s.setInstance(inst)
	s.emit(eventbus.WorkerAdded, inst.Snapshot())

	s.spawn(ctx, inst)

	if persistOnSuccess && inst.State() == worker.Connected {
		if err := s.gw.SaveWorker(cfg); err != nil {
			s.log.Warnf("supervisor: persist worker %q: %v", cfg.Name, err)
		}
	}
	if inst.State() == worker.Connected {
		s.q.RegisterInstance(inst.BaseName, inst.InternalName, inst.Index)
	}
	return inst
}

// spawn runs connect -> list_tools, leaving inst in CONNECTED or ERROR.
// Network I/O happens with no supervisor-wide lock held (spec §5).
func (s *Supervisor) spawn(ctx context.Context, inst *worker.WorkerInstance) {
	inst.SetState(worker.Connecting)
	s.emit(eventbus.WorkerState, map[string]any{"name": inst.InternalName, "state": worker.Connecting})

	cli, err := workerclient.New(inst.Config)
	if err != nil {
		s.markError(inst, err.Error(), false)
		return
	}
	if st := cli.StderrTail(); st != nil {
		inst.Stderr = st
	}

	connectCtx, cancel := context.WithTimeout(ctx, workerclient.ConnectTimeout)
	defer cancel()
	if err := cli.Connect(connectCtx); err != nil {
		tail := ""
		if st := cli.StderrTail(); st != nil {
			tail = st.Last(5)
		}
		msg := err.Error()
		if tail != "" {
			msg = fmt.Sprintf("%s\n%s", msg, tail)
		}
		s.markError(inst, msg, false)
		return
	}

	inst.Touch()
	bindInstanceClient(inst, cli)
	inst.ProcessID = cli.ProcessID()
	if inst.Index == 0 && !worker.IsDerivedName(inst.InternalName) && inst.ProcessID > 0 {
		if err := s.gw.SaveProcessID(inst.InternalName, inst.ProcessID); err != nil {
			s.log.Warnf("supervisor: persist pid for %q: %v", inst.InternalName, err)
		}
	}

	tools, err := cli.ListTools(connectCtx)
	if err != nil {
		s.log.Warnf("supervisor: initial list_tools for %q: %v (non-fatal)", inst.InternalName, err)
	} else {
		inst.CachedTools = tools
	}

	cli.OnToolsChanged(func(tools []worker.ToolDescriptor) {
		inst.CachedTools = tools
	})
	cli.OnClosed(func(err error) {
		s.onTransportClosed(inst, err)
	})

	inst.SetState(worker.Connected)
	s.emit(eventbus.WorkerState, map[string]any{"name": inst.InternalName, "state": worker.Connected})
}

// bindInstanceClient stores the transport handle on the instance via the
// narrow ClientHandle interface (worker package has no workerclient import).
func bindInstanceClient(inst *worker.WorkerInstance, cli workerclient.Client) {
	inst.Client = cli
	instanceClients.Lock()
	instanceClients.m[inst.InternalName] = cli
	instanceClients.Unlock()
}

// clientFor retrieves the full workerclient.Client capability for an
// instance (Call/ListTools), not exposed by worker.ClientHandle.
func clientFor(inst *worker.WorkerInstance) (workerclient.Client, bool) {
	instanceClients.Lock()
	defer instanceClients.Unlock()
	cli, ok := instanceClients.m[inst.InternalName]
	return cli, ok
}

func clearClient(internalName string) {
	instanceClients.Lock()
	delete(instanceClients.m, internalName)
	instanceClients.Unlock()
}

// markError transitions inst to ERROR, recording last_error and inspecting
// stderr for permanent-failure markers (spec §4.3). It then hands inst to
// scheduleReconnectOrStop, which decides whether a reconnect is scheduled.
func (s *Supervisor) markError(inst *worker.WorkerInstance, lastError string, fromClose bool) {
	inst.LastError = lastError
	inst.SetState(worker.Error)
	s.emit(eventbus.WorkerState, map[string]any{"name": inst.InternalName, "state": worker.Error, "error": lastError})
	s.scheduleReconnectOrStop(inst)
}

// Stop is idempotent: cancels any pending reconnect, marks STOPPED, drains
// its pool queue, unregisters pool instances, closes client then transport
// with 5s budgets each, deletes from the live index (spec §4.3).
func (s *Supervisor) Stop(name string) {
	lock := s.baseLock(baseOf(name))
	lock.Lock()
	defer lock.Unlock()
	inst, ok := s.instance(name)
	if !ok {
		return
	}
	s.stopInstanceLocked(inst)
}

func (s *Supervisor) stopInstanceLocked(inst *worker.WorkerInstance) {
	s.cancelReconnect(inst.InternalName)
	inst.SetState(worker.Stopped)

	if !worker.IsDerivedName(inst.InternalName) {
		s.q.Drain(inst.BaseName)
	} else {
		s.q.UnregisterInstance(inst.BaseName, inst.InternalName)
	}

	if cli, ok := clientFor(inst); ok {
		boundedClose(cli)
	}
	clearClient(inst.InternalName)
	inst.Client = nil

	s.dropInstance(inst.InternalName)
	s.emit(eventbus.WorkerState, map[string]any{"name": inst.InternalName, "state": worker.Stopped})
	s.emit(eventbus.WorkerRemoved, map[string]any{"name": inst.InternalName})
}

// StopAll stops every live instance and pauses the background reapers.
func (s *Supervisor) StopAll() {
	s.stopMu.Lock()
	s.stopping = true
	s.stopMu.Unlock()

	s.mu.RLock()
	names := make([]string, 0, len(s.instances))
	for name := range s.instances {
		names = append(names, name)
	}
	s.mu.RUnlock()

	for _, name := range names {
		s.Stop(name)
	}
}

// Restart snapshots the config, stops, then re-declares (spec §4.3).
func (s *Supervisor) Restart(ctx context.Context, name string) worker.Snapshot {
	inst, ok := s.instance(name)
	if !ok {
		return worker.Snapshot{}
	}
	cfg := inst.Config.Clone()
	s.Stop(name)
	return s.Declare(ctx, cfg)
}

// Call is the direct, unqueued entry point (spec §4.3). Returns a NotFound
// error if the target is absent and a NotConnected error if it is not
// CONNECTED.
func (s *Supervisor) Call(ctx context.Context, base, tool string, args map[string]any) (any, error) {
	inst, ok := s.instance(base)
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "worker %q not found", base)
	}
	if inst.State() != worker.Connected {
		return nil, swarmerr.New(swarmerr.NotConnected, "worker %q is not connected", base)
	}
	return s.invoke(ctx, inst, tool, args)
}

func (s *Supervisor) invoke(ctx context.Context, inst *worker.WorkerInstance, tool string, args map[string]any) (any, error) {
	cli, ok := clientFor(inst)
	if !ok {
		return nil, swarmerr.New(swarmerr.NotConnected, "worker %q has no live client", inst.InternalName)
	}
	inst.SetBusy(true)
	defer inst.SetBusy(false)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolCallTimeout)
	defer cancel()
	result, err := cli.CallTool(callCtx, tool, args)
	if err != nil {
		return nil, swarmerr.Wrap(swarmerr.WorkerError, err, "%v", err)
	}
	return result, nil
}

// executeQueued is the ExecuteFunc given to the admission queue.
func (s *Supervisor) executeQueued(ctx context.Context, internalName, tool string, args map[string]any) (any, error) {
	inst, ok := s.instance(internalName)
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "instance %q not found", internalName)
	}
	return s.invoke(ctx, inst, tool, args)
}

// CallQueued is the concurrency-aware entry point (spec §4.3, §4.4). If
// session is non-empty and the base is stateful, routes through
// callSessionInstance; otherwise submits to the admission queue.
func (s *Supervisor) CallQueued(ctx context.Context, base, tool string, args map[string]any, session string) (any, error) {
	primary, ok := s.instance(base)
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "worker %q not found", base)
	}
	if session != "" && primary.Config.Stateful {
		return s.callSessionInstance(ctx, primary, session, tool, args)
	}

	outcome := <-s.q.Enqueue(base, tool, args)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Content, nil
}

// onTransportClosed is the on_closed callback (spec §4.2): moves the
// instance to ERROR (unless already stopped) and evaluates reconnection.
func (s *Supervisor) onTransportClosed(inst *worker.WorkerInstance, closeErr error) {
	if inst.State() == worker.Stopped {
		return
	}
	msg := "transport closed"
	if closeErr != nil {
		msg = closeErr.Error()
	}
	s.markError(inst, msg, true)
}

// boundedClose runs cli.Close() with a 5s budget (spec §4.2); close always
// "succeeds" from the caller's perspective — a slow close just abandons the
// goroutine rather than blocking the stop path.
func boundedClose(cli workerclient.Client) {
	done := make(chan struct{})
	go func() {
		_ = cli.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(workerclient.CloseTimeout):
	}
}

// baseOf strips any #k/@prefix suffix to recover the base name.
func baseOf(internalName string) string {
	for i, r := range internalName {
		if r == '#' || r == '@' {
			return internalName[:i]
		}
	}
	return internalName
}

// instanceClients holds the full workerclient.Client capability per
// instance, kept out of the worker package to avoid an import cycle
// (worker.WorkerInstance only stores the narrow ClientHandle).
var instanceClients = struct {
	sync.Mutex
	m map[string]workerclient.Client
}{m: make(map[string]workerclient.Client)}
