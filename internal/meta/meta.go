// Package meta implements the fifteen meta-tools (spec §4.6) as the single
// facade the control surface (HTTP and stdio) exposes to clients: discovery,
// worker lifecycle, tool listing/calling, and profile management. Every
// operation is synchronous request/response against the supervisor, store,
// profile manager, and catalog — mirroring how teranos-QNTX's MCPServer
// wraps one backing client behind named, independently-handled tools.
package meta

import (
	"context"
	"sort"

	"github.com/SpideXD/mcp-swarm/internal/catalog"
	"github.com/SpideXD/mcp-swarm/internal/profile"
	"github.com/SpideXD/mcp-swarm/internal/store"
	"github.com/SpideXD/mcp-swarm/internal/supervisor"
	"github.com/SpideXD/mcp-swarm/internal/swarmconfig"
	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// Facade is the shared handler set backing every meta-tool.
type Facade struct {
	sup       *supervisor.Supervisor
	gw        store.Gateway
	profiles  *profile.Manager
	discovery *catalog.Discoverer
}

// New builds a Facade over the running supervisor and its collaborators.
func New(sup *supervisor.Supervisor, gw store.Gateway, profiles *profile.Manager, discovery *catalog.Discoverer) *Facade {
	return &Facade{sup: sup, gw: gw, profiles: profiles, discovery: discovery}
}

// WorkerSummary is the list_workers() row shape (spec §4.6): status,
// PID/transport, tool count, stateful flag, covering both live and
// persisted-but-not-live workers.
type WorkerSummary struct {
	Name        string          `json:"name"`
	Transport   worker.Transport `json:"transport"`
	State       worker.State    `json:"state"`
	Live        bool            `json:"live"`
	ProcessID   int             `json:"process_id,omitempty"`
	ToolCount   int             `json:"tool_count"`
	Stateful    bool            `json:"stateful"`
	PoolSize    int             `json:"pool_size"`
	Description string          `json:"description,omitempty"`
}

// Discover implements discover(query) (spec §4.6): best-effort, returns
// empty on total upstream failure rather than an error.
func (f *Facade) Discover(ctx context.Context, query string, limit int) []catalog.Entry {
	if f.discovery == nil {
		return nil
	}
	return f.discovery.Discover(ctx, query, limit)
}

// DeclareWorker implements declare_worker (spec §4.6): validates name and
// transport, applies the stateful name-set default, starts the worker, and
// persists on CONNECTED.
func (f *Facade) DeclareWorker(ctx context.Context, cfg worker.WorkerConfig) (worker.Snapshot, error) {
	if !worker.NameRe.MatchString(cfg.Name) {
		return worker.Snapshot{}, swarmerr.New(swarmerr.BadInput, "name %q does not match %s", cfg.Name, worker.NameRe.String())
	}
	if !cfg.Transport.Valid() {
		return worker.Snapshot{}, swarmerr.New(swarmerr.BadInput, "transport %q invalid", cfg.Transport)
	}
	if cfg.Transport == worker.Local && cfg.Command == "" {
		return worker.Snapshot{}, swarmerr.New(swarmerr.BadInput, "LOCAL transport requires a command")
	}
	if cfg.Transport != worker.Local && cfg.URL == "" {
		return worker.Snapshot{}, swarmerr.New(swarmerr.BadInput, "%s transport requires a url", cfg.Transport)
	}
	return f.sup.Declare(ctx, cfg), nil
}

// ApplyStatefulDefault sets Stateful=true when the caller left it at the
// zero value and the name is in the built-in stateful name-set (spec §6.4).
func ApplyStatefulDefault(cfg *worker.WorkerConfig, explicit bool) {
	if explicit {
		return
	}
	if swarmconfig.StatefulNameSet[cfg.Name] {
		cfg.Stateful = true
	}
}

// RemoveWorker implements remove_worker(name) (spec §4.6).
func (f *Facade) RemoveWorker(name string) error {
	if _, live := f.sup.Get(name); live {
		f.sup.Stop(name)
	}
	if err := f.gw.DeleteWorker(name); err != nil {
		return swarmerr.Wrap(swarmerr.Internal, err, "remove_worker %q: %v", name, err)
	}
	return nil
}

// ListWorkers implements list_workers() (spec §4.6): merges live instances
// with persisted-but-not-live configs.
func (f *Facade) ListWorkers() ([]WorkerSummary, error) {
	live := f.sup.Snapshot()
	persisted, err := f.gw.ListWorkers()
	if err != nil {
		return nil, swarmerr.Wrap(swarmerr.Internal, err, "list_workers: %v", err)
	}

	out := make([]WorkerSummary, 0, len(persisted))
	seen := make(map[string]bool)

	for _, cfg := range persisted {
		seen[cfg.Name] = true
		instances := live[cfg.Name]
		if len(instances) == 0 {
			out = append(out, WorkerSummary{
				Name:        cfg.Name,
				Transport:   cfg.Transport,
				State:       worker.Stopped,
				Live:        false,
				Stateful:    cfg.Stateful,
				Description: cfg.Description,
			})
			continue
		}
		primary := instances[0]
		for _, inst := range instances {
			if inst.Index == 0 {
				primary = inst
			}
		}
		out = append(out, WorkerSummary{
			Name:        cfg.Name,
			Transport:   cfg.Transport,
			State:       primary.State,
			Live:        true,
			ProcessID:   primary.ProcessID,
			ToolCount:   len(primary.CachedTools),
			Stateful:    cfg.Stateful,
			PoolSize:    len(instances),
			Description: cfg.Description,
		})
	}
	// Instances that exist live but have no persisted config (a failed
	// declare never reaches persistence) still get listed.
	for base, instances := range live {
		if seen[base] {
			continue
		}
		primary := instances[0]
		for _, inst := range instances {
			if inst.Index == 0 {
				primary = inst
			}
		}
		out = append(out, WorkerSummary{
			Name:      base,
			Transport: primary.Config.Transport,
			State:     primary.State,
			Live:      true,
			ProcessID: primary.ProcessID,
			ToolCount: len(primary.CachedTools),
			Stateful:  primary.Config.Stateful,
			PoolSize:  len(instances),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// StopWorker implements stop_worker(name) (spec §4.6).
func (f *Facade) StopWorker(name string) error {
	if _, live := f.sup.Get(name); !live {
		return swarmerr.New(swarmerr.Conflict, "worker %q is not running", name)
	}
	f.sup.Stop(name)
	return nil
}

// StartWorker implements start_worker(name) (spec §4.6): spawns from
// persisted config.
func (f *Facade) StartWorker(ctx context.Context, name string) (worker.Snapshot, error) {
	if _, live := f.sup.Get(name); live {
		return worker.Snapshot{}, swarmerr.New(swarmerr.Conflict, "worker %q is already running", name)
	}
	configs, err := f.gw.ListWorkers()
	if err != nil {
		return worker.Snapshot{}, swarmerr.Wrap(swarmerr.Internal, err, "start_worker %q: %v", name, err)
	}
	for _, cfg := range configs {
		if cfg.Name == name {
			return f.sup.Declare(ctx, cfg), nil
		}
	}
	return worker.Snapshot{}, swarmerr.New(swarmerr.NotFound, "worker %q not found", name)
}

// ResetWorker implements reset_worker(name) (spec §4.6): restart if live,
// else fresh spawn from persisted config.
func (f *Facade) ResetWorker(ctx context.Context, name string) (worker.Snapshot, error) {
	if _, live := f.sup.Get(name); live {
		return f.sup.Restart(ctx, name), nil
	}
	return f.StartWorker(ctx, name)
}

// UpdateWorker implements update_worker (spec §4.6): merge-persists, and if
// currently running, stops then respawns with the merged config.
func (f *Facade) UpdateWorker(ctx context.Context, name string, patch func(*worker.WorkerConfig)) (worker.Snapshot, error) {
	configs, err := f.gw.ListWorkers()
	if err != nil {
		return worker.Snapshot{}, swarmerr.Wrap(swarmerr.Internal, err, "update_worker %q: %v", name, err)
	}
	var cfg worker.WorkerConfig
	found := false
	for _, c := range configs {
		if c.Name == name {
			cfg = c
			found = true
			break
		}
	}
	if !found {
		return worker.Snapshot{}, swarmerr.New(swarmerr.NotFound, "worker %q not found", name)
	}
	patch(&cfg)
	if _, live := f.sup.Get(name); live {
		f.sup.Stop(name)
	}
	return f.sup.Declare(ctx, cfg), nil
}

// ListTools implements list_tools(server?) (spec §4.6).
func (f *Facade) ListTools(server string) ([]worker.ToolDescriptor, error) {
	if server == "" {
		return nil, nil // caller renders the one-line-per-worker summary from ListWorkers
	}
	snap, ok := f.sup.Get(server)
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "worker %q not found", server)
	}
	return snap.CachedTools, nil
}

// CallTool implements call_tool(server, tool, args) (spec §4.6), routing
// through call_queued with the caller's session id.
func (f *Facade) CallTool(ctx context.Context, server, tool string, args map[string]any, sessionID string) (any, error) {
	return f.sup.CallQueued(ctx, server, tool, args, sessionID)
}

// ListProfiles implements list_profiles() (spec §4.6).
func (f *Facade) ListProfiles() ([]worker.ProfileBundle, error) {
	return f.profiles.List()
}

// ActivateProfile implements activate_profile(name) (spec §4.6): for each
// entry not already live-CONNECTED, declare + persist; entries in other
// live states are stopped first then declared.
func (f *Facade) ActivateProfile(ctx context.Context, name string) error {
	bundle, ok, err := f.profiles.Get(name)
	if err != nil {
		return swarmerr.Wrap(swarmerr.Internal, err, "activate_profile %q: %v", name, err)
	}
	if !ok {
		return swarmerr.New(swarmerr.NotFound, "profile %q not found", name)
	}
	for _, entry := range bundle.Entries {
		if snap, live := f.sup.Get(entry.Name); live && snap.State == worker.Connected {
			continue
		}
		if _, live := f.sup.Get(entry.Name); live {
			f.sup.Stop(entry.Name)
		}
		cfg := worker.WorkerConfig{
			Name:        entry.Name,
			Transport:   worker.Local,
			Command:     entry.Command,
			Args:        entry.Args,
			Env:         entry.Env,
			Description: entry.Description,
		}
		ApplyStatefulDefault(&cfg, false)
		f.sup.Declare(ctx, cfg)
	}
	return nil
}

// DeactivateProfile implements deactivate_profile(name) (spec §4.6): stops
// each live entry, never removing the persisted config.
func (f *Facade) DeactivateProfile(name string) error {
	bundle, ok, err := f.profiles.Get(name)
	if err != nil {
		return swarmerr.Wrap(swarmerr.Internal, err, "deactivate_profile %q: %v", name, err)
	}
	if !ok {
		return swarmerr.New(swarmerr.NotFound, "profile %q not found", name)
	}
	for _, entry := range bundle.Entries {
		if _, live := f.sup.Get(entry.Name); live {
			f.sup.Stop(entry.Name)
		}
	}
	return nil
}

// CreateProfile implements create_profile (spec §4.6).
func (f *Facade) CreateProfile(b worker.ProfileBundle) error {
	return f.profiles.Create(b)
}

// DeleteProfile implements delete_profile(name) (spec §4.6).
func (f *Facade) DeleteProfile(name string) error {
	return f.profiles.Delete(name)
}

// ReleaseSession tears down every instance owned by a closing session.
func (f *Facade) ReleaseSession(sessionID string) {
	f.sup.ReleaseSession(sessionID)
}
