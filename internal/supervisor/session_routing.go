package supervisor

import (
	"context"
	"os"
	"strings"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// sessionPrefixLen is the number of leading session-id characters used to
// build a session-owned instance's internal name (spec §4.3).
const sessionPrefixLen = 8

// callSessionInstance implements spec §4.3's session-scoped stateful
// instance routing: reuse a live dedicated instance if one exists, else
// spawn one under the per-(session,base) mutex and dispatch directly,
// bypassing the admission queue entirely.
func (s *Supervisor) callSessionInstance(ctx context.Context, primary *worker.WorkerInstance, session, tool string, args map[string]any) (any, error) {
	base := primary.BaseName

	if internalName, ok := s.lookupSessionOwned(session, base); ok {
		if inst, ok := s.instance(internalName); ok && inst.State() == worker.Connected {
			return s.invoke(ctx, inst, tool, args)
		}
	}

	lock := s.sessionLock(session, base)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the lock: another call may have raced us.
	if internalName, ok := s.lookupSessionOwned(session, base); ok {
		if inst, ok := s.instance(internalName); ok && inst.State() == worker.Connected {
			return s.invoke(ctx, inst, tool, args)
		}
	}

	prefix := session
	if len(prefix) > sessionPrefixLen {
		prefix = prefix[:sessionPrefixLen]
	}
	internalName := worker.SessionName(base, prefix)

	cfg := primary.Config.Clone()
	s.applyBrowserVariantMutation(&cfg, session)

	inst := worker.NewInstance(internalName, base, 0, cfg)
	s.setInstance(inst)
	s.spawn(ctx, inst)

	if inst.State() != worker.Connected {
		s.dropInstance(internalName)
		return nil, swarmerr.New(swarmerr.SpawnFailed, "session instance %q failed to start: %s", internalName, inst.LastError)
	}

	s.recordSessionOwned(session, base, internalName)
	return s.invoke(ctx, inst, tool, args)
}

// applyBrowserVariantMutation is the coarse heuristic spec §9 documents:
// command/args containing "playwright" get the --isolated sentinel;
// "puppeteer" gets a fresh temp profile dir recorded for session cleanup.
func (s *Supervisor) applyBrowserVariantMutation(cfg *worker.WorkerConfig, session string) {
	haystack := strings.ToLower(cfg.Command + " " + strings.Join(cfg.Args, " "))
	switch {
	case strings.Contains(haystack, "playwright"):
		cfg.Args = append(cfg.Args, "--isolated")
	case strings.Contains(haystack, "puppeteer"):
		dir, err := os.MkdirTemp("", "mcp-swarm-profile-*")
		if err != nil {
			s.log.Warnf("supervisor: create profile dir for session %q: %v", session, err)
			return
		}
		cfg.Args = append(cfg.Args, "--user-data-dir="+dir)
		s.sessionMu2.Lock()
		s.sessionTempDirs[session] = append(s.sessionTempDirs[session], dir)
		s.sessionMu2.Unlock()
	}
}

func (s *Supervisor) lookupSessionOwned(session, base string) (string, bool) {
	s.sessionMu2.Lock()
	defer s.sessionMu2.Unlock()
	bases, ok := s.sessionOwned[session]
	if !ok {
		return "", false
	}
	name, ok := bases[base]
	return name, ok
}

func (s *Supervisor) recordSessionOwned(session, base, internalName string) {
	s.sessionMu2.Lock()
	defer s.sessionMu2.Unlock()
	bases, ok := s.sessionOwned[session]
	if !ok {
		bases = make(map[string]string)
		s.sessionOwned[session] = bases
	}
	bases[base] = internalName
}

// ReleaseSession stops every instance owned by session and removes its
// temp profile directories (spec §4.3).
func (s *Supervisor) ReleaseSession(session string) {
	s.sessionMu2.Lock()
	bases := s.sessionOwned[session]
	delete(s.sessionOwned, session)
	dirs := s.sessionTempDirs[session]
	delete(s.sessionTempDirs, session)
	s.sessionMu2.Unlock()

	for _, internalName := range bases {
		s.Stop(internalName)
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warnf("supervisor: remove session temp dir %q: %v", dir, err)
		}
	}
}
