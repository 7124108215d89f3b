package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// fakeGateway is a minimal in-memory store.Gateway for exercising Manager
// without an embedded nutsdb database.
type fakeGateway struct {
	profiles map[string]worker.ProfileBundle
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{profiles: make(map[string]worker.ProfileBundle)}
}

func (f *fakeGateway) SaveWorker(worker.WorkerConfig) error            { return nil }
func (f *fakeGateway) DeleteWorker(string) error                      { return nil }
func (f *fakeGateway) ListWorkers() ([]worker.WorkerConfig, error)    { return nil, nil }
func (f *fakeGateway) SaveProcessID(string, int) error                { return nil }
func (f *fakeGateway) ListProcessIDs() (map[string]int, error)        { return nil, nil }
func (f *fakeGateway) ClearProcessIDs() error                         { return nil }
func (f *fakeGateway) Close() error                                   { return nil }

func (f *fakeGateway) SaveProfile(p worker.ProfileBundle) error {
	f.profiles[p.Name] = p
	return nil
}

func (f *fakeGateway) DeleteProfile(name string) error {
	delete(f.profiles, name)
	return nil
}

func (f *fakeGateway) ListProfiles() ([]worker.ProfileBundle, error) {
	out := make([]worker.ProfileBundle, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func TestLoadBuiltins_MissingFileIsEmpty(t *testing.T) {
	builtins, err := LoadBuiltins(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("expected a missing file to not be an error, got %v", err)
	}
	if len(builtins) != 0 {
		t.Fatalf("expected no built-ins, got %d", len(builtins))
	}
}

func TestLoadBuiltins_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	const doc = `
bundles:
  - name: web-research
    description: Browser + search workers
    entries:
      - name: playwright
        command: npx
        args: ["-y", "@playwright/mcp"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	builtins, err := LoadBuiltins(path)
	if err != nil {
		t.Fatalf("LoadBuiltins: %v", err)
	}
	b, ok := builtins["web-research"]
	if !ok {
		t.Fatal("expected a web-research bundle")
	}
	if !b.BuiltIn {
		t.Fatal("expected loaded bundles to be marked BuiltIn")
	}
	if len(b.Entries) != 1 || b.Entries[0].Name != "playwright" {
		t.Fatalf("unexpected entries: %+v", b.Entries)
	}
}

func TestCreate_RejectsBuiltinCollisionAndBadInput(t *testing.T) {
	gw := newFakeGateway()
	m := New(gw, map[string]worker.ProfileBundle{"web-research": {Name: "web-research", BuiltIn: true}})

	err := m.Create(worker.ProfileBundle{Name: "web-research", Entries: []worker.ProfileEntry{{Name: "x"}}})
	if !swarmerr.Is(err, swarmerr.Conflict) {
		t.Fatalf("expected Conflict for a built-in name collision, got %v", err)
	}

	err = m.Create(worker.ProfileBundle{Name: "empty"})
	if !swarmerr.Is(err, swarmerr.BadInput) {
		t.Fatalf("expected BadInput for zero entries, got %v", err)
	}

	err = m.Create(worker.ProfileBundle{Name: "ok", Entries: []worker.ProfileEntry{{Name: "x"}}})
	if err != nil {
		t.Fatalf("expected a valid bundle to be created, got %v", err)
	}
	if _, ok := gw.profiles["ok"]; !ok {
		t.Fatal("expected the bundle to be persisted")
	}
}

func TestDelete_ProtectsBuiltinsAnd404sUnknown(t *testing.T) {
	gw := newFakeGateway()
	m := New(gw, map[string]worker.ProfileBundle{"web-research": {Name: "web-research", BuiltIn: true}})

	if err := m.Delete("web-research"); !swarmerr.Is(err, swarmerr.Conflict) {
		t.Fatalf("expected Conflict deleting a built-in, got %v", err)
	}
	if err := m.Delete("nonexistent"); !swarmerr.Is(err, swarmerr.NotFound) {
		t.Fatalf("expected NotFound deleting an unknown name, got %v", err)
	}

	gw.profiles["mine"] = worker.ProfileBundle{Name: "mine"}
	if err := m.Delete("mine"); err != nil {
		t.Fatalf("expected a known user bundle to delete cleanly, got %v", err)
	}
}

func TestList_BuiltinsShadowUserBundles(t *testing.T) {
	gw := newFakeGateway()
	gw.profiles["web-research"] = worker.ProfileBundle{Name: "web-research", Description: "user copy"}
	m := New(gw, map[string]worker.ProfileBundle{
		"web-research": {Name: "web-research", Description: "builtin copy", BuiltIn: true},
	})

	out, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 entry (user bundle shadowed), got %d: %+v", len(out), out)
	}
	if out[0].Description != "builtin copy" {
		t.Fatalf("expected the built-in to win, got %+v", out[0])
	}
}
