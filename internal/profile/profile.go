// Package profile manages ProfileBundles (spec §3, §4.6): named groups of
// worker declarations. Built-in bundles are loaded once from a read-only
// YAML descriptor via gopkg.in/yaml.v3 (the teacher's own config loader,
// internal/config, reads its tool-registry YAML the same way); user bundles
// persist through the store.Gateway. Built-ins shadow same-named user
// bundles and can never be created, overwritten, or deleted by a caller.
package profile

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SpideXD/mcp-swarm/internal/store"
	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// builtinFile is the descriptor of built-in bundles, one per deployment,
// carried alongside the binary (spec §4.6's list_profiles "merged built-in +
// user" result).
type builtinFile struct {
	Bundles []worker.ProfileBundle `yaml:"bundles"`
}

// Manager merges the fixed built-in set with user-created bundles.
type Manager struct {
	gw      store.Gateway
	builtin map[string]worker.ProfileBundle
}

// LoadBuiltins reads the built-in bundle descriptor at path. A missing file
// is not an error: a deployment with no built-ins simply exposes none.
func LoadBuiltins(path string) (map[string]worker.ProfileBundle, error) {
	out := make(map[string]worker.ProfileBundle)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	var f builtinFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	for _, b := range f.Bundles {
		b.BuiltIn = true
		out[b.Name] = b
	}
	return out, nil
}

// New creates a Manager over gw with the given pre-loaded built-ins.
func New(gw store.Gateway, builtin map[string]worker.ProfileBundle) *Manager {
	if builtin == nil {
		builtin = make(map[string]worker.ProfileBundle)
	}
	return &Manager{gw: gw, builtin: builtin}
}

// List returns built-ins followed by user bundles whose name isn't shadowed
// by a built-in (spec §4.6 list_profiles).
func (m *Manager) List() ([]worker.ProfileBundle, error) {
	userBundles, err := m.gw.ListProfiles()
	if err != nil {
		return nil, err
	}
	out := make([]worker.ProfileBundle, 0, len(m.builtin)+len(userBundles))
	for _, b := range m.builtin {
		out = append(out, b)
	}
	for _, b := range userBundles {
		if _, shadowed := m.builtin[b.Name]; shadowed {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Get resolves a bundle by name, built-ins taking priority.
func (m *Manager) Get(name string) (worker.ProfileBundle, bool, error) {
	if b, ok := m.builtin[name]; ok {
		return b, true, nil
	}
	bundles, err := m.gw.ListProfiles()
	if err != nil {
		return worker.ProfileBundle{}, false, err
	}
	for _, b := range bundles {
		if b.Name == name {
			return b, true, nil
		}
	}
	return worker.ProfileBundle{}, false, nil
}

// Create persists a new user bundle (spec §4.6 create_profile): the name
// must match worker.NameRe, carry at least one entry, and must not collide
// with a built-in name.
func (m *Manager) Create(b worker.ProfileBundle) error {
	if !worker.NameRe.MatchString(b.Name) {
		return swarmerr.New(swarmerr.BadInput, "profile name %q does not match %s", b.Name, worker.NameRe.String())
	}
	if len(b.Entries) == 0 {
		return swarmerr.New(swarmerr.BadInput, "profile %q must declare at least one entry", b.Name)
	}
	if _, isBuiltin := m.builtin[b.Name]; isBuiltin {
		return swarmerr.New(swarmerr.Conflict, "profile %q is a built-in and cannot be overwritten", b.Name)
	}
	b.BuiltIn = false
	return m.gw.SaveProfile(b)
}

// Delete removes a user bundle (spec §4.6 delete_profile); built-ins are
// protected and unknown user names report NotFound.
func (m *Manager) Delete(name string) error {
	if _, isBuiltin := m.builtin[name]; isBuiltin {
		return swarmerr.New(swarmerr.Conflict, "profile %q is a built-in and cannot be deleted", name)
	}
	bundles, err := m.gw.ListProfiles()
	if err != nil {
		return err
	}
	found := false
	for _, b := range bundles {
		if b.Name == name {
			found = true
			break
		}
	}
	if !found {
		return swarmerr.New(swarmerr.NotFound, "profile %q not found", name)
	}
	return m.gw.DeleteProfile(name)
}
