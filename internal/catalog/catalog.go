// Package catalog implements external tool discovery (spec §6.2): parallel
// queries against up to three upstream catalogs, each bounded to 8s,
// deduplicated and ranked. Fan-out uses golang.org/x/sync/errgroup, the
// pack's idiom for bounded parallel upstream calls with per-call error
// isolation (the teacher has no equivalent network fan-out; this is
// enrichment grounded on the errgroup dependency itself plus the "parallel
// fan-out with isolated per-task failure" shape of Manager.ConnectAll).
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"
)

// queryTimeout bounds each individual upstream query (spec §6.2).
const queryTimeout = 8 * time.Second

// defaultLimit is the result cap when the caller specifies none.
const defaultLimit = 10

// Entry is one discovered external tool-provider candidate.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InstallID   string `json:"install_id,omitempty"` // empty when not installable
	Popularity  int    `json:"popularity"`
	Source      string `json:"source"`
}

// Source queries one upstream catalog. Implementations must honor ctx's
// deadline; a failing Source returns an error, which Discover swallows.
type Source interface {
	Name() string
	Query(ctx context.Context, query string) ([]Entry, error)
}

// Discoverer fans a query out to its configured sources.
type Discoverer struct {
	sources []Source
	log     *zap.SugaredLogger
}

// New builds a Discoverer over at most three sources (spec §6.2); extra
// sources beyond three are ignored rather than erroring, since discovery is
// explicitly best-effort.
func New(sources []Source, log *zap.SugaredLogger) *Discoverer {
	if len(sources) > 3 {
		sources = sources[:3]
	}
	return &Discoverer{sources: sources, log: log}
}

// Discover runs every source in parallel, each under its own 8s budget,
// dedupes by normalized name, and returns at most limit entries sorted by
// has-install-id then popularity descending (spec §6.2). A limit <= 0 uses
// the default of 10.
func (d *Discoverer) Discover(ctx context.Context, query string, limit int) []Entry {
	if limit <= 0 {
		limit = defaultLimit
	}

	results := make([][]Entry, len(d.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range d.sources {
		i, src := i, src
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, queryTimeout)
			defer cancel()
			entries, err := src.Query(qctx, query)
			if err != nil {
				if d.log != nil {
					d.log.Debugw("catalog: source query failed", "source", src.Name(), "err", err)
				}
				return nil // best effort: never fail the group
			}
			results[i] = entries
			return nil
		})
	}
	_ = g.Wait() // sources never return a real error; Wait only joins the fan-out

	seen := make(map[string]Entry)
	var order []string
	for _, entries := range results {
		for _, e := range entries {
			key := normalize(e.Name)
			existing, ok := seen[key]
			if !ok {
				seen[key] = e
				order = append(order, key)
				continue
			}
			// Prefer the entry that carries an install id, then higher popularity.
			if betterEntry(e, existing) {
				seen[key] = e
			}
		}
	}

	out := make([]Entry, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		ii, jj := out[i], out[j]
		if (ii.InstallID != "") != (jj.InstallID != "") {
			return ii.InstallID != ""
		}
		return ii.Popularity > jj.Popularity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func betterEntry(candidate, existing Entry) bool {
	if (candidate.InstallID != "") != (existing.InstallID != "") {
		return candidate.InstallID != ""
	}
	return candidate.Popularity > existing.Popularity
}

// normalize strips scope/registry prefixes, lowercases, and drops
// non-alphanumerics (spec §6.2's dedup key).
func normalize(name string) string {
	name = strings.ToLower(name)
	if i := strings.LastIndexAny(name, "/@:"); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HTTPSource is a generic JSON-array upstream catalog reachable over HTTP,
// the common shape most public MCP server registries expose.
type HTTPSource struct {
	SourceName string
	BaseURL    string
	Client     *http.Client
}

func (h *HTTPSource) Name() string { return h.SourceName }

func (h *HTTPSource) Query(ctx context.Context, query string) ([]Entry, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"?q="+query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Source = h.SourceName
	}
	return entries, nil
}
