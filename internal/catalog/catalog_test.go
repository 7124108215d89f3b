package catalog

import (
	"context"
	"errors"
	"testing"
)

type fakeSource struct {
	name    string
	entries []Entry
	err     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Query(ctx context.Context, query string) ([]Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func TestDiscover_DedupesAndRanks(t *testing.T) {
	a := &fakeSource{name: "a", entries: []Entry{
		{Name: "@scope/filesystem", Popularity: 5},
	}}
	b := &fakeSource{name: "b", entries: []Entry{
		{Name: "filesystem", InstallID: "npm:filesystem-mcp", Popularity: 1},
		{Name: "playwright", Popularity: 9},
	}}
	d := New([]Source{a, b}, nil)

	out := d.Discover(context.Background(), "fs", 0)
	if len(out) != 2 {
		t.Fatalf("expected 2 deduped entries, got %d: %+v", len(out), out)
	}
	// filesystem should win over @scope/filesystem because it carries an install id.
	if out[0].Name != "filesystem" || out[0].InstallID == "" {
		t.Fatalf("expected the install-id-bearing filesystem entry to rank first, got %+v", out[0])
	}
}

func TestDiscover_SwallowsSourceErrors(t *testing.T) {
	failing := &fakeSource{name: "bad", err: errors.New("upstream down")}
	ok := &fakeSource{name: "good", entries: []Entry{{Name: "demo", Popularity: 1}}}
	d := New([]Source{failing, ok}, nil)

	out := d.Discover(context.Background(), "q", 0)
	if len(out) != 1 || out[0].Name != "demo" {
		t.Fatalf("expected the failing source to be swallowed, got %+v", out)
	}
}

func TestDiscover_CapsAtLimit(t *testing.T) {
	var entries []Entry
	for i := 0; i < 20; i++ {
		entries = append(entries, Entry{Name: string(rune('a' + i)), Popularity: i})
	}
	d := New([]Source{&fakeSource{name: "s", entries: entries}}, nil)

	out := d.Discover(context.Background(), "q", 5)
	if len(out) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(out))
	}
}

func TestNew_CapsAtThreeSources(t *testing.T) {
	d := New([]Source{
		&fakeSource{name: "1"}, &fakeSource{name: "2"},
		&fakeSource{name: "3"}, &fakeSource{name: "4"},
	}, nil)
	if len(d.sources) != 3 {
		t.Fatalf("expected sources truncated to 3, got %d", len(d.sources))
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"@scope/Filesystem-MCP": "filesystemmcp",
		"registry:playwright":   "playwright",
		"plain":                 "plain",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
