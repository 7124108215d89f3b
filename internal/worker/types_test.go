package worker

import "testing"

func TestNameRe(t *testing.T) {
	valid := []string{"filesystem", "my-worker_1", "A9"}
	for _, name := range valid {
		if !NameRe.MatchString(name) {
			t.Errorf("expected %q to be a valid name", name)
		}
	}
	invalid := []string{"", "has space", "slash/name", "at@sign"}
	for _, name := range invalid {
		if NameRe.MatchString(name) {
			t.Errorf("expected %q to be an invalid name", name)
		}
	}
}

func TestTransport_Valid(t *testing.T) {
	for _, tr := range []Transport{Local, StreamSSE, StreamHTTP} {
		if !tr.Valid() {
			t.Errorf("expected %q to be valid", tr)
		}
	}
	if Transport("BOGUS").Valid() {
		t.Fatal("expected an unknown transport to be invalid")
	}
}

func TestWorkerConfig_CloneIsDeep(t *testing.T) {
	cfg := WorkerConfig{
		Name:    "demo",
		Args:    []string{"--flag"},
		Env:     map[string]string{"A": "1"},
		Headers: map[string]string{"X": "y"},
	}
	clone := cfg.Clone()
	clone.Args[0] = "--mutated"
	clone.Env["A"] = "mutated"
	clone.Headers["X"] = "mutated"

	if cfg.Args[0] != "--flag" {
		t.Error("expected original Args to be unaffected by clone mutation")
	}
	if cfg.Env["A"] != "1" {
		t.Error("expected original Env to be unaffected by clone mutation")
	}
	if cfg.Headers["X"] != "y" {
		t.Error("expected original Headers to be unaffected by clone mutation")
	}
}

func TestStderrTail_AppendAndCap(t *testing.T) {
	tail := &StderrTail{}
	for i := 0; i < stderrTailCap+10; i++ {
		tail.Append("line")
	}
	if len(tail.Lines()) != stderrTailCap {
		t.Fatalf("expected tail capped at %d lines, got %d", stderrTailCap, len(tail.Lines()))
	}
}

func TestStderrTail_Last(t *testing.T) {
	tail := &StderrTail{}
	tail.Append("one")
	tail.Append("two")
	tail.Append("three")
	if got := tail.Last(2); got != "two\nthree" {
		t.Fatalf("expected \"two\\nthree\", got %q", got)
	}
	if got := tail.Last(0); got != "" {
		t.Fatalf("expected empty string for n=0, got %q", got)
	}
}

func TestStderrTail_HasPermanentFailureMarker(t *testing.T) {
	tail := &StderrTail{}
	tail.Append("npm ERR! 404 Not Found - package@latest")
	if !tail.HasPermanentFailureMarker() {
		t.Fatal("expected a 404/not-found line to be detected as permanent")
	}

	clean := &StderrTail{}
	clean.Append("server listening on :8080")
	if clean.HasPermanentFailureMarker() {
		t.Fatal("expected a clean line to report no permanent marker")
	}
}

func TestIsDerivedSessionScaled(t *testing.T) {
	if IsDerivedName("filesystem") {
		t.Error("expected a primary name to not be derived")
	}
	if !IsDerivedName("filesystem#1") || !IsScaled("filesystem#1") || IsSessionOwned("filesystem#1") {
		t.Error("expected filesystem#1 to be scaled-derived, not session-owned")
	}
	if !IsDerivedName("filesystem@abcd1234") || !IsSessionOwned("filesystem@abcd1234") || IsScaled("filesystem@abcd1234") {
		t.Error("expected filesystem@abcd1234 to be session-owned-derived, not scaled")
	}
}

func TestScaledNameAndSessionName(t *testing.T) {
	if got := ScaledName("filesystem", 2); got != "filesystem#2" {
		t.Fatalf("expected filesystem#2, got %q", got)
	}
	if got := SessionName("playwright", "abcd1234"); got != "playwright@abcd1234" {
		t.Fatalf("expected playwright@abcd1234, got %q", got)
	}
}

func TestWorkerInstance_StateAndBusy(t *testing.T) {
	inst := NewInstance("demo", "demo", 0, WorkerConfig{Name: "demo"})
	if inst.State() != Connecting {
		t.Fatalf("expected new instance to start CONNECTING, got %v", inst.State())
	}
	inst.SetState(Connected)
	if inst.State() != Connected {
		t.Fatal("expected SetState to take effect")
	}
	inst.SetBusy(true)
	if !inst.Busy() {
		t.Fatal("expected SetBusy(true) to take effect")
	}
}

func TestWorkerInstance_Snapshot(t *testing.T) {
	inst := NewInstance("demo#1", "demo", 1, WorkerConfig{Name: "demo"})
	inst.Stderr.Append("boot ok")
	snap := inst.Snapshot()
	if snap.InternalName != "demo#1" || snap.Index != 1 {
		t.Fatalf("unexpected snapshot identity: %+v", snap)
	}
	if len(snap.StderrLines) != 1 || snap.StderrLines[0] != "boot ok" {
		t.Fatalf("expected stderr lines to carry through snapshot, got %+v", snap.StderrLines)
	}
	snap.StderrLines[0] = "mutated"
	if inst.Stderr.Lines()[0] == "mutated" {
		t.Fatal("expected Snapshot's StderrLines to be a copy, not aliasing the tail")
	}
}
