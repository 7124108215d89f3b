package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
)

func TestEnqueue_DispatchesToRegisteredInstance(t *testing.T) {
	var calls int32
	execute := func(ctx context.Context, internalName, tool string, args map[string]any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	}
	q := New(time.Minute, time.Minute, execute, nil, nil)
	defer q.Stop()

	q.RegisterInstance("demo", "demo", 0)
	outcome := <-q.Enqueue("demo", "list_files", nil)

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if outcome.Content != "ok" {
		t.Fatalf("expected content %q, got %v", "ok", outcome.Content)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 execute call, got %d", calls)
	}
}

func TestEnqueue_WaitsForInstanceThenDispatches(t *testing.T) {
	execute := func(ctx context.Context, internalName, tool string, args map[string]any) (any, error) {
		return internalName, nil
	}
	q := New(time.Minute, time.Minute, execute, nil, nil)
	defer q.Stop()

	resultCh := q.Enqueue("demo", "tool", nil)
	// No instance registered yet: must not dispatch prematurely.
	select {
	case <-resultCh:
		t.Fatal("expected no dispatch before an instance is registered")
	case <-time.After(20 * time.Millisecond):
	}

	q.RegisterInstance("demo", "demo", 0)
	outcome := <-resultCh
	if outcome.Content != "demo" {
		t.Fatalf("expected dispatch to the newly registered instance, got %v", outcome.Content)
	}
}

func TestDrain_RejectsQueuedCallsWithCancelled(t *testing.T) {
	execute := func(ctx context.Context, internalName, tool string, args map[string]any) (any, error) {
		return nil, nil
	}
	q := New(time.Minute, time.Minute, execute, nil, nil)
	defer q.Stop()

	resultCh := q.Enqueue("demo", "tool", nil)
	q.Drain("demo")

	outcome := <-resultCh
	if !swarmerr.Is(outcome.Err, swarmerr.Cancelled) {
		t.Fatalf("expected a Cancelled error, got %v", outcome.Err)
	}
}

func TestScaleCheck_FiresOnceWhenAllInstancesBusyAndHeadStale(t *testing.T) {
	block := make(chan struct{})
	execute := func(ctx context.Context, internalName, tool string, args map[string]any) (any, error) {
		<-block
		return nil, nil
	}
	var scaleUps int32
	onScale := func(base string) { atomic.AddInt32(&scaleUps, 1) }

	q := New(time.Minute, time.Millisecond, execute, onScale, nil)
	defer q.Stop()

	q.RegisterInstance("demo", "demo", 0)
	q.Enqueue("demo", "tool-a", nil) // claims the only instance, blocks in execute
	second := q.Enqueue("demo", "tool-b", nil)

	time.Sleep(50 * time.Millisecond) // let the 1Hz... no, scaleCheck runs on tick(); wait a couple ticks
	time.Sleep(2 * time.Second)

	close(block)
	<-second

	if n := atomic.LoadInt32(&scaleUps); n != 1 {
		t.Fatalf("expected exactly one scale-up request once the queue was saturated and stale, got %d", n)
	}
}
