package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
	"github.com/SpideXD/mcp-swarm/internal/workerclient"
)

// blockingClient is a fake workerclient.Client whose CallTool blocks until
// the test signals it to proceed, letting the test observe instance state
// while a call is in flight.
type blockingClient struct {
	callStarted chan struct{}
	proceed     chan struct{}
}

func newBlockingClient() *blockingClient {
	return &blockingClient{callStarted: make(chan struct{}), proceed: make(chan struct{})}
}

func (c *blockingClient) Connect(ctx context.Context) error { return nil }
func (c *blockingClient) ListTools(ctx context.Context) ([]worker.ToolDescriptor, error) {
	return nil, nil
}
func (c *blockingClient) CallTool(ctx context.Context, tool string, args map[string]any) (workerclient.Result, error) {
	close(c.callStarted)
	<-c.proceed
	return workerclient.Result{Content: []workerclient.Content{{Kind: "text", Text: "ok"}}}, nil
}
func (c *blockingClient) OnToolsChanged(func([]worker.ToolDescriptor)) {}
func (c *blockingClient) OnClosed(func(error))                        {}
func (c *blockingClient) ProcessID() int                              { return 0 }
func (c *blockingClient) StderrTail() *worker.StderrTail              { return nil }
func (c *blockingClient) Close() error                                { return nil }

// TestInvoke_MarksBusyForDurationOfCall is the regression test for the
// SetBusy wiring bug: the idle reaper reads WorkerInstance.Busy() and
// LastActiveAt(), so invoke must set both around the real call, not just at
// connect time.
func TestInvoke_MarksBusyForDurationOfCall(t *testing.T) {
	cfg := testConfig()
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo#1", "demo", 1, worker.WorkerConfig{Name: "demo", Transport: worker.Local})
	inst.SetState(worker.Connected)
	cli := newBlockingClient()
	bindInstanceClient(inst, cli)
	t.Cleanup(func() { clearClient(inst.InternalName) })
	s.setInstance(inst)

	if inst.Busy() {
		t.Fatal("expected a freshly connected instance to start idle")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.invoke(context.Background(), inst, "some_tool", nil); err != nil {
			t.Errorf("invoke: %v", err)
		}
	}()

	<-cli.callStarted
	if !inst.Busy() {
		t.Fatal("expected the instance to be marked busy while the call is in flight")
	}
	beforeCompletion := inst.LastActiveAt()

	// last_active_at has millisecond resolution; let at least one tick pass.
	time.Sleep(2 * time.Millisecond)
	close(cli.proceed)
	<-done

	if inst.Busy() {
		t.Fatal("expected the instance to be marked idle once the call completes")
	}
	if !inst.LastActiveAt().After(beforeCompletion) {
		t.Fatal("expected last_active_at to advance when the call completes")
	}
}

// TestInvoke_NoLiveClientReturnsNotConnected covers the other invoke branch:
// an instance with no bound transport client fails fast instead of blocking.
func TestInvoke_NoLiveClientReturnsNotConnected(t *testing.T) {
	cfg := testConfig()
	s := newTestSupervisor(t, cfg)

	inst := worker.NewInstance("demo", "demo", 0, worker.WorkerConfig{Name: "demo"})
	inst.SetState(worker.Connected)

	_, err := s.invoke(context.Background(), inst, "some_tool", nil)
	if !swarmerr.Is(err, swarmerr.NotConnected) {
		t.Fatalf("expected NotConnected, got %v", err)
	}
}
