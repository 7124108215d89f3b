// Package queue implements the admission queue (spec §4.4): a per-base FIFO
// of QueuedCall plus the list of currently registered instances for that
// base, a 1Hz tick doing expire-then-scale-check, and dispatch driven by
// enqueue/register/completion events.
//
// The cyclic back-reference to the supervisor is broken exactly as spec §9
// prescribes: the queue holds no supervisor reference, only two callbacks
// (execute, on_scale_up) supplied at construction. This mirrors the
// teacher's internal/mcp.Manager, which also takes callback-shaped
// collaborators (ReloadHook, PromptLoader) rather than reaching back into
// its caller.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
)

// QueuedCall is one pending tool invocation (spec §3).
type QueuedCall struct {
	Base       string
	Tool       string
	Args       map[string]any
	EnqueuedAt time.Time
	Result     chan CallOutcome
}

// CallOutcome is what a QueuedCall resolves to.
type CallOutcome struct {
	Content any
	Err     error
}

// registeredInstance is the queue's view of one pool member.
type registeredInstance struct {
	internalName string
	index        int
	busy         bool
	lastActiveAt time.Time
}

// ExecuteFunc performs the actual call once an instance is claimed.
type ExecuteFunc func(ctx context.Context, internalName, tool string, args map[string]any) (any, error)

// ScaleUpFunc is invoked at most once per pending interval for a base whose
// queue is starved (spec §4.4).
type ScaleUpFunc func(base string)

// baseQueue is the FIFO plus instance list for one base name.
type baseQueue struct {
	mu            sync.Mutex
	calls         []*QueuedCall
	instances     []*registeredInstance
	scalePending  bool
}

// Queue is the admission queue manager: one baseQueue per declared base.
type Queue struct {
	mu      sync.Mutex
	bases   map[string]*baseQueue
	ttl     time.Duration
	scaleUp time.Duration
	execute ExecuteFunc
	onScale ScaleUpFunc
	log     *zap.SugaredLogger

	tickCancel context.CancelFunc
}

// New creates a Queue. ttl bounds how long a call may wait before it is
// rejected with Timeout; scaleUpWait is how long the head of a saturated
// queue must wait before a scale-up is requested.
func New(ttl, scaleUpWait time.Duration, execute ExecuteFunc, onScale ScaleUpFunc, log *zap.SugaredLogger) *Queue {
	q := &Queue{
		bases:   make(map[string]*baseQueue),
		ttl:     ttl,
		scaleUp: scaleUpWait,
		execute: execute,
		onScale: onScale,
		log:     log,
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.tickCancel = cancel
	go q.tickLoop(ctx)
	return q
}

// Stop halts the background tick loop. The queue itself remains usable for
// Drain/Enqueue calls the caller may still need to make during shutdown.
func (q *Queue) Stop() {
	q.tickCancel()
}

func (q *Queue) baseFor(base string) *baseQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	bq, ok := q.bases[base]
	if !ok {
		bq = &baseQueue{}
		q.bases[base] = bq
	}
	return bq
}

// Enqueue submits a call for base and returns the channel its outcome will
// be delivered on exactly once.
func (q *Queue) Enqueue(base, tool string, args map[string]any) <-chan CallOutcome {
	call := &QueuedCall{
		Base:       base,
		Tool:       tool,
		Args:       args,
		EnqueuedAt: time.Now(),
		Result:     make(chan CallOutcome, 1),
	}
	bq := q.baseFor(base)
	bq.mu.Lock()
	bq.calls = append(bq.calls, call)
	bq.mu.Unlock()

	q.dispatch(base, bq)
	return call.Result
}

// RegisterInstance adds a freshly CONNECTED instance to base's pool and
// attempts an immediate dispatch.
func (q *Queue) RegisterInstance(base, internalName string, index int) {
	bq := q.baseFor(base)
	bq.mu.Lock()
	bq.instances = append(bq.instances, &registeredInstance{
		internalName: internalName,
		index:        index,
		lastActiveAt: time.Now(),
	})
	bq.mu.Unlock()
	q.dispatch(base, bq)
}

// UnregisterInstance removes an instance from base's pool (idle reap or stop).
func (q *Queue) UnregisterInstance(base, internalName string) {
	bq := q.baseFor(base)
	bq.mu.Lock()
	for i, ri := range bq.instances {
		if ri.internalName == internalName {
			bq.instances = append(bq.instances[:i], bq.instances[i+1:]...)
			break
		}
	}
	bq.mu.Unlock()
}

// dispatch walks registered instances in order, assigning one queued call to
// each not-busy instance, saturating multiple idle instances in one pass
// (spec §4.4).
func (q *Queue) dispatch(base string, bq *baseQueue) {
	for {
		bq.mu.Lock()
		var target *registeredInstance
		for _, ri := range bq.instances {
			if !ri.busy {
				target = ri
				break
			}
		}
		if target == nil || len(bq.calls) == 0 {
			bq.mu.Unlock()
			return
		}
		call := bq.calls[0]
		bq.calls = bq.calls[1:]
		target.busy = true
		bq.mu.Unlock()

		go q.run(base, bq, target, call)
	}
}

func (q *Queue) run(base string, bq *baseQueue, ri *registeredInstance, call *QueuedCall) {
	content, err := q.execute(context.Background(), ri.internalName, call.Tool, call.Args)
	bq.mu.Lock()
	ri.busy = false
	ri.lastActiveAt = time.Now()
	bq.mu.Unlock()

	call.Result <- CallOutcome{Content: content, Err: err}
	q.dispatch(base, bq)
}

// Drain rejects every queued call for base with a server-stopped error,
// clears the instance list, and clears the pending-scale-up flag
// atomically (spec §4.4).
func (q *Queue) Drain(base string) {
	bq := q.baseFor(base)
	bq.mu.Lock()
	calls := bq.calls
	bq.calls = nil
	bq.instances = nil
	bq.scalePending = false
	bq.mu.Unlock()

	for _, c := range calls {
		c.Result <- CallOutcome{Err: swarmerr.New(swarmerr.Cancelled, "server stopped")}
	}
}

// ClearScalePending is called by the supervisor once a requested scale-up
// resolves, success or failure.
func (q *Queue) ClearScalePending(base string) {
	bq := q.baseFor(base)
	bq.mu.Lock()
	bq.scalePending = false
	bq.mu.Unlock()
}

func (q *Queue) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick()
		}
	}
}

func (q *Queue) tick() {
	q.mu.Lock()
	bases := make(map[string]*baseQueue, len(q.bases))
	for name, bq := range q.bases {
		bases[name] = bq
	}
	q.mu.Unlock()

	now := time.Now()
	for name, bq := range bases {
		q.expire(bq, now)
		q.scaleCheck(name, bq, now)
	}
}

// expire drops calls whose age >= ttl, rejecting with Timeout (spec §4.4).
func (q *Queue) expire(bq *baseQueue, now time.Time) {
	bq.mu.Lock()
	var kept []*QueuedCall
	var expired []*QueuedCall
	for _, c := range bq.calls {
		if now.Sub(c.EnqueuedAt) >= q.ttl {
			expired = append(expired, c)
		} else {
			kept = append(kept, c)
		}
	}
	bq.calls = kept
	bq.mu.Unlock()

	for _, c := range expired {
		c.Result <- CallOutcome{Err: swarmerr.New(swarmerr.Timeout, "queue TTL expired after %s", q.ttl)}
	}
}

// scaleCheck requests one scale-up per pending interval when the head of the
// queue has waited long enough and every registered instance is busy (spec §4.4).
func (q *Queue) scaleCheck(base string, bq *baseQueue, now time.Time) {
	bq.mu.Lock()
	if bq.scalePending || len(bq.calls) == 0 {
		bq.mu.Unlock()
		return
	}
	if now.Sub(bq.calls[0].EnqueuedAt) < q.scaleUp {
		bq.mu.Unlock()
		return
	}
	allBusy := len(bq.instances) > 0
	for _, ri := range bq.instances {
		if !ri.busy {
			allBusy = false
			break
		}
	}
	if !allBusy {
		bq.mu.Unlock()
		return
	}
	bq.scalePending = true
	bq.mu.Unlock()

	if q.onScale != nil {
		q.onScale(base)
	}
}
