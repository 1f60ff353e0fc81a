// Package pool implements the cooperative thread pool described in spec §4.3:
// one planner goroutine, N worker goroutines, two producer queues (ordered
// and unordered) separated by barriers, and a completion path that hands
// after-work callbacks back to a single loop goroutine. It serialises
// SQLite's synchronous callbacks while letting unrelated I/O run in
// parallel — see spec §1 and §5.
package pool

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/queue"
	"github.com/dqlited/dqlited/internal/statemachine"
)

type queueNode = queue.Node

const (
	// DefaultThreadCount is POOL_THREADPOOL_SIZE's default.
	DefaultThreadCount = 4
	// MaxThreadCount is the clamp ceiling for POOL_THREADPOOL_SIZE.
	MaxThreadCount = 1024
)

// ClampThreadCount parses a POOL_THREADPOOL_SIZE environment value the way
// the original pool_threads_init does: empty means "use the default", a
// non-positive or unparsable value clamps to 1, and anything over
// MaxThreadCount clamps to MaxThreadCount.
func ClampThreadCount(raw string) uint32 {
	if raw == "" {
		return DefaultThreadCount
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 1
	}
	if n > MaxThreadCount {
		return MaxThreadCount
	}
	return uint32(n)
}

type workerState struct {
	inbox queueNode
	cond  *sync.Cond
}

// Pool is a running thread pool. Construct with New and start with Start;
// Stop drains and joins every goroutine. The zero value is not usable.
type Pool struct {
	mu          sync.Mutex
	plannerCond *sync.Cond

	nthreads uint32
	workers  []*workerState

	ordered      queueNode
	unordered    queueNode
	orderedLen   int
	unorderedLen int

	inFlight    uint32
	exiting     bool
	prevOrdered Class
	qos         uint32
	planner     *statemachine.Machine

	outMu sync.Mutex
	outq  queueNode
	wake  chan struct{}
	done  chan struct{}

	runnersWG    sync.WaitGroup // planner + workers
	completionWG sync.WaitGroup
}

// New constructs a pool with nthreads worker goroutines (clamped to at least
// 1 by the caller via ClampThreadCount). Call Start to begin processing.
func New(nthreads uint32) *Pool {
	if nthreads == 0 {
		nthreads = 1
	}

	p := &Pool{
		nthreads:    nthreads,
		workers:     make([]*workerState, nthreads),
		prevOrdered: ClassBarrier,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	p.plannerCond = sync.NewCond(&p.mu)
	p.ordered.Init()
	p.unordered.Init()
	p.outq.Init()

	for i := range p.workers {
		ws := &workerState{}
		ws.inbox.Init()
		ws.cond = sync.NewCond(&p.mu)
		p.workers[i] = ws
	}

	p.planner = statemachine.New("pool-planner", plannerStateTable(), p.plannerInvariant, psNothing)
	return p
}

// Start launches the planner, worker, and completion goroutines.
func (p *Pool) Start() {
	p.runnersWG.Add(1)
	go p.runPlanner()

	for _, ws := range p.workers {
		p.runnersWG.Add(1)
		go p.runWorker(ws)
	}

	p.completionWG.Add(1)
	go p.runCompletions()
}

// Submit enqueues w, addressed to worker (cookie mod N). BAR items (class ==
// ClassBarrier) are always placed on the ordered queue regardless of cookie.
// Submitting after shutdown has begun, or interleaving two different ordered
// classes without an intervening barrier, is a design-law violation and
// panics — see spec §4.3 "Ordered class precondition" and §9.
func (p *Pool) Submit(w *Work) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exiting {
		panic("pool: submit called after shutdown has begun")
	}

	if w.class != ClassUnordered {
		if p.prevOrdered != ClassBarrier && w.class != ClassBarrier && p.prevOrdered != w.class {
			panic(fmt.Sprintf(
				"pool: ordered class %d submitted while class %d is still open; a barrier must separate ordered classes",
				w.class, p.prevOrdered))
		}
		p.prevOrdered = w.class
	}

	target := &p.unordered
	if w.class != ClassUnordered {
		target = &p.ordered
	}
	target.InsertTail(&w.link)
	if w.class != ClassUnordered {
		p.orderedLen++
	} else {
		p.unorderedLen++
	}
	log.Trace().Uint32("class", uint32(w.class)).Uint32("cookie", w.cookie).Msg("pool: work submitted")
	p.plannerCond.Signal()
}

// Stop begins shutdown, joins every goroutine, and panics if any queue is
// left non-empty once everything has drained — that would mean a worker or
// the planner exited early. A pending barrier with a non-zero in-flight
// count legitimately blocks Stop until the outstanding work finishes; see
// spec §5 "shutdown blocks on a pending barrier, by design".
func (p *Pool) Stop() {
	p.mu.Lock()
	p.exiting = true
	p.plannerCond.Signal()
	for _, ws := range p.workers {
		ws.cond.Signal()
	}
	p.mu.Unlock()

	// Planner and workers must fully join before done is closed: that is
	// what guarantees every completion they pushed has already landed in
	// outq by the time the completion goroutine does its final drain.
	p.runnersWG.Wait()

	close(p.done)
	p.completionWG.Wait()

	p.mu.Lock()
	empty := p.ordered.Empty() && p.unordered.Empty()
	p.mu.Unlock()
	if !empty {
		panic("pool: shutdown completed with non-empty queues")
	}
}

// Stats is a point-in-time snapshot of pool occupancy, exposed for the admin
// debug endpoint and for tests.
type Stats struct {
	OrderedDepth   int
	UnorderedDepth int
	InFlight       uint32
	PlannerState   string
}

// Stats returns a snapshot of current queue depths and planner state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		OrderedDepth:   p.orderedLen,
		UnorderedDepth: p.unorderedLen,
		InFlight:       p.inFlight,
		PlannerState:   p.planner.Name(),
	}
}
