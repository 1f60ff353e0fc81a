package pool

import (
	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/statemachine"
)

// Planner states, named and bit-masked exactly as src/lib/threadpool.c's
// planner_states table. See spec §4.3.
const (
	psNothing statemachine.State = iota
	psDraining
	psBarrier
	psDrainingUnord
	psExited
)

func plannerStateTable() []statemachine.Conf {
	return []statemachine.Conf{
		psNothing: {
			Name:    "nothing",
			Flags:   statemachine.Initial,
			Allowed: statemachine.Bit(psDraining) | statemachine.Bit(psExited),
		},
		psDraining: {
			Name:    "draining",
			Allowed: statemachine.Bit(psDraining) | statemachine.Bit(psNothing) | statemachine.Bit(psBarrier),
		},
		psBarrier: {
			Name:    "barrier",
			Allowed: statemachine.Bit(psDrainingUnord) | statemachine.Bit(psDraining) | statemachine.Bit(psBarrier),
		},
		psDrainingUnord: {
			Name:    "unord-draining",
			Allowed: statemachine.Bit(psBarrier),
		},
		psExited: {
			Name:  "exited",
			Flags: statemachine.Final,
		},
	}
}

// ergo is material implication: !a || b. Named after the original's ERGO
// macro, which every planner invariant clause is built from.
func ergo(a, b bool) bool {
	return !a || b
}

// plannerInvariant is planner_invariant from the original, ported clause for
// clause. p.mu is held by the caller (Machine.Move runs under the pool
// mutex throughout the planner loop).
func (p *Pool) plannerInvariant(prev, cur statemachine.State) bool {
	o := &p.ordered
	u := &p.unordered

	return ergo(cur == psNothing, o.Empty() && u.Empty()) &&
		ergo(cur == psDraining,
			ergo(prev == psBarrier, p.inFlight == 0 && u.Empty()) &&
				ergo(prev == psNothing, !u.Empty() || !o.Empty())) &&
		ergo(cur == psExited, p.exiting && o.Empty() && u.Empty()) &&
		ergo(cur == psBarrier,
			ergo(prev == psDraining, classOfHead(o) == ClassBarrier) &&
				ergo(prev == psDrainingUnord, u.Empty())) &&
		ergo(cur == psDrainingUnord, !u.Empty())
}

// classOfHead returns the class of the head item of q, or ClassUnordered if
// q is empty (callers only use this where emptiness has already been ruled
// out by the caller's own branch condition).
func classOfHead(q *queueNode) Class {
	n := q.Head()
	if n == nil {
		return ClassUnordered
	}
	return workFromNode(n).class
}

// runPlanner is the planner goroutine body: src/lib/threadpool.c's planner().
// It holds p.mu for its entire lifetime except while parked on p.plannerCond.
func (p *Pool) runPlanner() {
	defer p.runnersWG.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		switch p.planner.State() {
		case psNothing:
			for p.ordered.Empty() && p.unordered.Empty() && !p.exiting {
				p.plannerCond.Wait()
			}
			if p.exiting {
				p.planner.Move(psExited)
			} else {
				p.planner.Move(psDraining)
			}

		case psDraining:
			for !(p.ordered.Empty() && p.unordered.Empty()) {
				p.planner.Move(psDraining)
				if !p.ordered.Empty() && classOfHead(&p.ordered) == ClassBarrier {
					p.planner.Move(psBarrier)
					break
				}
				p.dispatchOne()
			}
			if p.planner.State() == psDraining {
				p.planner.Move(psNothing)
			}

		case psBarrier:
			if !p.unordered.Empty() {
				p.planner.Move(psDrainingUnord)
				continue
			}
			if p.inFlight == 0 {
				p.resolveBarrier()
				p.planner.Move(psDraining)
				continue
			}
			p.plannerCond.Wait()
			p.planner.Move(psBarrier)

		case psDrainingUnord:
			for !p.unordered.Empty() {
				p.unorderedLen--
				p.dispatch(popHead(&p.unordered))
			}
			p.planner.Move(psBarrier)

		case psExited:
			return
		}
	}
}

// dispatchOne pops one item via the fairness counter and hands it to its
// addressed worker's inbox. Caller holds p.mu.
func (p *Pool) dispatchOne() {
	p.dispatch(p.fairPop())
}

// dispatch hands an already-popped item to its addressed worker's inbox.
// Caller holds p.mu.
func (p *Pool) dispatch(n *queueNode) {
	w := workFromNode(n)
	tid := w.cookie % p.nthreads
	w.threadID = tid
	ws := p.workers[tid]
	ws.inbox.InsertTail(n)
	ws.cond.Signal()
	log.Trace().Uint32("thread", tid).Int("class", int(w.class)).Msg("pool: work dispatched")
	if w.class > ClassBarrier {
		p.inFlight++
	}
}

// fairPop alternates between the ordered and unordered queue using a
// round-robin counter, falling back to whichever queue is non-empty — the
// original's qos_pop. Caller holds p.mu and has established at least one
// queue is non-empty.
func (p *Pool) fairPop() *queueNode {
	o, u := &p.ordered, &p.unordered
	if o.Empty() {
		p.unorderedLen--
		return popHead(u)
	}
	if u.Empty() {
		p.orderedLen--
		return popHead(o)
	}
	p.qos++
	if p.qos%2 == 1 {
		p.orderedLen--
		return popHead(o)
	}
	p.unorderedLen--
	return popHead(u)
}

func popHead(q *queueNode) *queueNode {
	n := q.Head()
	n.Remove()
	n.Init()
	return n
}

// resolveBarrier consumes the ordered queue's head (known to be a BAR item)
// and hands it to the completion path so its after-work callback, if any,
// still fires on the loop thread. Caller holds p.mu.
func (p *Pool) resolveBarrier() {
	n := p.ordered.Head()
	n.Remove()
	n.Init()
	p.orderedLen--
	w := workFromNode(n)
	p.pushCompletion(w)
}
