package pool

import "github.com/rs/zerolog/log"

// pushCompletion hands a finished work item to the completion goroutine, to
// be run with no pool lock held. Safe to call from any worker goroutine or
// from the planner itself (resolveBarrier).
func (p *Pool) pushCompletion(w *Work) {
	p.outMu.Lock()
	p.outq.InsertTail(&w.link)
	p.outMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// runCompletions is the pool's loop thread: the single goroutine that ever
// invokes an after-work callback, always outside any pool lock, in FIFO
// completion order. Mirrors the original's uv_async_send-driven work_done
// handler — see spec §4.1 "Completion" and §9.
func (p *Pool) runCompletions() {
	defer p.completionWG.Done()

	for {
		select {
		case <-p.wake:
		case <-p.done:
		}

		p.drainCompletions()

		select {
		case <-p.done:
			p.drainCompletions()
			return
		default:
		}
	}
}

func (p *Pool) drainCompletions() {
	var batch queueNode
	batch.Init()

	p.outMu.Lock()
	batch.Splice(&p.outq)
	p.outMu.Unlock()

	for !batch.Empty() {
		n := batch.Head()
		n.Remove()
		n.Init()
		w := workFromNode(n)
		if w.afterFn != nil {
			log.Trace().Uint32("thread", w.threadID).Int("class", int(w.class)).Msg("pool: running completion")
			w.afterFn(w)
		}
	}
}
