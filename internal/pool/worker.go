package pool

// runWorker is one worker goroutine: src/lib/threadpool.c's worker(). It
// waits for items addressed to it, runs each one's work callback outside
// the pool mutex, then hands the item to the completion path. A worker only
// exits once its own inbox has drained and shutdown has begun — it never
// abandons queued work, see spec §5.
func (p *Pool) runWorker(ws *workerState) {
	defer p.runnersWG.Done()

	for {
		p.mu.Lock()
		for ws.inbox.Empty() {
			if p.exiting {
				p.mu.Unlock()
				return
			}
			ws.cond.Wait()
		}
		n := ws.inbox.Head()
		n.Remove()
		n.Init()
		p.mu.Unlock()

		w := workFromNode(n)
		w.workFn(w)
		p.pushCompletion(w)

		if w.class > ClassBarrier {
			p.mu.Lock()
			p.inFlight--
			if p.inFlight == 0 {
				p.plannerCond.Signal()
			}
			p.mu.Unlock()
		}
	}
}
