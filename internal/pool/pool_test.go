package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// recorder is a thread-safe append-only log used to assert ordering.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}

func waitForLen(t *testing.T, r *recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.snapshot()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d log entries, got %v", n, r.snapshot())
}

// TestOrderedItemsRunInSubmissionOrderOnOneWorker exercises the scenario of
// four workers, cookie 0 for every ordered item (so they all land on the
// same worker), confirming ordered items of the same class execute strictly
// in submission order even though three other idle workers could race them.
func TestOrderedItemsRunInSubmissionOrderOnOneWorker(t *testing.T) {
	p := New(4)
	p.Start()
	defer p.Stop()

	rec := &recorder{}
	cls := OrderedClass(0)

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("ord%d", i)
		w := NewWork(cls, 0, func(w *Work) { rec.add(name) }, nil)
		p.Submit(w)
	}

	waitForLen(t, rec, 3)
	got := rec.snapshot()
	for i, e := range got {
		if want := fmt.Sprintf("ord%d", i); e != want {
			t.Fatalf("entry %d: got %q, want %q (log %v)", i, e, want, got)
		}
	}
}

// TestBarrierSeparatesOrderedClassesAndWaitsForInFlight exercises the
// sequence ORD1, ORD1, BAR, ORD1, UNORD: the barrier must not resolve (its
// afterFn must not fire) until the two preceding ordered items have finished,
// and the trailing ORD1 must not start before the barrier resolves (the
// UNORD is flushed to its worker while the barrier is still pending).
func TestBarrierSeparatesOrderedClassesAndWaitsForInFlight(t *testing.T) {
	p := New(4)
	p.Start()
	defer p.Stop()

	rec := &recorder{}
	cls := OrderedClass(0)

	release := make(chan struct{})
	w1 := NewWork(cls, 0, func(w *Work) {
		<-release
		rec.add("ord1-a")
	}, func(w *Work) { rec.add("ord1-a-after") })
	w2 := NewWork(cls, 0, func(w *Work) { rec.add("ord1-b") }, func(w *Work) { rec.add("ord1-b-after") })
	bar := NewWork(ClassBarrier, 0, nil, func(w *Work) { rec.add("barrier") })
	w3 := NewWork(cls, 0, func(w *Work) { rec.add("ord1-c") }, nil)
	u := NewWork(ClassUnordered, 1, func(w *Work) { rec.add("unord") }, nil)

	p.Submit(w1)
	p.Submit(w2)
	p.Submit(bar)
	p.Submit(w3)
	p.Submit(u)

	time.Sleep(20 * time.Millisecond)
	got := rec.snapshot()
	for _, e := range got {
		if e == "barrier" || e == "ord1-c" {
			t.Fatalf("barrier resolved before blocking work finished: %v", got)
		}
	}

	close(release)
	waitForLen(t, rec, 7)

	got = rec.snapshot()
	barrierIdx, ord1cIdx, ord1aIdx, ord1bIdx := -1, -1, -1, -1
	for i, e := range got {
		switch e {
		case "barrier":
			barrierIdx = i
		case "ord1-c":
			ord1cIdx = i
		case "ord1-a":
			ord1aIdx = i
		case "ord1-b":
			ord1bIdx = i
		}
	}
	if ord1aIdx > ord1bIdx {
		t.Fatalf("ordered items ran out of submission order: %v", got)
	}
	if barrierIdx < ord1aIdx || barrierIdx < ord1bIdx {
		t.Fatalf("barrier resolved before the ordered work ahead of it: %v", got)
	}
	if ord1cIdx < barrierIdx {
		t.Fatalf("work submitted after the barrier ran before it resolved: %v", got)
	}
}

// TestSubmitPanicsOnInterleavedOrderedClassesWithoutBarrier exercises the
// ordered-class precondition: two different ordered classes back to back
// with no intervening barrier is a design-law violation.
func TestSubmitPanicsOnInterleavedOrderedClassesWithoutBarrier(t *testing.T) {
	p := New(2)
	p.Start()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic submitting an interleaved ordered class")
		}
		p.Stop()
	}()

	p.Submit(NewWork(OrderedClass(0), 0, func(w *Work) {}, nil))
	p.Submit(NewWork(OrderedClass(1), 0, func(w *Work) {}, nil))
}

// TestStopDrainsAllQueuedWork confirms Stop joins every goroutine only after
// all previously-submitted work (and its afterFn) has run.
func TestStopDrainsAllQueuedWork(t *testing.T) {
	p := New(3)
	p.Start()

	rec := &recorder{}
	for i := 0; i < 10; i++ {
		p.Submit(NewWork(ClassUnordered, uint32(i), func(w *Work) {}, func(w *Work) { rec.add("done") }))
	}

	p.Stop()

	if got := len(rec.snapshot()); got != 10 {
		t.Fatalf("expected all 10 completions to have run before Stop returned, got %d", got)
	}
}

// TestSubmitAfterStopPanics confirms submitting to a stopped pool is a
// design-law violation, not a quiet no-op.
func TestSubmitAfterStopPanics(t *testing.T) {
	p := New(1)
	p.Start()
	p.Stop()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic submitting after Stop")
		}
	}()
	p.Submit(NewWork(ClassUnordered, 0, func(w *Work) {}, nil))
}
