package pool

import (
	"unsafe"

	"github.com/dqlited/dqlited/internal/queue"
)

// Class identifies a work item's scheduling class. ClassUnordered items carry
// no ordering guarantee. ClassBarrier marks a pure synchronization point.
// Any class greater than ClassBarrier is an ordered class: items submitted
// under the same ordered class execute, in submission order, on the same
// deterministic worker (cookie mod N). See spec §3 "Ordered class index".
type Class int

const (
	ClassUnordered Class = iota
	ClassBarrier
	firstOrderedClass
)

// OrderedClass returns the ordered class tag for index i (i=0 is the first
// ordered class, conventionally the gateway uses the database id as i).
func OrderedClass(i uint32) Class {
	return firstOrderedClass + Class(i)
}

// Func is a work or after-work callback.
type Func func(w *Work)

// Work is a single unit of pool work. Once submitted, its fields are
// read-only to the producer until AfterFunc runs on the loop thread — see
// spec §3 "Work item" invariants. Payload is the only field a producer may
// stash data in and read back once AfterFunc fires.
type Work struct {
	link queue.Node

	class    Class
	cookie   uint32
	threadID uint32

	workFn  Func
	afterFn Func

	// Payload carries producer-owned data through the pool untouched.
	Payload any
}

// NewWork constructs a Work item of the given class, to be dispatched to
// worker (cookie mod N). workFn runs on a worker goroutine; afterFn (which
// may be nil) runs on the pool's completion (loop) goroutine once workFn (if
// any) has finished. class == ClassBarrier requires workFn == nil: a barrier
// carries no work of its own, only a synchronization point.
func NewWork(class Class, cookie uint32, workFn, afterFn Func) *Work {
	if class == ClassBarrier && workFn != nil {
		panic("pool: barrier work items must not carry a work callback")
	}
	if class != ClassBarrier && workFn == nil {
		panic("pool: non-barrier work items require a work callback")
	}
	w := &Work{class: class, cookie: cookie, workFn: workFn, afterFn: afterFn}
	w.link.Init()
	return w
}

// Class reports the work item's scheduling class.
func (w *Work) Class() Class { return w.class }

// ThreadID reports the worker index this item was dispatched to. Valid only
// once the work callback has begun executing.
func (w *Work) ThreadID() uint32 { return w.threadID }

var workLinkOffset = unsafe.Offsetof(Work{}.link)

// workFromNode recovers the containing Work from one of its queue links, the
// same fixed-offset recovery the C original performs via QUEUE__DATA — see
// spec §9 "Cyclic references".
func workFromNode(n *queue.Node) *Work {
	return (*Work)(unsafe.Pointer(uintptr(unsafe.Pointer(n)) - workLinkOffset))
}
