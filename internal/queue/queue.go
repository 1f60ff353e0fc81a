// Package queue implements the intrusive, doubly-linked, circular work queue
// used by the thread pool to move work items between producers, the planner,
// and per-worker inboxes without allocating on the hot path.
package queue

// Node is the intrusive link embedded in every queued item. A zero Node is a
// valid, empty, one-element circular list (its own head).
type Node struct {
	prev *Node
	next *Node
}

// Init resets n to an empty, self-referential node. Call this once before
// first use, or after Remove to make n reusable.
func (n *Node) Init() {
	n.prev = n
	n.next = n
}

// Empty reports whether n is the head of a queue with no other elements.
func (n *Node) Empty() bool {
	return n.next == n
}

// Head returns the first element after n, or nil if the queue is empty.
// n is conventionally the sentinel head of the list, never itself a payload.
func (n *Node) Head() *Node {
	if n.Empty() {
		return nil
	}
	return n.next
}

// InsertTail splices what onto the end of the queue rooted at n.
func (n *Node) InsertTail(what *Node) {
	what.prev = n.prev
	what.next = n
	n.prev.next = what
	n.prev = what
}

// Remove splices n out of whatever queue it is linked into. n is left in an
// undefined linkage state; callers that intend to reuse n call Init.
func (n *Node) Remove() {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// Splice moves every element from src onto the tail of n in O(1), leaving
// src empty.
func (n *Node) Splice(src *Node) {
	if src.Empty() {
		return
	}
	first := src.next
	last := src.prev

	first.prev = n.prev
	n.prev.next = first

	last.next = n
	n.prev = last

	src.Init()
}
