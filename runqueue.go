package mercury

import "sync"

// RunQueue is the global FIFO of runnable contexts (spec §4.C): a
// singly-linked list guarded by a single mutex. The node-chaining
// style (head/tail pointers, splice-by-predecessor) follows the
// teacher's lock-free List (list.go) in shape; here the list is
// mutex-guarded rather than lock-free because spec §5 explicitly
// scopes the run-queue's critical section to "the preference scan",
// not a wait-free fast path.
type RunQueue struct {
	mu         sync.Mutex
	head, tail *Context
}

func NewRunQueue() *RunQueue { return &RunQueue{} }

// Enqueue appends c at the tail.
func (q *RunQueue) Enqueue(c *Context) {
	q.mu.Lock()
	c.next = nil
	c.state = stateRunQueue
	if q.tail == nil {
		q.head, q.tail = c, c
	} else {
		q.tail.next = c
		q.tail = c
	}
	q.mu.Unlock()
}

// splice removes node, given its predecessor (nil if node is head).
// Caller holds q.mu.
func (q *RunQueue) splice(prev, node *Context) {
	if prev == nil {
		q.head = node.next
	} else {
		prev.next = node.next
	}
	if node == q.tail {
		q.tail = prev
	}
	node.next = nil
}

// DequeueFor implements the preference-aware dequeue of spec §4.C:
// first, the first context whose hard affinity targets exactly this
// engine id and C-call depth; else the first context preferring this
// engine; else the oldest context with no hard affinity at all — a
// hard-affinity context belonging to another engine/depth is never
// handed out by this fallback (invariant I3; spec scenario S3). Ties
// within a class are broken by list position (older first).
func (q *RunQueue) DequeueFor(engineID int32, cCallDepth int32) *Context {
	q.mu.Lock()
	defer q.mu.Unlock()

	var prev *Context
	for n := q.head; n != nil; prev, n = n, n.next {
		if n.HardAffinity && n.HardEngine == engineID && n.HardCCallDepth == cCallDepth {
			q.splice(prev, n)
			n.state = stateRunning
			return n
		}
	}

	prev = nil
	for n := q.head; n != nil; prev, n = n, n.next {
		if !n.HardAffinity && n.PreferredEngine == engineID {
			q.splice(prev, n)
			n.state = stateRunning
			return n
		}
	}

	// FIFO fallback: the oldest context not reserved for a specific
	// other engine+depth (invariant I3 — a hard-affinity context may
	// only ever be handed out by the first pass above).
	prev = nil
	for n := q.head; n != nil; prev, n = n, n.next {
		if !n.HardAffinity {
			q.splice(prev, n)
			n.state = stateRunning
			return n
		}
	}
	return nil
}

// Empty reports whether the queue currently holds no contexts.
// Diagnostic use only — racy the instant the lock is released.
func (q *RunQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == nil
}
