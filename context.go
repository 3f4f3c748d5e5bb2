package mercury

import (
	"sync"
	"sync/atomic"
)

// SizeClass is the stack size class a Context was created with. A
// REGULAR context may satisfy a SMALL request; the reverse is never
// allowed (spec §4.A).
type SizeClass int

const (
	SizeSmall SizeClass = iota
	SizeRegular
)

func (s SizeClass) String() string {
	if s == SizeSmall {
		return "SMALL"
	}
	return "REGULAR"
}

// contextState is used only for invariant checking (I2 of spec §3):
// a Context is in exactly one of these states at any time.
type contextState int32

const (
	stateFree contextState = iota
	stateRunning
	stateRunQueue
	statePendingIO
	stateSuspendedJoin
)

// Outcome is returned by every ProgramPoint invocation. It reports
// that the call chain driving a context has bottomed out: either the
// context finished entirely, or the engine was told to tear down
// (shutdown broadcast).
type Outcome struct {
	// ContextDone is true when the context that was driving this call
	// chain has completed and should be destroyed.
	ContextDone bool
	// Shutdown is true when the engine received the SHUTDOWN action
	// and must exit its dispatch loop.
	Shutdown bool
}

// ProgramPoint stands in for a bytecode resume address: a point the
// scheduler can "jump to" by calling it. Term/bytecode interpretation
// is out of scope (spec Non-goals); this closure is the idiomatic Go
// substitute needed to make the scheduler itself runnable and testable.
type ProgramPoint func(e *Engine) Outcome

// Generator is the top-level body of a freshly created Context: what
// runs when the context is resumed for the first time (as opposed to
// resuming via a previously-saved ProgramPoint).
type Generator func(e *Engine, c *Context) Outcome

// Context is an independently runnable computation: unique id, owned
// stacks (represented only by their configured sizes — stack-zone
// allocation mechanics are out of scope), a resume point, affinity
// bookkeeping, and a thread-local mutable vector.
type Context struct {
	ID         uint64
	DebugLabel string
	Size       SizeClass
	Stacks     StackSizes

	// resumeBox holds the published continuation once this context
	// has suspended at a join (saveDirtyContext). It is nil for a
	// never-yet-run context, which instead starts at Gen. Published
	// through an atomic.Pointer rather than a plain field because
	// join_and_continue's foreign/last case busy-waits on a different
	// goroutine publishing this value (spec §4.F case 3) — the
	// atomic's built-in acquire/release ordering is what makes that
	// busy-wait correct.
	resumeBox atomic.Pointer[ProgramPoint]
	Gen       Generator

	PreferredEngine int32 // -1 = no preference
	HardAffinity    bool
	HardEngine      int32 // valid iff HardAffinity
	HardCCallDepth  int32 // valid iff HardAffinity

	CCallDepth   int32
	SavedHeapPtr uintptr
	ParallelSP   uintptr
	Mutables     []uintptr

	state contextState

	// next links this Context into whichever intrusive singly-linked
	// list currently owns it (free-list or run queue). Invariant I2
	// guarantees at most one owner at a time, so a single field
	// suffices.
	next *Context
}

// publishResume stores pp as this context's resume point with release
// semantics, observable by a concurrent busy-waiter.
func (c *Context) publishResume(pp ProgramPoint) {
	c.resumeBox.Store(&pp)
}

// loadResume reads back a published resume point, if any.
func (c *Context) loadResume() (ProgramPoint, bool) {
	p := c.resumeBox.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// takeResume atomically reads and clears the published resume point.
func (c *Context) takeResume() (ProgramPoint, bool) {
	p := c.resumeBox.Swap(nil)
	if p == nil {
		return nil, false
	}
	return *p, true
}

func (c *Context) clearResume() { c.resumeBox.Store(nil) }

// reset clears a context back to free-list shape: empty stacks (here,
// zeroed size accounting) and no previous-stack chain.
func (c *Context) reset() {
	c.clearResume()
	c.Stacks = StackSizes{}
	c.Gen = nil
	c.PreferredEngine = -1
	c.HardAffinity = false
	c.HardEngine = 0
	c.HardCCallDepth = 0
	c.CCallDepth = 0
	c.SavedHeapPtr = 0
	c.ParallelSP = 0
	c.Mutables = nil
	c.next = nil
}

// ContextPool is the per-size-class free-list allocator of spec §4.A:
// two free-lists guarded by a single mutex. Create dequeues a REGULAR
// context to satisfy a SMALL request when the SMALL list is empty;
// never the reverse.
type ContextPool struct {
	mu        sync.Mutex
	freeSmall *Context
	freeReg   *Context
	nextID    uint64
}

func NewContextPool() *ContextPool {
	return &ContextPool{}
}

// popFree pops off the given free-list head (caller holds mu).
func popFree(head **Context) *Context {
	c := *head
	if c == nil {
		return nil
	}
	*head = c.next
	c.next = nil
	return c
}

// Create allocates (or recycles) a context of the requested size
// class. A REGULAR context may satisfy a SMALL request. Allocation
// failure is fatal per spec §4.A/§7 — callers that hit an out-of-memory
// condition from the underlying allocator should treat it as a bug,
// not a recoverable error; this pool has no such path since it never
// allocates real stack memory (out of scope), so "allocate" here just
// means constructing a fresh *Context.
// Create returns (context, reused): reused is true when an existing
// free-listed context was recycled rather than freshly allocated —
// callers use it purely for profiling (spec §6 context-reuse/kept
// counters).
func (p *ContextPool) Create(size SizeClass, sizes StackSizes, gen Generator, label string) (*Context, bool) {
	p.mu.Lock()
	var c *Context
	switch size {
	case SizeSmall:
		if c = popFree(&p.freeSmall); c == nil {
			c = popFree(&p.freeReg)
		}
	case SizeRegular:
		c = popFree(&p.freeReg)
	}
	reused := c != nil
	if c == nil {
		p.nextID++
		c = &Context{ID: p.nextID, Size: size}
	}
	p.mu.Unlock()

	c.reset()
	c.Stacks = sizes
	c.Gen = gen
	c.DebugLabel = label
	c.PreferredEngine = -1
	c.state = stateRunning
	return c, reused
}

// Destroy asserts the context is clean (not mid-suspend) and returns
// it to the free-list matching its allocated size class, recording the
// supplied engine as its preferred engine while it sits on the
// free-list (spec §4.A). Create resets the preference to -1 when the
// context is reused.
func (p *ContextPool) Destroy(c *Context, currentEngine int32) {
	if _, suspended := c.loadResume(); suspended {
		panic("mercury: destroy of a context suspended at a join")
	}
	c.reset()
	c.PreferredEngine = currentEngine
	c.state = stateFree

	p.mu.Lock()
	switch c.Size {
	case SizeSmall:
		c.next = p.freeSmall
		p.freeSmall = c
	case SizeRegular:
		c.next = p.freeReg
		p.freeReg = c
	}
	p.mu.Unlock()
}

// atomicCounter is a thin wrapper around sync/atomic used for every
// plain counter in spec §5 ("Atomic counters ... use individual atomic
// read-modify-write operations"): outstanding contexts, idle engines,
// next context id.
type atomicCounter struct{ n int64 }

func (a *atomicCounter) inc() int64  { return atomic.AddInt64(&a.n, 1) }
func (a *atomicCounter) dec() int64  { return atomic.AddInt64(&a.n, -1) }
func (a *atomicCounter) load() int64 { return atomic.LoadInt64(&a.n) }
