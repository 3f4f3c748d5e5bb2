package mercury

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Runtime is the single process-global handle owning every piece of
// shared state (spec §9 "Global mutable state"): the context pool, the
// run queue, the pending-IO list, the engine array, and the atomic
// counters invariant 3 quantifies over. All interior mutability is at
// mutex/atomic granularity; nothing here uses ambient package-level
// state.
type Runtime struct {
	cfg Config
	log zerolog.Logger

	pool      *ContextPool
	runq      *RunQueue
	pendingIO *PendingIOList
	profiler  *profiler

	engines []*Engine

	idleEngines atomicCounter
	outstanding atomicCounter

	nextCPU         atomic.Int32
	primordialCPU   atomic.Int32
	pinningDisabled atomic.Bool

	shutdownWG sync.WaitGroup
	doneCh     chan struct{}
}

// InitRuntime implements init_runtime (spec §6): builds the runtime
// handle and starts every non-primordial engine as its own goroutine.
// Engine 0 is left unstarted — the caller drives it by calling
// RunPrimordial, conventionally from the same goroutine that called
// InitRuntime (spec §4.G: the primordial thread is whatever OS thread
// the runtime was brought up on).
func InitRuntime(opts ...Option) (*Runtime, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.NumEngines < 1 {
		return nil, fmt.Errorf("mercury: NumEngines must be >= 1, got %d", cfg.NumEngines)
	}

	rt := &Runtime{
		cfg:      cfg,
		log:      zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger(),
		pool:     NewContextPool(),
		runq:     NewRunQueue(),
		profiler: newProfiler(cfg.EnableProfiling),
		doneCh:   make(chan struct{}),
	}
	rt.pendingIO = newPendingIOList(rt)
	rt.primordialCPU.Store(-1)

	dequeCapacity := int64(cfg.DequeLengthFactor) * 32

	rt.engines = make([]*Engine, cfg.NumEngines)
	for i := range rt.engines {
		rt.engines[i] = newEngine(int32(i), rt, dequeCapacity, -1)
	}

	for i := 1; i < cfg.NumEngines; i++ {
		e := rt.engines[i]
		go func() {
			e.cpu = rt.PinThread()
			e.Run()
		}()
	}

	return rt, nil
}

// RunPrimordial pins the calling thread and drives engine 0's idle
// loop until ShutdownAllEngines/FinalizeRuntime releases it. Blocks.
func (rt *Runtime) RunPrimordial() {
	rt.engines[0].cpu = rt.PinPrimordialThread()
	rt.engines[0].Run()
}

// CreateContext implements create_context (spec §6): recycle or
// allocate a context from the pool and count it against the
// outstanding-context cap used by the work-steal admission check
// (spec §4.E).
func (rt *Runtime) CreateContext(label string, size SizeClass, gen Generator) *Context {
	c, reused := rt.pool.Create(size, rt.cfg.StackSizes, gen, label)
	rt.outstanding.inc()
	if reused {
		rt.profiler.recordReuse(c.Size)
	}
	return c
}

// DestroyContext implements destroy_context (spec §6).
func (rt *Runtime) DestroyContext(c *Context, currentEngine int32) {
	rt.pool.Destroy(c, currentEngine)
	rt.outstanding.dec()
}

// tryWakeAny implements try_wake_any (spec §4.D): iterate engines
// starting at preferredID, optionally skipping skipID (-1 to skip
// none), waking the first one observed in stateSleeping.
func (rt *Runtime) tryWakeAny(preferredID int32, action wakeAction, ctxPayload *Context, victimHint int32, skipID int32) bool {
	n := int32(len(rt.engines))
	for i := int32(0); i < n; i++ {
		id := (preferredID + i) % n
		if id == skipID {
			continue
		}
		if rt.engines[int(id)].sync.tryWakeEngine(action, ctxPayload, victimHint, stateSleeping) {
			return true
		}
	}
	return false
}

// ScheduleContext implements schedule_context (spec §6). Hard-affinity
// contexts are targeted exactly at their recorded engine (allowing
// IDLE as well as SLEEPING, since there is no risk of a duplicate
// delivery with a single specific target); anything else tries the
// preferred engine first via try_wake_any, falling back to the global
// run queue. A direct wake always takes priority over enqueueing: a
// context handed to try_wake_any is delivered straight to an engine
// and never touches the run queue (spec scenario S2).
func (rt *Runtime) ScheduleContext(c *Context) {
	if c.HardAffinity {
		if rt.engines[int(c.HardEngine)].sync.tryWakeEngine(actionContext, c, 0, stateIdle|stateSleeping) {
			return
		}
		rt.runq.Enqueue(c)
		return
	}

	preferred := c.PreferredEngine
	if preferred < 0 {
		preferred = 0
	}
	if rt.tryWakeAny(preferred, actionContext, c, 0, -1) {
		return
	}
	rt.runq.Enqueue(c)
}

// RegisterPendingIO implements register_pending_io (spec §6).
func (rt *Runtime) RegisterPendingIO(c *Context, fd int, mode IOMode) {
	rt.pendingIO.Register(c, fd, mode)
}

// PollPendingIO implements poll_pending_io (spec §6).
func (rt *Runtime) PollPendingIO(blocking bool) int {
	return rt.pendingIO.Poll(blocking)
}

// ShutdownAllEngines implements shutdown_all_engines (spec §6 / §4.G):
// the primordial engine wakes every non-primordial engine with
// SHUTDOWN (targeting any state, since WOKEN must also be reachable),
// then waits for each to acknowledge. A single-engine runtime (only
// the primordial exists) is a no-op (spec scenario S5 boundary).
func (rt *Runtime) ShutdownAllEngines() {
	n := len(rt.engines)
	if n <= 1 {
		return
	}
	rt.shutdownWG.Add(n - 1)
	for i := 1; i < n; i++ {
		rt.engines[i].sync.tryWakeEngine(actionShutdown, nil, 0, allStates)
	}
	rt.shutdownWG.Wait()
}

// FinalizeRuntime implements finalize_runtime (spec §6): shuts down
// every non-primordial engine, then releases engine 0 from
// RunPrimordial by closing doneCh, and finally writes the profiling
// report if enabled. Callers must not call ScheduleContext/SubmitSpark
// concurrently with or after FinalizeRuntime.
func (rt *Runtime) FinalizeRuntime() error {
	rt.ShutdownAllEngines()
	close(rt.doneCh)
	return rt.profiler.writeReport(rt.cfg.ProfilePath, rt.idleEngines.load(), rt.outstanding.load())
}
