package mercury

// Engine is one worker: a goroutine running the idle-loop state machine
// of spec §4.E over its own spark deque, the global run queue, and
// theft from sibling engines. Engine 0 is the primordial engine: it is
// never targeted by the SHUTDOWN wake action (§4.G); its sleep path
// also watches the runtime's doneCh so FinalizeRuntime can stop it
// directly.
type Engine struct {
	ID  int32
	rt  *Runtime
	cpu int32

	deque *SparkDeque
	sync  *engineSync

	// current is the context this engine is driving, or nil ("clean").
	// currentTerm is the sync-term current is pinned to while dirty, or
	// nil if current is unpinned (a context run inline rather than
	// picked up to satisfy a spark). Both fields are owned exclusively
	// by this engine's goroutine.
	current     *Context
	currentTerm *SyncTerm

	// victim is this engine's starting point into the sibling deque
	// array on the next theft attempt (§4.E "victim_counter").
	victim int32

	// ccallDepth models nested C-call depth (spec §3/I3) as Go call
	// stack depth: incremented each time a join recurses into a fresh
	// idle loop without returning to the caller's frame.
	ccallDepth int32
}

func newEngine(id int32, rt *Runtime, dequeCapacity int64, cpu int32) *Engine {
	return &Engine{
		ID:    id,
		rt:    rt,
		cpu:   cpu,
		deque: NewSparkDeque(dequeCapacity),
		sync:  newEngineSync(),
	}
}

// SubmitSpark implements submit_spark (spec §6): pushes onto the
// calling engine's own deque bottom, then nudges one sleeping sibling
// to come steal it rather than waiting for it to wake on its own.
func (e *Engine) SubmitSpark(s Spark) {
	e.deque.PushBottom(s)
	e.rt.tryWakeAny(e.ID+1, actionWorksteal, nil, e.ID, e.ID)
}

// Run is the engine's top-level driving loop: repeatedly enter the
// generic idle loop until told to shut down. Work found and executed
// within a single idleInitial call may itself recurse (through joins)
// arbitrarily deep before returning here.
func (e *Engine) Run() {
	for {
		out := e.idleInitial()
		if out.Shutdown {
			return
		}
	}
}

// advertiseIdle publishes WORKING -> IDLE and accounts for it in the
// runtime's idle-engine counter (spec §5, invariant 3).
func (e *Engine) advertiseIdle() {
	e.sync.advertiseIdle()
	e.rt.idleEngines.inc()
}

// advertiseWorking is the inverse of advertiseIdle, called exactly
// once per transition back out of IDLE/SLEEPING/WOKEN.
func (e *Engine) advertiseWorking() {
	e.rt.idleEngines.dec()
	e.sync.advertiseWorking()
}

// idleInitial is the generic entry point (spec §4.E table): local
// spark, advertise idle, get context, work-steal, sleep.
func (e *Engine) idleInitial() Outcome {
	if out, ok := e.tryLocalSpark(nil); ok {
		return out
	}
	e.advertiseIdle()
	if out, ok := e.tryGetContext(); ok {
		e.advertiseWorking()
		return out
	}
	if out, ok := e.tryWorkSteal(nil); ok {
		e.advertiseWorking()
		return out
	}
	return e.sleepAndDispatch()
}

// idleClean is entered holding no context: local spark, advertise
// idle, work-steal, get context, sleep. Theft is preferred over the
// run queue here because a clean engine has nothing at stake; pulling
// a queued context onto the wrong engine wastes its affinity.
func (e *Engine) idleClean() Outcome {
	if out, ok := e.tryLocalSpark(nil); ok {
		return out
	}
	e.advertiseIdle()
	if out, ok := e.tryWorkSteal(nil); ok {
		e.advertiseWorking()
		return out
	}
	if out, ok := e.tryGetContext(); ok {
		e.advertiseWorking()
		return out
	}
	return e.sleepAndDispatch()
}

// idleDirty is entered holding a context pinned to joinLabel: local
// spark (join-compatible reuse allowed), advertise idle, work-steal,
// save-dirty-context, get context, sleep. The held context is only
// given up after theft has had a chance to find compatible work that
// can keep reusing it. Giving it up publishes joinLabel as its resume
// point and clears this engine's slot; the context is not put on the
// run queue, and the engine whose conjunct finishes last adopts it
// (JoinAndContinue).
func (e *Engine) idleDirty(joinLabel ProgramPoint) Outcome {
	if out, ok := e.tryLocalSpark(joinLabel); ok {
		return out
	}
	e.advertiseIdle()
	if out, ok := e.tryWorkSteal(joinLabel); ok {
		e.advertiseWorking()
		return out
	}
	e.saveDirtyContext(joinLabel)
	if out, ok := e.tryGetContext(); ok {
		e.advertiseWorking()
		return out
	}
	return e.sleepAndDispatch()
}

// tryLocalSpark pops the engine's own deque bottom and, if non-empty,
// executes it.
func (e *Engine) tryLocalSpark(joinLabel ProgramPoint) (Outcome, bool) {
	spark, ok := e.deque.PopBottom()
	if !ok {
		return Outcome{}, false
	}
	e.recordSparkOrigin(false)
	return e.executeLocalSpark(spark, joinLabel), true
}

// tryGetContext dequeues a context from the global run queue, if any,
// preferring this engine's affinity matches (spec §4.C), and resumes
// it: at its saved resume point if it has one, else at its generator.
func (e *Engine) tryGetContext() (Outcome, bool) {
	ctx := e.rt.runq.DequeueFor(e.ID, e.ccallDepth)
	if ctx == nil {
		return Outcome{}, false
	}
	e.current = ctx
	e.currentTerm = nil
	e.rt.profiler.recordContextResumed()
	if resume, ok := ctx.takeResume(); ok {
		return e.resumeCurrent(resume), true
	}
	gen := ctx.Gen
	return e.resumeCurrent(func(en *Engine) Outcome { return gen(en, ctx) }), true
}

// tryWorkSteal attempts to steal a spark from a sibling deque,
// starting at e.victim and wrapping around, skipping itself. Honours
// the outstanding-context cap: a clean engine may not steal if doing
// so would need a new context and the cap is already reached (spec
// §4.E).
func (e *Engine) tryWorkSteal(joinLabel ProgramPoint) (Outcome, bool) {
	if e.current == nil && e.rt.outstanding.load() >= int64(e.rt.cfg.MaxOutstandingContexts) {
		return Outcome{}, false
	}
	n := int32(len(e.rt.engines))
	if n <= 1 {
		return Outcome{}, false
	}
	for i := int32(0); i < n; i++ {
		victim := (e.victim + i) % n
		if victim == e.ID {
			continue
		}
		spark, res := e.rt.engines[int(victim)].deque.StealTop()
		if res != stealOK {
			continue
		}
		e.victim = (victim + 1) % n
		e.recordSparkOrigin(true)
		return e.executeLocalSpark(spark, joinLabel), true
	}
	return Outcome{}, false
}

// executeLocalSpark implements spec §4.E "Executing a local spark": if
// the engine holds a context pinned to a different sync-term than the
// spark's, that context must first be saved with joinLabel and
// detached; then, if the engine holds no context at all, a fresh
// spark-sized one is created. The spark's parallel stack pointer and
// mutables are loaded and execution jumps to the spark's resume point.
func (e *Engine) executeLocalSpark(spark Spark, joinLabel ProgramPoint) Outcome {
	if e.current != nil && e.currentTerm != spark.Origin {
		if joinLabel == nil {
			e.rt.log.Fatal().Msg("mercury: engine holds a pinned context outside a dirty idle loop")
		}
		e.saveDirtyContext(joinLabel)
	}
	if e.current == nil {
		var reused bool
		e.current, reused = e.rt.pool.Create(SizeSmall, e.rt.cfg.StackSizes, nil, "spark")
		e.rt.outstanding.inc()
		e.rt.profiler.recordContextCreatedForSpark()
		if reused {
			e.rt.profiler.recordReuse(e.current.Size)
		}
	} else {
		e.rt.profiler.recordKept(e.current.Size)
	}
	e.current.ParallelSP = spark.ParentSP
	e.current.Mutables = spark.Mutables
	e.currentTerm = spark.Origin
	return e.resumeCurrent(spark.Resume)
}

// recordSparkOrigin tags a spark execution as local (popped from the
// engine's own bottom) or global (won by theft), for profiling.
func (e *Engine) recordSparkOrigin(stolen bool) {
	if stolen {
		e.rt.profiler.recordGlobalSpark()
	} else {
		e.rt.profiler.recordLocalSpark()
	}
}

// saveDirtyContext implements spec §4.F save_dirty_context: record the
// current engine as preferred, publish joinLabel as the resume point
// (the release this establishes is what a foreign busy-waiter in
// JoinAndContinue observes), then clear the engine's context slot.
func (e *Engine) saveDirtyContext(joinLabel ProgramPoint) {
	c := e.current
	c.PreferredEngine = e.ID
	c.publishResume(joinLabel)
	e.current = nil
	e.currentTerm = nil
}

// resumeCurrent invokes pp and, if it reports the driven context as
// finished, destroys it and accounts for the outstanding-context
// count.
func (e *Engine) resumeCurrent(pp ProgramPoint) Outcome {
	out := pp(e)
	if out.ContextDone {
		e.rt.DestroyContext(e.current, e.ID)
		e.current = nil
		e.currentTerm = nil
	}
	return out
}

// sleepAndDispatch implements the SLEEPING arm of spec §4.D together
// with the wake dispatch of §4.E: publish SLEEPING, block on the sleep
// semaphore, then act on whatever the waker deposited. Engine 0 also
// watches the runtime's doneCh, since it is never reachable through
// the SHUTDOWN wake action (§4.G: "engine 0 never takes this path").
func (e *Engine) sleepAndDispatch() Outcome {
	e.rt.profiler.recordExecutedNothing()
	if e.ID == 0 {
		// Engine 0 can't use engineSync.goToSleep's plain wait(): it must
		// also watch doneCh, since SHUTDOWN never reaches it.
		e.sync.storeState(stateSleeping)
		select {
		case <-e.sync.sleepSem:
		case <-e.rt.doneCh:
			return Outcome{Shutdown: true}
		}
	} else {
		e.sync.goToSleep()
	}

	action, ctxPayload, victim := e.sync.takeAction()
	switch action {
	case actionContext:
		e.advertiseWorking()
		e.current = ctxPayload
		e.currentTerm = nil
		e.rt.profiler.recordContextResumed()
		if resume, ok := ctxPayload.takeResume(); ok {
			return e.resumeCurrent(resume)
		}
		gen := ctxPayload.Gen
		return e.resumeCurrent(func(en *Engine) Outcome { return gen(en, ctxPayload) })

	case actionWorksteal:
		e.advertiseWorking()
		e.victim = victim
		if out, ok := e.tryWorkSteal(nil); ok {
			return out
		}
		if out, ok := e.tryGetContext(); ok {
			return out
		}
		return e.idleClean()

	case actionShutdown:
		e.rt.idleEngines.dec()
		e.rt.shutdownWG.Done()
		return Outcome{Shutdown: true}

	default: // actionNone
		e.advertiseWorking()
		return e.idleClean()
	}
}
