package mercury

import (
	"sync"
	"sync/atomic"
)

// engineState is a bitmask so a single allowedStates parameter can
// describe a set of states (spec §9 "Bitmask state" design note) —
// shutdown, in particular, must be deliverable to an engine in *any*
// state, including WOKEN.
type engineState int32

const (
	stateWorking  engineState = 1 << iota
	stateIdle
	stateSleeping
	stateWoken
)

const allStates = stateWorking | stateIdle | stateSleeping | stateWoken

func (s engineState) String() string {
	switch s {
	case stateWorking:
		return "WORKING"
	case stateIdle:
		return "IDLE"
	case stateSleeping:
		return "SLEEPING"
	case stateWoken:
		return "WOKEN"
	default:
		return "MIXED"
	}
}

// wakeAction is the action payload delivered to a woken engine.
type wakeAction int32

const (
	actionNone wakeAction = iota
	actionContext
	actionWorksteal
	actionShutdown
)

// binarySemaphore is a channel-backed binary semaphore: post()
// saturates at one pending signal, wait() blocks until signalled.
// This replaces the teacher's ThreadParker, which parked goroutines by
// linking directly into private runtime symbols (go:linkname into
// runtime.gopark/goready) — inapplicable here since engines are
// ordinary goroutines a library consumer starts, not something this
// package may reach into the runtime to reschedule. A buffered channel
// of capacity one gives the same "permission to proceed, at most one
// outstanding" semantics without unsafe linkage.
type binarySemaphore chan struct{}

func newBinarySemaphore(initiallySignalled bool) binarySemaphore {
	ch := make(binarySemaphore, 1)
	if initiallySignalled {
		ch <- struct{}{}
	}
	return ch
}

func (s binarySemaphore) post() {
	select {
	case s <- struct{}{}:
	default:
	}
}

func (s binarySemaphore) wait() {
	<-s
}

// engineSync is the per-engine sleep/wake synchronizer of spec §4.D:
// a sleep semaphore, a wake semaphore (serializing concurrent wakers),
// an atomic state, and a pending action + payload. Cache-line padded
// (per spec §9) so neighbouring engines' synchronizers never share a
// line.
type engineSync struct {
	_pad0 cacheLinePad

	state int32 // engineState, atomic

	_pad1 cacheLinePad

	action        int32 // wakeAction, atomic
	payloadCtx    atomic.Pointer[Context]
	payloadVictim int32 // atomic

	_pad2 cacheLinePad

	sleepSem binarySemaphore
	wakeMu   sync.Mutex

	_pad3 cacheLinePad
}

func newEngineSync() *engineSync {
	return &engineSync{
		state:    int32(stateWorking),
		sleepSem: newBinarySemaphore(false),
	}
}

func (s *engineSync) loadState() engineState {
	return engineState(atomic.LoadInt32(&s.state))
}

func (s *engineSync) storeState(st engineState) {
	atomic.StoreInt32(&s.state, int32(st))
}

// tryWakeEngine implements spec §4.D's try_wake_engine: acquire the
// wake semaphore, check the current state against allowedStates under
// an acquire fence, and if it matches, publish the action/payload and
// transition to WOKEN, then post the sleep semaphore. Returns false
// (state untouched) if the engine was not in an allowed state.
func (s *engineSync) tryWakeEngine(action wakeAction, ctxPayload *Context, victimHint int32, allowedStates engineState) bool {
	s.wakeMu.Lock()
	defer s.wakeMu.Unlock()

	if s.loadState()&allowedStates == 0 {
		return false
	}
	atomic.StoreInt32(&s.action, int32(action))
	s.payloadCtx.Store(ctxPayload)
	atomic.StoreInt32(&s.payloadVictim, victimHint)
	s.storeState(stateWoken)
	s.sleepSem.post()
	return true
}

// takeAction reads back the action + payload delivered by a waker.
// Called by the engine itself after waking, before transitioning out
// of WOKEN.
func (s *engineSync) takeAction() (wakeAction, *Context, int32) {
	return wakeAction(atomic.LoadInt32(&s.action)), s.payloadCtx.Load(), atomic.LoadInt32(&s.payloadVictim)
}

// advertiseIdle publishes WORKING -> IDLE.
func (s *engineSync) advertiseIdle() { s.storeState(stateIdle) }

// advertiseWorking publishes (IDLE|SLEEPING|WOKEN) -> WORKING.
func (s *engineSync) advertiseWorking() { s.storeState(stateWorking) }

// goToSleep publishes IDLE -> SLEEPING and blocks on the sleep
// semaphore until a waker posts it. EINTR-style transient wake errors
// don't arise from a Go channel receive (the runtime, not this
// package, absorbs OS-level signal delivery), so the retry loop
// described in spec §4.D collapses to the single wait() below; the
// structure is kept so a future swap to a raw OS semaphore (e.g. for
// cross-process engines) only touches this function.
func (s *engineSync) goToSleep() {
	s.storeState(stateSleeping)
	s.sleepSem.wait()
}
