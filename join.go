package mercury

import "runtime"

// JoinAndContinue implements spec §4.F: the barrier at the end of a
// parallel conjunct. Decrements term's remaining count; the decision
// of who runs the continuation, and whether this engine keeps, loses,
// or takes over a context, follows from whether this engine is
// currently driving term's originating context and whether this
// decrement was the last.
func (e *Engine) JoinAndContinue(term *SyncTerm, joinLabel ProgramPoint) Outcome {
	last := term.decrement()

	if e.current == term.Origin {
		if last {
			// Continuation runs in the same context: no idle-loop
			// round trip needed.
			return e.resumeCurrent(joinLabel)
		}
		// Not last: this context must be kept alive until the join
		// completes elsewhere. Enter the dirty idle loop pinned to
		// joinLabel; recursing one C-call level deeper.
		e.ccallDepth++
		defer func() { e.ccallDepth-- }()
		return e.idleDirty(joinLabel)
	}

	// Foreign context: this conjunct ran under a context forked off by
	// a spark, distinct from term's originator.
	if last {
		// The originator is suspended at this very join (or about to
		// be — case 2's !last branch may still be mid-save_dirty_context
		// on another engine). Busy-wait for it to publish its resume
		// pointer, then adopt its context and jump to the join label.
		origin := term.Origin
		var resume ProgramPoint
		for {
			if r, ok := origin.takeResume(); ok {
				resume = r
				break
			}
			runtime.Gosched()
		}
		// This engine's own context has nothing left to do for this
		// conjunction (its conjunct just finished and was the last); it
		// must be destroyed before the originator's context is installed
		// in its place, or it leaks out of rt.outstanding forever
		// (mirrors MR_destroy_context in the original's
		// prepare_engine_for_context before MR_ENGINE(context) is
		// overwritten).
		e.rt.DestroyContext(e.current, e.ID)
		e.current = origin
		e.currentTerm = nil
		return e.resumeCurrent(resume)
	}

	// Not last, and not the originator: this engine has nothing left
	// to do for this conjunction. Enter the clean idle loop.
	e.ccallDepth++
	defer func() { e.ccallDepth-- }()
	return e.idleClean()
}
