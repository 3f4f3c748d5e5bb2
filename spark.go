package mercury

import "sync/atomic"

// SyncTerm is the join barrier of one parallel conjunction: an atomic
// remaining-conjunct count, plus a non-owning reference to the
// originating context (valid by construction — the originator cannot
// be destroyed until this count reaches zero, per spec §9's
// cyclic-reference note).
type SyncTerm struct {
	remaining int32
	Origin    *Context
	ParentSP  uintptr
}

// NewSyncTerm initializes a join barrier for n parallel conjuncts.
func NewSyncTerm(n int32, origin *Context, parentSP uintptr) *SyncTerm {
	return &SyncTerm{remaining: n, Origin: origin, ParentSP: parentSP}
}

// decrement atomically decrements the remaining count and reports
// whether this decrement produced zero (the caller is "last").
func (s *SyncTerm) decrement() (last bool) {
	return atomic.AddInt32(&s.remaining, -1) == 0
}

// Remaining reads the current count. Diagnostic use only — invariant
// I4 (count > 0 whenever a spark referencing this term is live) is
// not enforceable purely by reading this value after the fact.
func (s *SyncTerm) Remaining() int32 {
	return atomic.LoadInt32(&s.remaining)
}

// Spark is a reference to a parallel conjunct not yet started: a
// resume point, the parent sync-term, a snapshot of the parent's
// parallel-stack pointer, and a snapshot of the thread-local mutable
// vector at fork time. Sparks are plain values copied between deques
// (spec §3).
type Spark struct {
	Resume   ProgramPoint
	Origin   *SyncTerm
	ParentSP uintptr
	Mutables []uintptr
}

func (s Spark) isZero() bool {
	return s.Resume == nil && s.Origin == nil
}
