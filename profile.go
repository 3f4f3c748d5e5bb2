package mercury

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

// profiler accumulates the counters named in spec §6's optional
// persisted artefact. All counters are plain atomics; profiler itself
// holds no lock, since every increment happens on an engine's own
// hot path and must stay wait-free.
type profiler struct {
	enabled bool

	globalSparksExecuted int64
	contextsResumed      int64
	executedNothing      int64
	localSparksExecuted  int64

	contextsCreatedForSparks int64

	// reuse/kept events, indexed by SizeClass.
	reuseEvents [2]int64
	keptEvents  [2]int64
}

func newProfiler(enabled bool) *profiler {
	return &profiler{enabled: enabled}
}

func (p *profiler) recordGlobalSpark() {
	if p.enabled {
		atomic.AddInt64(&p.globalSparksExecuted, 1)
	}
}

func (p *profiler) recordLocalSpark() {
	if p.enabled {
		atomic.AddInt64(&p.localSparksExecuted, 1)
	}
}

func (p *profiler) recordContextResumed() {
	if p.enabled {
		atomic.AddInt64(&p.contextsResumed, 1)
	}
}

func (p *profiler) recordExecutedNothing() {
	if p.enabled {
		atomic.AddInt64(&p.executedNothing, 1)
	}
}

func (p *profiler) recordContextCreatedForSpark() {
	if p.enabled {
		atomic.AddInt64(&p.contextsCreatedForSparks, 1)
	}
}

func (p *profiler) recordReuse(size SizeClass) {
	if p.enabled {
		atomic.AddInt64(&p.reuseEvents[size], 1)
	}
}

func (p *profiler) recordKept(size SizeClass) {
	if p.enabled {
		atomic.AddInt64(&p.keptEvents[size], 1)
	}
}

// Report renders the plain-text counter dump described in spec §6,
// plus the idle-engine and outstanding-context counters SPEC_FULL.md
// §C.3 adds to the persisted artefact. idleEngines/outstanding are
// read from the runtime's atomic counters by the caller and passed in
// rather than referenced directly, so profiler stays a self-contained
// counter bank with no back-reference to Runtime. Downstream tools
// treat this as free-form text, so the exact layout is not a
// stability contract, only the presence of each named counter.
func (p *profiler) Report(idleEngines, outstanding int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "global_sparks_executed: count %d\n", atomic.LoadInt64(&p.globalSparksExecuted))
	fmt.Fprintf(&b, "contexts_resumed: count %d\n", atomic.LoadInt64(&p.contextsResumed))
	fmt.Fprintf(&b, "executed_nothing: count %d\n", atomic.LoadInt64(&p.executedNothing))
	fmt.Fprintf(&b, "local_sparks_executed: count %d\n", atomic.LoadInt64(&p.localSparksExecuted))
	fmt.Fprintf(&b, "contexts_created_for_sparks: count %d\n", atomic.LoadInt64(&p.contextsCreatedForSparks))
	for _, sc := range []SizeClass{SizeSmall, SizeRegular} {
		fmt.Fprintf(&b, "context_reuse[%s]: count %d\n", sc, atomic.LoadInt64(&p.reuseEvents[sc]))
		fmt.Fprintf(&b, "context_kept[%s]: count %d\n", sc, atomic.LoadInt64(&p.keptEvents[sc]))
	}
	fmt.Fprintf(&b, "idle_engines: count %d\n", idleEngines)
	fmt.Fprintf(&b, "outstanding_contexts: count %d\n", outstanding)
	return b.String()
}

// writeReport writes the report to path if profiling is enabled. A
// disabled profiler writes nothing, per spec §6 ("when ... profiling
// is enabled").
func (p *profiler) writeReport(path string, idleEngines, outstanding int64) error {
	if !p.enabled {
		return nil
	}
	return os.WriteFile(path, []byte(p.Report(idleEngines, outstanding)), 0o644)
}
