package mercury

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRuntime builds a Runtime with n engines wired together but
// without spawning goroutines or touching CPU affinity, so unit tests
// can drive individual engines deterministically. Tests that need
// running workers spawn rt.engines[i].Run() themselves.
func newTestRuntime(t *testing.T, n int) *Runtime {
	t.Helper()
	rt := &Runtime{
		cfg:      DefaultConfig(),
		log:      zerolog.Nop(),
		pool:     NewContextPool(),
		runq:     NewRunQueue(),
		profiler: newProfiler(false),
		doneCh:   make(chan struct{}),
	}
	rt.pendingIO = newPendingIOList(rt)
	rt.primordialCPU.Store(-1)
	rt.engines = make([]*Engine, n)
	for i := range rt.engines {
		rt.engines[i] = newEngine(int32(i), rt, 8, -1)
	}
	return rt
}

// TestScheduleContextWakesSleepingOverIdleAndWorking covers spec
// scenario S2: try_wake_any only ever wakes a SLEEPING engine, skipping
// IDLE and WORKING ones even when they are probed first.
func TestScheduleContextWakesSleepingOverIdleAndWorking(t *testing.T) {
	rt := newTestRuntime(t, 4)
	rt.engines[1].sync.storeState(stateSleeping)
	rt.engines[2].sync.storeState(stateIdle)
	rt.engines[3].sync.storeState(stateWorking)

	c := &Context{PreferredEngine: 2}
	rt.ScheduleContext(c)

	assert.Equal(t, stateWoken, rt.engines[1].sync.loadState())
	assert.True(t, rt.runq.Empty(), "a directly-woken context must never enter the run queue")

	action, payload, _ := rt.engines[1].sync.takeAction()
	assert.Equal(t, actionContext, action)
	assert.Same(t, c, payload)
}

// TestScheduleContextHardAffinityFallsBackToRunQueue covers scenario
// S3: a hard-affinity context whose engine is WORKING cannot be woken
// directly, so it is appended to the run queue instead, reachable only
// by its exact engine/depth.
func TestScheduleContextHardAffinityFallsBackToRunQueue(t *testing.T) {
	rt := newTestRuntime(t, 4)
	rt.engines[3].sync.storeState(stateWorking)

	c := &Context{HardAffinity: true, HardEngine: 3, HardCCallDepth: 2, PreferredEngine: -1}
	rt.ScheduleContext(c)

	assert.Equal(t, stateWorking, rt.engines[3].sync.loadState())
	require.False(t, rt.runq.Empty())

	assert.Nil(t, rt.runq.DequeueFor(0, 0), "no other engine may dequeue a hard-affinity context")
	got := rt.runq.DequeueFor(3, 2)
	require.NotNil(t, got)
	assert.Same(t, c, got)
}

func TestScheduleContextHardAffinityDirectWakeWhenIdle(t *testing.T) {
	rt := newTestRuntime(t, 2)
	rt.engines[1].sync.storeState(stateIdle)

	c := &Context{HardAffinity: true, HardEngine: 1, PreferredEngine: -1}
	rt.ScheduleContext(c)

	assert.Equal(t, stateWoken, rt.engines[1].sync.loadState())
	assert.True(t, rt.runq.Empty())
}

// TestShutdownAllEnginesNoopSingleEngine covers spec scenario S5's
// boundary: shutdown with only the primordial engine is a no-op.
func TestShutdownAllEnginesNoopSingleEngine(t *testing.T) {
	rt := newTestRuntime(t, 1)
	rt.ShutdownAllEngines()
}

func TestFinalizeRuntimeSingleEngineNoProfiling(t *testing.T) {
	rt := newTestRuntime(t, 1)
	err := rt.FinalizeRuntime()
	assert.NoError(t, err)
}

// TestShutdownAllEnginesWakesRunningWorkers covers spec scenario S5
// with real workers: engines 1..N-1 run to SLEEPING on their own, then
// the shutdown broadcast wakes and retires each of them.
func TestShutdownAllEnginesWakesRunningWorkers(t *testing.T) {
	rt := newTestRuntime(t, 3)
	for i := 1; i < 3; i++ {
		go rt.engines[i].Run()
	}
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		rt.ShutdownAllEngines()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownAllEngines did not return; a worker never acknowledged SHUTDOWN")
	}
}

func TestCreateDestroyContextTracksOutstanding(t *testing.T) {
	rt := newTestRuntime(t, 1)
	c := rt.CreateContext("x", SizeSmall, nil)
	assert.EqualValues(t, 1, rt.outstanding.load())

	rt.DestroyContext(c, 0)
	assert.EqualValues(t, 0, rt.outstanding.load())
}

func TestInitRuntimeRejectsZeroEngines(t *testing.T) {
	_, err := InitRuntime(WithEngines(0))
	assert.Error(t, err)
}
