package mercury

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPinThreadSkipsPrimordialCPU covers spec §4.G: round-robin
// assignment must never hand out the CPU already claimed by the
// primordial engine, as long as more than one CPU is available.
func TestPinThreadSkipsPrimordialCPU(t *testing.T) {
	if runtime.NumCPU() < 2 {
		t.Skip("requires at least two logical CPUs")
	}
	rt := newTestRuntime(t, 1)
	rt.cfg.EnablePinning = false // avoid requiring sched_setaffinity privileges in CI
	rt.primordialCPU.Store(0)

	for i := 0; i < 8; i++ {
		cpu := rt.PinThread()
		assert.NotEqual(t, int32(0), cpu, "PinThread must never assign the primordial's CPU")
	}
}

// TestPinThreadSingleCPUDoesNotHang checks that PinThread returns while
// the primordial CPU is claimed. On a machine with one logical CPU this
// is the numCPU==1 boundary, where the skip condition can never be
// satisfied and is relaxed rather than looping forever.
func TestPinThreadSingleCPUDoesNotHang(t *testing.T) {
	rt := newTestRuntime(t, 1)
	rt.cfg.EnablePinning = false
	rt.primordialCPU.Store(0)

	done := make(chan int32, 1)
	go func() { done <- rt.PinThread() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PinThread did not return")
	}
}

// TestPinPrimordialThreadRecordsCPU checks that, with pinning disabled,
// PinPrimordialThread still returns the current CPU and records it as
// the primordial CPU.
func TestPinPrimordialThreadRecordsCPU(t *testing.T) {
	rt := newTestRuntime(t, 1)
	rt.cfg.EnablePinning = false

	cpu := rt.PinPrimordialThread()
	assert.GreaterOrEqual(t, cpu, int32(0))
	assert.Equal(t, cpu, rt.primordialCPU.Load())
}
