package mercury

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinPrimordialThread implements pin_primordial_thread (spec §6): when
// pinning is enabled, pins the calling OS thread (the primordial engine)
// to whatever CPU it is currently scheduled on; in either case it
// records and returns that CPU number so it can be
// excluded from the round-robin assignment given to subsequent
// engines (spec §4.G).
//
// sched_setaffinity is a per-thread syscall on Linux, so the caller
// must have already arranged to stay on one OS thread; this locks it
// via runtime.LockOSThread (grounded on the CPU set handling in
// other_examples' aktau/perflock, which likewise drives unix.CPUSet
// directly rather than through a higher-level wrapper).
func (rt *Runtime) PinPrimordialThread() int32 {
	runtime.LockOSThread()

	cpu, err := unix.SchedGetcpu()
	if err != nil {
		rt.log.Warn().Err(err).Msg("mercury: sched_getcpu failed, disabling thread pinning")
		rt.pinningDisabled.Store(true)
		return -1
	}

	if rt.cfg.EnablePinning {
		var set unix.CPUSet
		set.Set(cpu)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			rt.log.Warn().Err(err).Msg("mercury: sched_setaffinity failed, disabling thread pinning")
			rt.pinningDisabled.Store(true)
		}
	}
	rt.primordialCPU.Store(int32(cpu))
	return int32(cpu)
}

// PinThread implements pin_thread (spec §6): assigns the next
// round-robin CPU (skipping the primordial CPU, once known) to the
// calling engine goroutine's OS thread and, if pinning is enabled and
// has not already failed once, pins it there. Returns the assigned
// logical CPU id regardless of whether the pin syscall succeeded —
// pinning failure demotes to disabled but the logical assignment is
// retained (spec §7).
func (rt *Runtime) PinThread() int32 {
	runtime.LockOSThread()

	numCPU := int32(runtime.NumCPU())
	var cpu int32
	for {
		cpu = rt.nextCPU.Add(1) % numCPU
		if cpu != rt.primordialCPU.Load() || numCPU == 1 {
			break
		}
	}

	if rt.cfg.EnablePinning && !rt.pinningDisabled.Load() {
		var set unix.CPUSet
		set.Set(int(cpu))
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			rt.log.Warn().Err(err).Int32("cpu", cpu).Msg("mercury: sched_setaffinity failed, disabling thread pinning")
			rt.pinningDisabled.Store(true)
		}
	}
	return cpu
}
