package mercury

import (
	"sync"

	"golang.org/x/sys/unix"
)

// IOMode is the wait mode a pending-IO registration is interested in.
type IOMode int

const (
	IORead IOMode = iota
	IOWrite
	IOExcept
)

// ioWaiter is one entry on the pending-IO list: a context parked
// awaiting readiness of fd in the given mode. Reuses the same
// node-chaining idiom as the free-list and run queue (list.go's
// Enqueue/Dequeue shape, mutex-guarded instead of lock-free) via its
// own next pointer, since a context on the IO list is — by invariant
// I2 — on no other list simultaneously and so cannot reuse
// Context.next (a context here has *not* completed; it's still owned
// by this waiter record, not by the free-list/run-queue machinery).
type ioWaiter struct {
	ctx  *Context
	fd   int
	mode IOMode
	next *ioWaiter
}

// PendingIOList is the external-interface pending-I/O queue of spec
// §6: the core's only contract with it is registering interest and
// polling, receiving completions back via schedule_context.
type PendingIOList struct {
	mu   sync.Mutex
	head *ioWaiter
	rt   *Runtime
}

func newPendingIOList(rt *Runtime) *PendingIOList {
	return &PendingIOList{rt: rt}
}

// Register adds ctx to the pending-IO list, awaiting fd's readiness in
// the given mode (spec §6 register_pending_io).
func (l *PendingIOList) Register(ctx *Context, fd int, mode IOMode) {
	ctx.state = statePendingIO
	w := &ioWaiter{ctx: ctx, fd: fd, mode: mode}
	l.mu.Lock()
	w.next = l.head
	l.head = w
	l.mu.Unlock()
}

// Poll implements poll_pending_io (spec §6): builds fd_sets for the
// registered waiters and calls unix.Select. Ready contexts are removed
// from the list and handed back to the runtime via schedule_context.
// Returns the number of waiters still outstanding after the call.
//
// The original runtime's select-path computed the fd_set upper bound
// with a '>' comparison where '<' was intended, and incremented the
// result before use (spec §9 Open Question). Here maxFD is the
// largest registered fd, computed with a plain '<' comparison while
// scanning, and unix.Select is given maxFD+1 exactly once, not
// incremented per fd.
func (l *PendingIOList) Poll(blocking bool) int {
	l.mu.Lock()
	if l.head == nil {
		l.mu.Unlock()
		return 0
	}
	waiters := make([]*ioWaiter, 0, 8)
	for w := l.head; w != nil; w = w.next {
		waiters = append(waiters, w)
	}
	l.mu.Unlock()

	var readFDs, writeFDs, exceptFDs unix.FdSet
	maxFD := -1
	for _, w := range waiters {
		switch w.mode {
		case IORead:
			readFDs.Set(w.fd)
		case IOWrite:
			writeFDs.Set(w.fd)
		case IOExcept:
			exceptFDs.Set(w.fd)
		}
		if w.fd > maxFD {
			maxFD = w.fd
		}
	}

	var timeout *unix.Timeval
	if !blocking {
		timeout = &unix.Timeval{Sec: 0, Usec: 0}
	}

	n, err := unix.Select(maxFD+1, &readFDs, &writeFDs, &exceptFDs, timeout)
	if err != nil {
		if err == unix.EINTR {
			return len(waiters)
		}
		l.rt.log.Fatal().Err(err).Msg("mercury: unrecoverable error polling pending I/O")
	}
	if n == 0 {
		return len(waiters)
	}

	var ready []*ioWaiter
	l.mu.Lock()
	var prev *ioWaiter
	for w := l.head; w != nil; {
		next := w.next
		fired := false
		switch w.mode {
		case IORead:
			fired = readFDs.IsSet(w.fd)
		case IOWrite:
			fired = writeFDs.IsSet(w.fd)
		case IOExcept:
			fired = exceptFDs.IsSet(w.fd)
		}
		if fired {
			if prev == nil {
				l.head = next
			} else {
				prev.next = next
			}
			w.next = nil
			ready = append(ready, w)
		} else {
			prev = w
		}
		w = next
	}
	remaining := 0
	for n := l.head; n != nil; n = n.next {
		remaining++
	}
	l.mu.Unlock()

	for _, w := range ready {
		l.rt.ScheduleContext(w.ctx)
	}
	return remaining
}
