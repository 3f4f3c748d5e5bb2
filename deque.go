package mercury

import (
	"sync/atomic"
)

// cacheLinePad matches the teacher's cacheLinePadding convention
// (alphadose/zenq's zenq.go): a fixed byte array inserted between hot
// fields to keep them on separate cache lines and avoid false
// sharing, the same concern spec §9 calls out for per-engine state.
type cacheLinePad [64]byte

// sparkBuffer is the circular backing array for a SparkDeque. Capacity
// is always a power of two, mirroring the teacher's queueSize/indexMask
// masking trick (zenq.go) in place of a modulo division.
type sparkBuffer struct {
	mask int64
	data []Spark
}

func newSparkBuffer(capacity int64) *sparkBuffer {
	return &sparkBuffer{mask: capacity - 1, data: make([]Spark, capacity)}
}

func (b *sparkBuffer) capacity() int64 { return b.mask + 1 }

func (b *sparkBuffer) get(i int64) Spark { return b.data[i&b.mask] }

func (b *sparkBuffer) put(i int64, s Spark) { b.data[i&b.mask] = s }

func (b *sparkBuffer) grow(bottom, top int64) *sparkBuffer {
	grown := newSparkBuffer(b.capacity() * 2)
	for i := top; i < bottom; i++ {
		grown.put(i, b.get(i))
	}
	return grown
}

// stealResult enumerates the three outcomes of steal_top (spec §4.B).
type stealResult int

const (
	stealEmpty stealResult = iota
	stealAbort
	stealOK
)

// SparkDeque is the per-engine Chase-Lev work-stealing deque (spec
// §4.B): the owner pushes/pops the bottom without synchronization
// beyond memory fences (here, atomic loads/stores/CAS on the index
// variables play the role of the fences); external engines may only
// steal from the top via CAS. The index fields are cache-line padded
// exactly as the teacher pads ZenQ's writerIndex/readerIndex, since
// they are independently hot under concurrent owner/thief access.
type SparkDeque struct {
	_pad0  cacheLinePad
	top    int64
	_pad1  cacheLinePad
	bottom int64
	_pad2  cacheLinePad
	bufPtr atomic.Pointer[sparkBuffer]
	_pad3  cacheLinePad
}

// NewSparkDeque constructs a deque with the given initial capacity,
// rounded up to the next power of two if necessary.
func NewSparkDeque(initialCapacity int64) *SparkDeque {
	if initialCapacity < 2 {
		initialCapacity = 2
	}
	cap := int64(1)
	for cap < initialCapacity {
		cap <<= 1
	}
	d := &SparkDeque{}
	d.bufPtr.Store(newSparkBuffer(cap))
	return d
}

// PushBottom pushes a spark onto the bottom of the deque. Owner only.
// May grow the backing buffer.
func (d *SparkDeque) PushBottom(s Spark) {
	b := atomic.LoadInt64(&d.bottom)
	t := atomic.LoadInt64(&d.top)
	buf := d.bufPtr.Load()
	if size := b - t; size >= buf.capacity()-1 {
		buf = buf.grow(b, t)
		d.bufPtr.Store(buf)
	}
	buf.put(b, s)
	// Release: the spark must be fully written before bottom advances,
	// so a thief observing the new bottom also observes the write.
	atomic.StoreInt64(&d.bottom, b+1)
}

// PopBottom pops the bottom of the deque. Owner only; races with a
// concurrent stealer exactly when one element remains, resolved via
// CAS on top.
func (d *SparkDeque) PopBottom() (Spark, bool) {
	b := atomic.LoadInt64(&d.bottom) - 1
	buf := d.bufPtr.Load()
	atomic.StoreInt64(&d.bottom, b)
	t := atomic.LoadInt64(&d.top)

	size := b - t
	if size < 0 {
		// Deque was already empty; restore bottom.
		atomic.StoreInt64(&d.bottom, t)
		return Spark{}, false
	}
	s := buf.get(b)
	if size > 0 {
		// More than one element remained; no race with a thief.
		return s, true
	}
	// Exactly one element: race a concurrent steal_top for it.
	if !atomic.CompareAndSwapInt64(&d.top, t, t+1) {
		// Lost the race; a thief took it.
		atomic.StoreInt64(&d.bottom, t+1)
		return Spark{}, false
	}
	atomic.StoreInt64(&d.bottom, t+1)
	return s, true
}

// StealTop attempts to steal the top of the deque. Thief only. Returns
// stealEmpty when the deque is observed empty, stealAbort when the CAS
// races with the owner's pop or another thief (callers may treat abort
// as empty, per spec §4.B).
func (d *SparkDeque) StealTop() (Spark, stealResult) {
	t := atomic.LoadInt64(&d.top)
	b := atomic.LoadInt64(&d.bottom)
	if b-t <= 0 {
		return Spark{}, stealEmpty
	}
	buf := d.bufPtr.Load()
	s := buf.get(t)
	if !atomic.CompareAndSwapInt64(&d.top, t, t+1) {
		return Spark{}, stealAbort
	}
	return s, stealOK
}

// Len reports an approximate size, for diagnostics only (racy by
// construction: top and bottom are read independently).
func (d *SparkDeque) Len() int64 {
	b := atomic.LoadInt64(&d.bottom)
	t := atomic.LoadInt64(&d.top)
	if n := b - t; n > 0 {
		return n
	}
	return 0
}
