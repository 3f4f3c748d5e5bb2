package mercury

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncTermDecrementReportsLastExactlyOnce(t *testing.T) {
	term := NewSyncTerm(3, nil, 0)

	assert.False(t, term.decrement())
	assert.False(t, term.decrement())
	assert.True(t, term.decrement())
	assert.EqualValues(t, 0, term.Remaining())
}

// TestSyncTermConcurrentDecrementExactlyOneLast covers invariant 4 /
// testable property 4: after the Nth decrement exactly one caller
// observes last==true.
func TestSyncTermConcurrentDecrementExactlyOneLast(t *testing.T) {
	const n = 64
	term := NewSyncTerm(n, nil, 0)

	var lastCount int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if term.decrement() {
				mu.Lock()
				lastCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, lastCount)
}

func TestSparkIsZero(t *testing.T) {
	var s Spark
	assert.True(t, s.isZero())

	s.Resume = func(e *Engine) Outcome { return Outcome{} }
	assert.False(t, s.isZero())
}
