package mercury

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryWakeEngineTargetingWorkingFails(t *testing.T) {
	s := newEngineSync()
	require.Equal(t, stateWorking, s.loadState())

	ok := s.tryWakeEngine(actionContext, nil, 0, stateSleeping)
	assert.False(t, ok, "a WORKING engine is not in {SLEEPING} and must be left untouched")
	assert.Equal(t, stateWorking, s.loadState())
}

func TestTryWakeEngineSucceedsOnAllowedState(t *testing.T) {
	s := newEngineSync()
	s.storeState(stateSleeping)

	ok := s.tryWakeEngine(actionWorksteal, nil, 7, stateSleeping)
	require.True(t, ok)
	assert.Equal(t, stateWoken, s.loadState())

	action, _, victim := s.takeAction()
	assert.Equal(t, actionWorksteal, action)
	assert.EqualValues(t, 7, victim)
}

func TestTryWakeEngineWokenIsNotDoubleWoken(t *testing.T) {
	s := newEngineSync()
	s.storeState(stateSleeping)
	require.True(t, s.tryWakeEngine(actionContext, nil, 0, stateSleeping))

	// Invariant I1: a WOKEN engine may not be signalled again until it
	// transitions back to WORKING or SLEEPING.
	ok := s.tryWakeEngine(actionContext, nil, 0, stateSleeping)
	assert.False(t, ok)
}

func TestEngineStateBitmaskAllowsSetMembership(t *testing.T) {
	s := newEngineSync()
	s.storeState(stateIdle)

	assert.False(t, s.tryWakeEngine(actionContext, nil, 0, stateSleeping))
	assert.True(t, s.loadState()&(stateIdle|stateSleeping) != 0)
}

func TestBinarySemaphorePostSaturates(t *testing.T) {
	sem := newBinarySemaphore(false)
	sem.post()
	sem.post() // must not block or panic even though already signalled
	sem.wait()

	done := make(chan struct{})
	go func() {
		sem.wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("second wait must not have anything to consume")
	default:
	}
	sem.post()
	<-done
}
