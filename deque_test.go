package mercury

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparkDequePushPopRoundTrip(t *testing.T) {
	d := NewSparkDeque(2)
	s := Spark{Resume: func(e *Engine) Outcome { return Outcome{} }}

	d.PushBottom(s)
	got, ok := d.PopBottom()
	require.True(t, ok)
	assert.NotNil(t, got.Resume)
}

func TestSparkDequePopEmptyReturnsFalse(t *testing.T) {
	d := NewSparkDeque(2)
	_, ok := d.PopBottom()
	assert.False(t, ok)
}

func TestSparkDequeStealEmptyNeverAborts(t *testing.T) {
	d := NewSparkDeque(2)
	_, res := d.StealTop()
	assert.Equal(t, stealEmpty, res)
}

func TestSparkDequeGrows(t *testing.T) {
	d := NewSparkDeque(2)
	for i := 0; i < 10; i++ {
		d.PushBottom(Spark{ParentSP: uintptr(i)})
	}
	assert.EqualValues(t, 10, d.Len())
	for i := 9; i >= 0; i-- {
		s, ok := d.PopBottom()
		require.True(t, ok)
		assert.EqualValues(t, i, s.ParentSP)
	}
	_, ok := d.PopBottom()
	assert.False(t, ok)
}

// TestSparkDequeOwnerThiefRace exercises concurrent PopBottom/StealTop
// racing for the last element: exactly one side must win.
func TestSparkDequeOwnerThiefRace(t *testing.T) {
	for trial := 0; trial < 200; trial++ {
		d := NewSparkDeque(2)
		d.PushBottom(Spark{ParentSP: 1})

		var wg sync.WaitGroup
		var ownerOK, thiefOK bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, ok := d.PopBottom()
			ownerOK = ok
		}()
		go func() {
			defer wg.Done()
			_, res := d.StealTop()
			thiefOK = res == stealOK
		}()
		wg.Wait()

		assert.NotEqual(t, ownerOK, thiefOK, "exactly one of owner/thief must win the single-element race")
	}
}

func TestSparkDequeStealFIFOOwnerLIFO(t *testing.T) {
	d := NewSparkDeque(4)
	d.PushBottom(Spark{ParentSP: 1})
	d.PushBottom(Spark{ParentSP: 2})
	d.PushBottom(Spark{ParentSP: 3})

	// Owner pops LIFO from the bottom.
	top, ok := d.PopBottom()
	require.True(t, ok)
	assert.EqualValues(t, 3, top.ParentSP)

	// A thief steals FIFO from the top (oldest first).
	stolen, res := d.StealTop()
	require.Equal(t, stealOK, res)
	assert.EqualValues(t, 1, stolen.ParentSP)
}
