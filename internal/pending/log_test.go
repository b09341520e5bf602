package pending

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushReturnsPriorCount(t *testing.T) {
	t.Parallel()

	l := New()
	gen, prior := l.Push(0, 1)
	assert.EqualValues(t, 1, gen)
	assert.Zero(t, prior)

	gen, prior = l.Push(0, 2)
	assert.EqualValues(t, 2, gen)
	assert.EqualValues(t, 1, prior)
	assert.EqualValues(t, 2, l.Count())
}

func TestClaimNewestMatch(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(0, 5)
	l.Push(0, 5)

	require.True(t, l.Claim(0, 5))
	// The older duplicate went with it.
	assert.False(t, l.Claim(0, 5))
}

func TestClaimInvalidatesOlderMarkers(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(0, 1)
	l.Push(0, 2)
	l.Push(0, 3)

	require.True(t, l.Claim(0, 2))
	assert.False(t, l.Claim(0, 1), "older request must not publish after a newer one")

	live := l.Live()
	want := []Marker{{Generation: 3, Index: 0, Frame: 3}}
	if diff := cmp.Diff(want, live); diff != "" {
		t.Fatalf("live markers (-want +got):\n%s", diff)
	}
	assert.True(t, l.Claim(0, 3))
}

func TestClaimFuncHoldsOffNewerClaimUntilDone(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(0, 1)
	l.Push(0, 2)

	var order []int
	newerDone := make(chan bool)
	ok := l.ClaimFunc(0, 1, func() {
		go func() {
			newerDone <- l.ClaimFunc(0, 2, func() { order = append(order, 2) })
		}()
		select {
		case <-newerDone:
			t.Error("newer claim ran inside an older claim's callback")
		case <-time.After(50 * time.Millisecond):
		}
		order = append(order, 1)
	})
	require.True(t, ok)
	require.True(t, <-newerDone)

	if diff := cmp.Diff([]int{1, 2}, order); diff != "" {
		t.Fatalf("callback order (-want +got):\n%s", diff)
	}
}

func TestClaimFuncSkipsCallbackOnMiss(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(0, 1)

	called := false
	assert.False(t, l.ClaimFunc(3, 1, func() { called = true }))
	assert.False(t, called)
}

func TestClaimMissLeavesLogUntouched(t *testing.T) {
	t.Parallel()

	l := New()
	l.Push(1, 1)
	assert.False(t, l.Claim(2, 1))
	assert.False(t, l.Claim(1, 2))
	assert.Len(t, l.Live(), 1)
}

func TestLatestSurvivesCompaction(t *testing.T) {
	t.Parallel()

	l := New()
	_, ok := l.Latest()
	assert.False(t, ok)

	for frame := 0; frame < 100; frame++ {
		l.Push(0, frame)
	}
	require.True(t, l.Claim(0, 99))

	latest, ok := l.Latest()
	require.True(t, ok)
	assert.Equal(t, 99, latest.Frame)
	assert.True(t, latest.Invalidated)
	assert.Equal(t, 1, l.Len())
	assert.Empty(t, l.Live())
}

func TestConcurrentPushAndClaim(t *testing.T) {
	t.Parallel()

	l := New()
	var wg sync.WaitGroup
	claimed := make([]bool, 200)
	for frame := 0; frame < 200; frame++ {
		l.Push(0, frame)
	}
	for frame := 0; frame < 200; frame++ {
		wg.Add(1)
		go func(frame int) {
			defer wg.Done()
			claimed[frame] = l.Claim(0, frame)
		}(frame)
	}
	wg.Wait()

	assert.Empty(t, l.Live())
	// The newest request always gets claimed by its own worker.
	assert.True(t, claimed[199])
}
