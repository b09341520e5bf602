package sources

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countClip int

func (c countClip) NumFrames() int { return int(c) }

type closingClip struct {
	countClip
	closed bool
}

func (c *closingClip) Close() error {
	c.closed = true
	return nil
}

func TestValidateIndex(t *testing.T) {
	t.Parallel()

	for _, index := range []int{0, 5, SlotCount - 1} {
		assert.NoError(t, ValidateIndex(index))
	}
	for _, index := range []int{-1, SlotCount, 42} {
		assert.ErrorIs(t, ValidateIndex(index), ErrInvalidSlotIndex)
	}
}

func TestTableSetAndClear(t *testing.T) {
	t.Parallel()

	table := NewTable()
	first := NewSource(countClip(50), DefaultColor())
	second := NewSource(countClip(60), DefaultColor())

	prev, err := table.Set(3, first, "first")
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = table.Set(3, second, "second")
	require.NoError(t, err)
	assert.Same(t, first, prev)
	assert.Equal(t, "second", table.Name(3))
	assert.True(t, table.Is(3, second))
	assert.False(t, table.Is(3, first))

	n, ok := table.NumFrames(3)
	require.True(t, ok)
	assert.Equal(t, 60, n)

	prev, err = table.Clear(3)
	require.NoError(t, err)
	assert.Same(t, second, prev)
	assert.False(t, table.Occupied(3))
	assert.Equal(t, "", table.Name(3))

	_, err = table.Set(SlotCount, first, "")
	assert.ErrorIs(t, err, ErrInvalidSlotIndex)
	_, err = table.Set(0, nil, "")
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestTableValidAt(t *testing.T) {
	t.Parallel()

	table := NewTable()
	_, err := table.Set(0, NewSource(countClip(50), DefaultColor()), "a")
	require.NoError(t, err)

	assert.True(t, table.ValidAt(0, 0))
	assert.True(t, table.ValidAt(0, 49))
	assert.False(t, table.ValidAt(0, 50))
	assert.False(t, table.ValidAt(0, -1))
	assert.False(t, table.ValidAt(1, 0))
	assert.False(t, table.ValidAt(-1, 0))
}

func TestRing(t *testing.T) {
	t.Parallel()

	if diff := cmp.Diff([]int{4, 5, 6, 7, 8, 9, 0, 1, 2}, Ring(3, true)); diff != "" {
		t.Fatalf("forward ring mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 1, 0, 9, 8, 7, 6, 5, 4}, Ring(3, false)); diff != "" {
		t.Fatalf("backward ring mismatch (-want +got):\n%s", diff)
	}
}

func TestNextOccupiedWraps(t *testing.T) {
	t.Parallel()

	table := NewTable()
	for _, i := range []int{2, 5, 8} {
		_, err := table.Set(i, NewSource(countClip(10), DefaultColor()), "")
		require.NoError(t, err)
	}

	next, ok := table.NextOccupied(8, true)
	require.True(t, ok)
	assert.Equal(t, 2, next)

	prev, ok := table.NextOccupied(2, false)
	require.True(t, ok)
	assert.Equal(t, 8, prev)

	lonely := NewTable()
	_, err := lonely.Set(4, NewSource(countClip(10), DefaultColor()), "")
	require.NoError(t, err)
	_, ok = lonely.NextOccupied(4, true)
	assert.False(t, ok)
}

func TestSourceClose(t *testing.T) {
	t.Parallel()

	clip := &closingClip{countClip: 5}
	src := NewSource(clip, DefaultColor())
	require.NoError(t, src.Close())
	assert.True(t, clip.closed)

	assert.NoError(t, NewSource(countClip(1), DefaultColor()).Close())
}

func TestSourceNegativeFrameCount(t *testing.T) {
	t.Parallel()

	src := NewSource(countClip(-3), DefaultColor())
	assert.Equal(t, 0, src.NumFrames())
	assert.False(t, src.Contains(0))
}
