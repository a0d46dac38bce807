package lookahead

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterator_YieldsInOrder(t *testing.T) {
	it := FromSlice([]int{1, 2, 3})

	var got []int
	for it.HasNext() {
		v, err := it.Next()
		require.NoError(t, err)
		got = append(got, v)
	}

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestIterator_HasNextDoesNotConsume(t *testing.T) {
	it := FromSlice([]string{"a", "b"})

	assert.True(t, it.HasNext())
	assert.True(t, it.HasNext())
	assert.True(t, it.HasNext())

	v, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestIterator_NextWithoutHasNext(t *testing.T) {
	it := FromSlice([]int{7})

	v, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = it.Next()
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestIterator_Empty(t *testing.T) {
	it := FromSlice[int](nil)

	assert.False(t, it.HasNext())
	_, err := it.Next()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestIterator_StaysExhausted(t *testing.T) {
	it := FromSlice([]int{1})
	_, err := it.Next()
	require.NoError(t, err)

	for range 4 {
		assert.False(t, it.HasNext())
	}
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestIterator_PullsLazily(t *testing.T) {
	pulled := 0
	it := New(func(yield func(int) bool) {
		for i := range 100 {
			pulled++
			if !yield(i) {
				return
			}
		}
	})
	defer it.Stop()

	require.True(t, it.HasNext())
	require.True(t, it.HasNext())
	assert.Equal(t, 1, pulled)

	_, _ = it.Next()
	_, _ = it.Next()
	assert.Equal(t, 2, pulled)
}

func TestIterator_Take(t *testing.T) {
	it := FromSlice([]int{1, 2, 3, 4, 5})

	assert.Equal(t, []int{1, 2}, it.Take(2))
	assert.Equal(t, []int{3, 4}, it.Take(2))
	assert.Equal(t, []int{5}, it.Take(2))
	assert.Empty(t, it.Take(2))
	assert.False(t, it.HasNext())
}

func TestIterator_Stop(t *testing.T) {
	stopped := false
	it := New(func(yield func(int) bool) {
		defer func() { stopped = true }()
		for i := 0; ; i++ {
			if !yield(i) {
				return
			}
		}
	})

	require.True(t, it.HasNext())
	it.Stop()

	assert.True(t, stopped)
	assert.False(t, it.HasNext())
	_, err := it.Next()
	assert.ErrorIs(t, err, ErrExhausted)

	// Stopping twice is harmless.
	it.Stop()
}
