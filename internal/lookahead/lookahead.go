// Package lookahead wraps a sequence with a one-element lookahead buffer so
// callers can ask whether another element exists without consuming it.
package lookahead

import (
	"errors"
	"iter"
)

// ErrExhausted is returned by Next when the sequence has no more elements.
var ErrExhausted = errors.New("sequence exhausted")

// Iterator yields the elements of a sequence in order. It is not safe for
// concurrent use.
//
// Once HasNext reports false the iterator stays exhausted, even if the
// underlying sequence would produce more elements.
type Iterator[T any] struct {
	next func() (T, bool)
	stop func()

	buffered bool
	value    T
	done     bool
}

// New wraps seq. Call Stop when abandoning the iterator before exhaustion.
func New[T any](seq iter.Seq[T]) *Iterator[T] {
	next, stop := iter.Pull(seq)
	return &Iterator[T]{next: next, stop: stop}
}

// FromSlice returns an iterator over the elements of s.
func FromSlice[T any](s []T) *Iterator[T] {
	return New(func(yield func(T) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	})
}

// HasNext reports whether Next would return an element. Repeated calls do
// not consume anything.
func (it *Iterator[T]) HasNext() bool {
	if it.buffered {
		return true
	}
	if it.done {
		return false
	}
	v, ok := it.next()
	if !ok {
		it.finish()
		return false
	}
	it.value = v
	it.buffered = true
	return true
}

// Next returns the next element, or ErrExhausted.
func (it *Iterator[T]) Next() (T, error) {
	if !it.HasNext() {
		var zero T
		return zero, ErrExhausted
	}
	v := it.value
	var zero T
	it.value = zero
	it.buffered = false
	return v, nil
}

// Take returns up to n elements. The result is empty only when the
// sequence is exhausted.
func (it *Iterator[T]) Take(n int) []T {
	out := make([]T, 0, max(n, 0))
	for len(out) < n && it.HasNext() {
		v, _ := it.Next()
		out = append(out, v)
	}
	return out
}

// Stop releases the underlying sequence. Buffered elements are dropped and
// HasNext reports false afterwards.
func (it *Iterator[T]) Stop() {
	var zero T
	it.value = zero
	it.buffered = false
	it.finish()
}

func (it *Iterator[T]) finish() {
	if it.done {
		return
	}
	it.done = true
	it.stop()
}
