// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package signal

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Signal is an observable value owned by a Scheduler.
type Signal[T any] struct {
	scheduler *Scheduler
	equal     func(a, b T) bool

	mu          sync.Mutex
	value       T
	subscribers []*subscriber[T]
	ended       bool
	done        chan struct{}
}

type subscriber[T any] struct {
	callback func(T)
	removed  atomic.Bool
}

// Option configures a Signal.
type Option[T any] func(*Signal[T])

// SkipDuplicates suppresses a Set whose value is equal to the current
// value according to equal.
func SkipDuplicates[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Signal[T]) {
		s.equal = equal
	}
}

// SkipEqual suppresses a Set whose value == the current value.
func SkipEqual[T comparable]() Option[T] {
	return SkipDuplicates(func(a, b T) bool { return a == b })
}

// New returns a Signal holding initial.
func New[T any](scheduler *Scheduler, initial T, options ...Option[T]) *Signal[T] {
	s := &Signal[T]{
		scheduler: scheduler,
		value:     initial,
		done:      make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Scheduler returns the Scheduler this signal belongs to.
func (s *Signal[T]) Scheduler() *Scheduler {
	return s.scheduler
}

// Get returns the most recently applied value. A Set issued from
// inside a running task is not visible until that task finishes.
func (s *Signal[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set schedules value to become the current value and be delivered to
// subscribers. Set after End is ignored.
func (s *Signal[T]) Set(value T) {
	s.scheduler.Do(func() { s.emit(value) })
}

// emit applies value and notifies subscribers. Must run inside a
// scheduler task.
func (s *Signal[T]) emit(value T) {
	s.mu.Lock()
	if s.ended || (s.equal != nil && s.equal(s.value, value)) {
		s.mu.Unlock()
		return
	}
	s.value = value
	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subscribers {
		if !sub.removed.Load() {
			sub.callback(value)
		}
	}
}

// Subscribe registers callback. The callback receives the current
// value once registration runs and every later value. The returned
// function unsubscribes; after it returns the callback is never
// invoked again.
func (s *Signal[T]) Subscribe(callback func(T)) (unsubscribe func()) {
	sub := &subscriber[T]{callback: callback}
	s.scheduler.Do(func() {
		s.mu.Lock()
		if s.ended || sub.removed.Load() {
			s.mu.Unlock()
			return
		}
		s.subscribers = append(s.subscribers, sub)
		value := s.value
		s.mu.Unlock()

		if !sub.removed.Load() {
			callback(value)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.removed.Store(true)
			s.mu.Lock()
			s.subscribers = slices.DeleteFunc(s.subscribers, func(candidate *subscriber[T]) bool {
				return candidate == sub
			})
			s.mu.Unlock()
		})
	}
}

// End permanently stops the signal. Subscribers are dropped, later Set
// calls are ignored and Done is closed. End is idempotent.
func (s *Signal[T]) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	for _, sub := range s.subscribers {
		sub.removed.Store(true)
	}
	s.subscribers = nil
	close(s.done)
}

// Done is closed when End is called.
func (s *Signal[T]) Done() <-chan struct{} {
	return s.done
}

// Ended reports whether End has been called.
func (s *Signal[T]) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
