// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package signal

import "sync"

// Map derives a signal holding transform applied to every value of
// source. The returned stop function detaches the derived signal from
// source and ends it.
func Map[A, B any](source *Signal[A], transform func(A) B, options ...Option[B]) (*Signal[B], func()) {
	out := New(source.scheduler, transform(source.Get()), options...)
	unsubscribe := source.Subscribe(func(value A) {
		out.emit(transform(value))
	})
	return out, stopper(unsubscribe, out.End)
}

// Combine derives a signal holding combine(a, b) for the latest values
// of both sources. Both sources must share a Scheduler.
func Combine[A, B, C any](a *Signal[A], b *Signal[B], combine func(A, B) C, options ...Option[C]) (*Signal[C], func()) {
	if a.scheduler != b.scheduler {
		panic("signal: Combine requires signals on the same scheduler")
	}

	var mu sync.Mutex
	latestA := a.Get()
	latestB := b.Get()
	out := New(a.scheduler, combine(latestA, latestB), options...)

	unsubscribeA := a.Subscribe(func(value A) {
		mu.Lock()
		latestA = value
		combined := combine(latestA, latestB)
		mu.Unlock()
		out.emit(combined)
	})
	unsubscribeB := b.Subscribe(func(value B) {
		mu.Lock()
		latestB = value
		combined := combine(latestA, latestB)
		mu.Unlock()
		out.emit(combined)
	})
	return out, stopper(unsubscribeA, unsubscribeB, out.End)
}

// Switch derives a signal that follows the inner signal returned by
// project for the latest source value. Each time source changes, the
// previous inner signal is unsubscribed before project is called
// again, so values from superseded inner signals never reach the
// output. Inner signals must share the source's Scheduler.
func Switch[A, B any](source *Signal[A], initial B, project func(A) *Signal[B], options ...Option[B]) (*Signal[B], func()) {
	out := New(source.scheduler, initial, options...)

	var mu sync.Mutex
	var innerUnsubscribe func()
	stopped := false

	detachInner := func() {
		mu.Lock()
		previous := innerUnsubscribe
		innerUnsubscribe = nil
		mu.Unlock()
		if previous != nil {
			previous()
		}
	}

	sourceUnsubscribe := source.Subscribe(func(value A) {
		detachInner()

		inner := project(value)
		if inner == nil {
			return
		}
		if inner.scheduler != source.scheduler {
			panic("signal: Switch inner signal is on a different scheduler")
		}
		unsubscribe := inner.Subscribe(func(innerValue B) {
			out.emit(innerValue)
		})

		mu.Lock()
		if stopped {
			mu.Unlock()
			unsubscribe()
			return
		}
		innerUnsubscribe = unsubscribe
		mu.Unlock()
	})

	stop := func() {
		sourceUnsubscribe()
		mu.Lock()
		stopped = true
		mu.Unlock()
		detachInner()
		out.End()
	}
	return out, stopper(stop)
}

// Const returns a signal that always holds value.
func Const[T any](scheduler *Scheduler, value T) *Signal[T] {
	return New(scheduler, value)
}

func stopper(steps ...func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, step := range steps {
				step()
			}
		})
	}
}
