// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"slices"
	"sync"

	"github.com/fieldsync/fieldsync/lib/signal"
)

// Recorder captures the values delivered by a signal.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	notify chan T
	stop   func()
}

// Record subscribes to s. Every delivered value is appended to the
// recording and also sent on C (buffered; values are dropped from C,
// never from the recording, when the buffer is full).
func Record[T any](s *signal.Signal[T]) *Recorder[T] {
	recorder := &Recorder[T]{notify: make(chan T, 256)}
	recorder.stop = s.Subscribe(func(value T) {
		recorder.mu.Lock()
		recorder.values = append(recorder.values, value)
		recorder.mu.Unlock()
		select {
		case recorder.notify <- value:
		default:
		}
	})
	return recorder
}

// Values returns a copy of everything recorded so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.values)
}

// Last returns the most recent value. It fails the test when nothing
// was recorded.
func (r *Recorder[T]) Last(t TB) T {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		t.Fatalf("recorder is empty")
	}
	return r.values[len(r.values)-1]
}

// C delivers recorded values as they arrive.
func (r *Recorder[T]) C() <-chan T {
	return r.notify
}

// Stop unsubscribes the recorder.
func (r *Recorder[T]) Stop() {
	r.stop()
}
