// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"slices"
	"sync"
	"sync/atomic"
)

// listeners is an ordered set of callbacks. A callback removed while
// a notification is in progress is not called again.
type listeners[T any] struct {
	mu      sync.Mutex
	entries []*listener[T]
}

type listener[T any] struct {
	callback func(T)
	removed  atomic.Bool
}

func (l *listeners[T]) add(callback func(T)) (remove func()) {
	entry := &listener[T]{callback: callback}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	return func() {
		if entry.removed.Swap(true) {
			return
		}
		l.mu.Lock()
		l.entries = slices.DeleteFunc(l.entries, func(candidate *listener[T]) bool {
			return candidate == entry
		})
		l.mu.Unlock()
	}
}

func (l *listeners[T]) notify(value T) {
	l.mu.Lock()
	entries := slices.Clone(l.entries)
	l.mu.Unlock()
	for _, entry := range entries {
		if !entry.removed.Load() {
			entry.callback(value)
		}
	}
}
