// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package signal

import "sync"

// Scheduler runs tasks one at a time in submission order.
type Scheduler struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewScheduler returns an idle Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Do submits task. If the Scheduler is idle, task and anything queued
// while it runs execute on the calling goroutine before Do returns.
// Otherwise task is queued behind the running task and Do returns
// immediately.
func (s *Scheduler) Do(task func()) {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.drain()
}

func (s *Scheduler) drain() {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			panic(recovered)
		}
	}()

	s.mu.Lock()
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		next()
		s.mu.Lock()
	}
	s.running = false
	s.mu.Unlock()
}
