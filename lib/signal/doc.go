// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package signal provides the observable values that carry connection
// state, document load state and presence projections between
// fieldsync components.
//
// A [Signal] holds a current value and notifies subscribers when it
// changes. Every Signal belongs to a [Scheduler], the single apply
// boundary for a connection: value updates and subscriber callbacks
// run as serialized tasks, so no two callbacks on the same Scheduler
// ever run concurrently and values are observed in the order they were
// set. Goroutines that receive network events post into the Scheduler
// instead of touching component state directly.
//
// A task that runs while no other task is running executes on the
// calling goroutine before [Scheduler.Do] returns. A task posted from
// inside a running task is queued and executes after the current task
// finishes, still before the outermost Do returns. Subscriber
// callbacks must not block.
//
// [Combine], [Map] and [Switch] derive new signals. Switch implements
// latest-wins derivation: when the source changes, the previous inner
// signal is unsubscribed before the new one is attached, and a value
// emitted by a superseded inner signal never reaches the output.
package signal
