// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package collab manages the session with the collaboration server and
// the lifecycle of the documents opened on it.
//
// A [Connection] owns one transport and exposes its state as a signal.
// The second and later "connecting" states the transport reports are
// relabeled [Disconnected], so consumers can tell a first connect from
// a reconnect.
//
// A [DocLoader] turns a document key, the connection state, and a
// should-open signal into a [DocLoadState] signal. It opens the document
// at most once per period in which opening is wanted. It closes the
// document when the connection drops or opening is no longer wanted,
// and replays the edits that were unacknowledged at the drop once the
// document reopens.
//
// All signal updates and loader transitions run on the connection's
// [signal.Scheduler]. Transport callbacks arrive on network goroutines
// and are posted into it.
package collab
