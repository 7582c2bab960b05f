// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sharejs is a client for a ShareJS-style operational transform
// server.
//
// A [Client] owns one websocket to the server. It authenticates with an
// opaque token, reconnects with exponential backoff after a drop, and
// reports its raw state (connecting, handshaking, ok, disconnected,
// stopped) to registered listeners. Documents are opened by name with
// [Client.Open]; each [Doc] keeps a local snapshot, at most one op in
// flight and one pending op, and a shout channel for out-of-band
// broadcast messages.
//
// Ops use the object subset of the json0 type: each [Component] inserts
// and/or deletes the value at a path. [Apply] and [Transform] implement
// that subset. A dropped connection detaches every open document: its
// unacknowledged ops stay readable through [Doc.InflightOp] and
// [Doc.PendingOp] so a higher layer can replay them after reopening.
//
// Listener callbacks run on the client's read goroutine. They must not
// block.
package sharejs
