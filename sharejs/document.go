// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

type docStatus int

const (
	docOpening docStatus = iota
	docOpen
	// docDetached documents lost their connection or were created with
	// NewDetachedDoc. Edits apply locally and queue as the pending op.
	docDetached
	docClosed
)

// Doc is a JSON document opened on a Client.
//
// Local edits are applied to the snapshot immediately. At most one op
// is in flight to the server; edits made meanwhile are composed into a
// single pending op that is sent when the in-flight op is acknowledged.
type Doc struct {
	client *Client
	name   string

	opened   chan struct{}
	openErr  error
	openOnce sync.Once
	openSent bool // guarded by client.mu

	shoutListeners    listeners[[]any]
	remoteOpListeners listeners[Op]

	mu                sync.Mutex
	status            docStatus
	version           int
	snapshot          any
	inflight          Op
	inflightCallbacks []func(error)
	pending           Op
	pendingCallbacks  []func(error)
}

func newDoc(client *Client, name string) *Doc {
	return &Doc{
		client: client,
		name:   name,
		opened: make(chan struct{}),
		status: docOpening,
	}
}

// NewDetachedDoc returns a document that is not attached to any
// connection. Edits apply to snapshot and accumulate as the pending op.
func NewDetachedDoc(name string, version int, snapshot any) *Doc {
	doc := newDoc(nil, name)
	doc.status = docDetached
	doc.version = version
	doc.snapshot = snapshot
	doc.resolveOpen(nil)
	return doc
}

// Name returns the document name the server addresses it by.
func (d *Doc) Name() string { return d.name }

// Version returns the server version the snapshot corresponds to,
// excluding unacknowledged local ops.
func (d *Doc) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Snapshot returns the live snapshot. Callers that change it outside
// of ops do so without telling the server.
func (d *Doc) Snapshot() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

// Attached reports whether the document is open on a live connection.
func (d *Doc) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status == docOpen
}

// GetAt returns the value at path.
func (d *Doc) GetAt(path []any) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lookup(d.snapshot, path)
}

// Repair runs fn with the snapshot locked. Changes fn makes in place
// stay local: they are not ops and are never sent to the server.
func (d *Doc) Repair(fn func(snapshot any)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.snapshot)
}

// SetAt sets the value at path, creating intermediate objects as
// needed. done, if not nil, is called once the server acknowledges the
// edit or rejects it.
func (d *Doc) SetAt(path []any, value any, done func(error)) error {
	op, err := d.setOp(path, value)
	if err != nil {
		return err
	}
	return d.Submit(op, done)
}

// RemoveAt removes the value at path. Removing a missing value is a
// no-op that reports success.
func (d *Doc) RemoveAt(path []any, done func(error)) error {
	current, ok := d.GetAt(path)
	if !ok {
		if done != nil {
			done(nil)
		}
		return nil
	}
	return d.Submit(Op{DeleteAt(slices.Clone(path), current)}, done)
}

func (d *Doc) setOp(path []any, value any) (Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(path) == 0 {
		return Op{ReplaceAt(nil, d.snapshot, value)}, nil
	}
	for i := range path {
		prefix := path[:i+1]
		current, ok := lookup(d.snapshot, prefix)
		if !ok {
			nested := value
			for j := len(path) - 1; j > i; j-- {
				key, ok := path[j].(string)
				if !ok {
					return nil, fmt.Errorf("%w: cannot create list at %v", ErrInvalidPath, path[:j+1])
				}
				nested = map[string]any{key: nested}
			}
			return Op{InsertAt(slices.Clone(prefix), nested)}, nil
		}
		if i == len(path)-1 {
			return Op{ReplaceAt(slices.Clone(path), current, value)}, nil
		}
	}
	panic("unreachable")
}

// Submit applies op locally and queues it for the server.
func (d *Doc) Submit(op Op, done func(error)) error {
	if len(op) == 0 {
		if done != nil {
			done(nil)
		}
		return nil
	}

	d.mu.Lock()
	switch d.status {
	case docClosed:
		d.mu.Unlock()
		return ErrClosed
	case docOpening:
		d.mu.Unlock()
		return ErrNotConnected
	}
	// The snapshot gets its own copy of inserted values so later edits
	// cannot reach back into a queued op.
	snapshot, err := Apply(d.snapshot, detachValues(op))
	d.snapshot = snapshot
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("sharejs: %s: %w", d.name, err)
	}
	d.pending = append(d.pending, op.Clone()...)
	if done != nil {
		d.pendingCallbacks = append(d.pendingCallbacks, done)
	}
	d.mu.Unlock()

	d.flush()
	return nil
}

// InflightOp returns the op sent to the server and not yet
// acknowledged, or nil.
func (d *Doc) InflightOp() Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight.Clone()
}

// PendingOp returns the local edits not yet sent, or nil.
func (d *Doc) PendingOp() Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Clone()
}

// Shout broadcasts message to every other client that has the
// document open.
func (d *Doc) Shout(message []any) error {
	d.mu.Lock()
	attached := d.status == docOpen
	d.mu.Unlock()
	if !attached {
		return ErrNotConnected
	}
	return d.client.send(frame{"doc": d.name, "shout": message})
}

// OnShout registers a callback for shouts from other clients.
func (d *Doc) OnShout(callback func(message []any)) (remove func()) {
	return d.shoutListeners.add(callback)
}

// OnRemoteOp registers a callback for ops from other clients, called
// after the op has been transformed and applied to the snapshot.
func (d *Doc) OnRemoteOp(callback func(op Op)) (remove func()) {
	return d.remoteOpListeners.add(callback)
}

// Close closes the document. Unacknowledged ops remain readable.
// Closing twice is a no-op.
func (d *Doc) Close() error {
	d.mu.Lock()
	previous := d.status
	d.status = docClosed
	d.mu.Unlock()

	if previous == docClosed {
		return nil
	}
	d.resolveOpen(ErrClosed)
	if d.client == nil {
		return nil
	}
	d.client.forget(d)
	if previous != docOpen {
		return nil
	}
	if err := d.client.send(frame{"doc": d.name, "open": false}); err != nil && !errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("sharejs: closing %s: %w", d.name, err)
	}
	return nil
}

func (d *Doc) resolveOpen(err error) {
	d.openOnce.Do(func() {
		d.openErr = err
		close(d.opened)
	})
}

// flush sends the pending op when nothing is in flight.
func (d *Doc) flush() {
	d.mu.Lock()
	if d.client == nil || d.status != docOpen || d.inflight != nil || d.pending == nil {
		d.mu.Unlock()
		return
	}
	d.inflight, d.pending = d.pending, nil
	d.inflightCallbacks, d.pendingCallbacks = d.pendingCallbacks, nil
	message := frame{
		"doc": d.name,
		"v":   d.version,
		"op":  d.inflight.wire(),
		"src": d.client.source,
		"seq": d.client.nextSeq(),
	}
	d.mu.Unlock()

	if err := d.client.send(message); err != nil {
		// The op stays in flight; the drop that caused this detaches
		// the document with the op intact.
		d.client.logger.Debug("op not sent", "doc", d.name, "error", err)
	}
}

func (d *Doc) detach(reason error) {
	d.mu.Lock()
	previous := d.status
	if previous == docOpen {
		d.status = docDetached
	} else if previous == docOpening {
		d.status = docClosed
	}
	d.mu.Unlock()
	d.resolveOpen(reason)
}

func (d *Doc) handleOpened(version int, snapshot any) {
	d.mu.Lock()
	if d.status != docOpening {
		d.mu.Unlock()
		return
	}
	d.status = docOpen
	d.version = version
	d.snapshot = snapshot
	d.mu.Unlock()
	d.resolveOpen(nil)
}

func (d *Doc) handleOpenFailed(err error) {
	d.mu.Lock()
	d.status = docClosed
	d.mu.Unlock()
	d.resolveOpen(err)
}

func (d *Doc) handleAck(version int) {
	d.mu.Lock()
	if d.inflight == nil {
		d.mu.Unlock()
		d.client.logger.Warn("ack without op in flight", "doc", d.name, "version", version)
		return
	}
	d.version = version + 1
	d.inflight = nil
	callbacks := d.inflightCallbacks
	d.inflightCallbacks = nil
	d.mu.Unlock()

	for _, callback := range callbacks {
		callback(nil)
	}
	d.flush()
}

func (d *Doc) handleOpError(err error) {
	d.mu.Lock()
	if d.inflight == nil {
		d.mu.Unlock()
		d.client.logger.Warn("op error without op in flight", "doc", d.name, "error", err)
		return
	}
	// The rejected op stays applied locally; the server's next remote
	// op or a reopen brings the snapshot back in line.
	d.inflight = nil
	callbacks := d.inflightCallbacks
	d.inflightCallbacks = nil
	d.mu.Unlock()

	d.client.logger.Warn("op rejected", "doc", d.name, "error", err)
	for _, callback := range callbacks {
		callback(err)
	}
	d.flush()
}

func (d *Doc) handleRemoteOp(version int, op Op) {
	d.mu.Lock()
	if d.status != docOpen {
		d.mu.Unlock()
		return
	}
	if version != d.version {
		d.mu.Unlock()
		d.client.logger.Warn("remote op version mismatch",
			"doc", d.name, "version", version, "expected", d.version)
		return
	}

	if d.inflight != nil {
		inflight := Transform(d.inflight, op, Left)
		op = Transform(op, d.inflight, Right)
		d.inflight = inflight
	}
	if d.pending != nil {
		pending := Transform(d.pending, op, Left)
		op = Transform(op, d.pending, Right)
		d.pending = pending
	}

	snapshot, err := Apply(d.snapshot, op)
	d.snapshot = snapshot
	d.version++
	d.mu.Unlock()

	if err != nil {
		d.client.logger.Warn("remote op did not apply", "doc", d.name, "error", err)
	}
	d.remoteOpListeners.notify(op)
}
