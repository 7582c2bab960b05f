// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fieldsync/fieldsync/lib/signal"
	"github.com/fieldsync/fieldsync/sharejs"
)

// DocLoader manages the open/close lifecycle of one document.
type DocLoader struct {
	key       string
	transport Transport
	scheduler *signal.Scheduler
	logger    *slog.Logger

	state     *signal.Signal[DocLoadState]
	stop      func()
	onDestroy func()

	// Owned by the scheduler.
	request   *openRequest
	current   RawDoc
	queue     []sharejs.Op
	destroyed bool
}

// openRequest is one outstanding or settled open of the document.
type openRequest struct {
	status *signal.Signal[DocLoadState]
	cancel context.CancelFunc
}

type loadInput struct {
	connection ConnectionState
	shouldOpen bool
}

func newDocLoader(key string, connection *signal.Signal[ConnectionState], shouldOpen *signal.Signal[bool],
	transport Transport, logger *slog.Logger) *DocLoader {
	l := &DocLoader{
		key:       key,
		transport: transport,
		scheduler: connection.Scheduler(),
		logger:    logger.With("doc_key", key),
	}

	inputs, stopInputs := signal.Combine(connection, shouldOpen,
		func(connection ConnectionState, shouldOpen bool) loadInput {
			return loadInput{connection: connection, shouldOpen: shouldOpen}
		},
		signal.SkipEqual[loadInput]())
	state, stopState := signal.Switch(inputs, DocLoadState(LoadNone{}), l.derive,
		signal.SkipDuplicates(SameLoadState))

	l.state = state
	l.stop = func() {
		stopState()
		stopInputs()
	}
	return l
}

// Key returns the server document name.
func (l *DocLoader) Key() string { return l.key }

// State returns the load state signal. It ends when the loader is
// destroyed.
func (l *DocLoader) State() *signal.Signal[DocLoadState] { return l.state }

// Close closes the open document and abandons any outstanding open
// request. The next change of connection state or intent derives the
// state afresh. Closing twice is a no-op.
func (l *DocLoader) Close() {
	l.scheduler.Do(l.close)
}

// Destroy closes the loader for good: the state signal ends and
// edits queued for replay are dropped.
func (l *DocLoader) Destroy() {
	l.state.End()
	l.scheduler.Do(func() {
		if l.destroyed {
			return
		}
		l.destroyed = true
		l.close()
		l.queue = nil
		l.stop()
		if l.onDestroy != nil {
			l.onDestroy()
		}
		l.logger.Debug("doc loader destroyed")
	})
}

// derive maps the latest inputs onto the signal the output follows.
// It runs inside a scheduler task.
func (l *DocLoader) derive(input loadInput) *signal.Signal[DocLoadState] {
	if l.destroyed {
		return nil
	}
	switch {
	case !input.shouldOpen:
		l.close()
		return l.constant(LoadNone{})
	case input.connection == Disconnected:
		l.capture()
		l.close()
		return l.constant(LoadError{Err: ErrDisconnected})
	case input.connection == Ok || input.connection == Handshaking:
		if l.request == nil {
			l.request = l.open()
		}
		return l.request.status
	case input.connection == Connecting:
		return l.constant(LoadPending{})
	default:
		l.close()
		return l.constant(LoadNone{})
	}
}

func (l *DocLoader) constant(state DocLoadState) *signal.Signal[DocLoadState] {
	return signal.Const(l.scheduler, state)
}

func (l *DocLoader) open() *openRequest {
	ctx, cancel := context.WithCancel(context.Background())
	request := &openRequest{
		status: signal.New[DocLoadState](l.scheduler, LoadPending{}, signal.SkipDuplicates(SameLoadState)),
		cancel: cancel,
	}
	l.logger.Debug("opening document")

	go func() {
		doc, err := l.transport.Open(ctx, l.key)
		l.scheduler.Do(func() { l.settle(request, doc, err) })
	}()
	return request
}

// settle records the outcome of an open request. A request that was
// superseded or closed meanwhile closes its document and emits nothing.
// An open cut short by a dropped connection reads as ErrDisconnected,
// never as a refusal.
func (l *DocLoader) settle(request *openRequest, doc RawDoc, err error) {
	if l.request != request {
		if doc != nil {
			if closeErr := doc.Close(); closeErr != nil {
				l.logger.Debug("closing superseded document failed", "error", closeErr)
			}
		}
		return
	}
	if errors.Is(err, sharejs.ErrNotConnected) {
		l.logger.Debug("connection dropped while opening document")
		request.status.Set(LoadError{Err: ErrDisconnected})
		return
	}
	if err != nil {
		l.logger.Warn("opening document failed", "error", err)
		request.status.Set(LoadError{Err: err})
		return
	}

	l.current = doc
	l.replay(doc)
	request.status.Set(LoadDoc{Doc: doc})
}

// capture saves the current document's unacknowledged ops, oldest
// first, for replay after reopening.
func (l *DocLoader) capture() {
	if l.current == nil {
		return
	}
	var captured []sharejs.Op
	if op := l.current.InflightOp(); len(op) > 0 {
		captured = append(captured, op)
	}
	if op := l.current.PendingOp(); len(op) > 0 {
		captured = append(captured, op)
	}
	if len(captured) > 0 {
		l.logger.Info("queued unacknowledged edits for replay", "ops", len(captured))
		l.queue = captured
	}
}

// replay resubmits the captured ops to a freshly opened document. A
// document that already carries local ops has them from a previous
// submission and is left alone.
func (l *DocLoader) replay(doc RawDoc) {
	queue := l.queue
	l.queue = nil
	if len(queue) == 0 {
		return
	}
	if len(doc.PendingOp()) > 0 || len(doc.InflightOp()) > 0 {
		l.logger.Info("skipping replay: document already has local ops", "ops", len(queue))
		return
	}
	for _, op := range queue {
		if err := doc.Submit(op, nil); err != nil {
			l.logger.Warn("replaying edit failed", "error", err)
		}
	}
}

func (l *DocLoader) close() {
	if l.request != nil {
		l.request.cancel()
		l.request.status.End()
		l.request = nil
	}
	if l.current != nil {
		if err := l.current.Close(); err != nil {
			l.logger.Debug("closing document failed", "error", err)
		}
		l.current = nil
	}
}
