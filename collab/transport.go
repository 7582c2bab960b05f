// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"

	"github.com/fieldsync/fieldsync/sharejs"
)

// Channel is a document's broadcast channel.
type Channel interface {
	Shout(message []any) error
	OnShout(callback func(message []any)) (remove func())
}

// RawDoc is an open collaborative document. *sharejs.Doc implements it.
type RawDoc interface {
	Channel

	Name() string
	Version() int
	Snapshot() any
	GetAt(path []any) (any, bool)
	SetAt(path []any, value any, done func(error)) error
	RemoveAt(path []any, done func(error)) error
	Repair(fn func(snapshot any))
	Submit(op sharejs.Op, done func(error)) error
	InflightOp() sharejs.Op
	PendingOp() sharejs.Op
	OnRemoteOp(callback func(op sharejs.Op)) (remove func())
	Close() error
}

// Transport is the session a Connection drives. Its state values are
// the sharejs raw states.
type Transport interface {
	State() sharejs.State
	OnState(callback func(sharejs.State)) (remove func())
	Open(ctx context.Context, name string) (RawDoc, error)
	Close()
}

// ShareJSTransport adapts a *sharejs.Client to Transport.
type ShareJSTransport struct {
	Client *sharejs.Client
}

// State returns the client's raw transport state.
func (t ShareJSTransport) State() sharejs.State { return t.Client.State() }

// OnState registers callback for raw state changes.
func (t ShareJSTransport) OnState(callback func(sharejs.State)) func() {
	return t.Client.OnState(callback)
}

// Open opens the named document and waits for the server's reply.
func (t ShareJSTransport) Open(ctx context.Context, name string) (RawDoc, error) {
	doc, err := t.Client.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close stops the client for good.
func (t ShareJSTransport) Close() { t.Client.Close() }
