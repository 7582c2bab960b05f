// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"errors"
	"fmt"
)

// ConnectionState is the state of a Connection.
type ConnectionState int

const (
	Connecting ConnectionState = iota
	Handshaking
	Ok
	Disconnected
	Stopped
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Ok:
		return "ok"
	case Disconnected:
		return "disconnected"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// ErrDisconnected is the reason carried by LoadError when the document
// was closed because the connection dropped.
var ErrDisconnected = errors.New("collab: disconnected")

// ErrDestroyed is returned by operations on a destroyed DocLoader.
var ErrDestroyed = errors.New("collab: destroyed")

// DocLoadState is the state of a document managed by a DocLoader. It is
// one of LoadNone, LoadPending, LoadDoc or LoadError. Consumers switch
// on the concrete type and report any other value to diagnostics.
type DocLoadState interface {
	loadState()
	String() string
}

// LoadNone means the document is not open and is not being opened.
type LoadNone struct{}

// LoadPending means an open request is outstanding or the connection
// is being established.
type LoadPending struct{}

// LoadDoc carries the open document.
type LoadDoc struct {
	Doc RawDoc
}

// LoadError carries the reason the document is unavailable.
// ErrDisconnected means it will be reopened when the connection
// recovers; any other reason is terminal for the current open period.
type LoadError struct {
	Err error
}

func (LoadNone) loadState()    {}
func (LoadPending) loadState() {}
func (LoadDoc) loadState()     {}
func (LoadError) loadState()   {}

func (LoadNone) String() string    { return "none" }
func (LoadPending) String() string { return "pending" }
func (s LoadDoc) String() string   { return "doc(" + s.Doc.Name() + ")" }
func (s LoadError) String() string { return "error(" + s.Err.Error() + ")" }

// SameLoadState reports whether a and b are the same state. Docs are
// compared by handle identity and errors by value.
func SameLoadState(a, b DocLoadState) bool {
	switch a := a.(type) {
	case LoadNone:
		_, ok := b.(LoadNone)
		return ok
	case LoadPending:
		_, ok := b.(LoadPending)
		return ok
	case LoadDoc:
		other, ok := b.(LoadDoc)
		return ok && a.Doc == other.Doc
	case LoadError:
		other, ok := b.(LoadError)
		return ok && a.Err == other.Err
	default:
		return false
	}
}
