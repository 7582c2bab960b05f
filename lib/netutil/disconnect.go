// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// Disconnect is why a collaboration socket stopped serving. Every kind
// leads to a reconnect; the kind only decides how loudly it is logged.
type Disconnect int

const (
	// DisconnectLost: the read failed for a reason nobody announced
	// (timeout, abnormal close, unknown error).
	DisconnectLost Disconnect = iota
	// DisconnectClosed: the server sent a normal or going-away close
	// frame, or the stream ended at EOF.
	DisconnectClosed
	// DisconnectReset: the peer tore the TCP connection down.
	DisconnectReset
	// DisconnectRefused: the server closed with a policy-violation or
	// application close code, typically an expired session.
	DisconnectRefused
)

func (d Disconnect) String() string {
	switch d {
	case DisconnectClosed:
		return "closed"
	case DisconnectReset:
		return "reset"
	case DisconnectRefused:
		return "refused"
	default:
		return "lost"
	}
}

// ClassifyDisconnect maps the error that ended a websocket read loop
// to a Disconnect kind. It also returns the close code when the server
// sent a close frame, or 0.
func ClassifyDisconnect(err error) (Disconnect, int) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch {
		case closeErr.Code == websocket.CloseNormalClosure, closeErr.Code == websocket.CloseGoingAway:
			return DisconnectClosed, closeErr.Code
		case closeErr.Code == websocket.ClosePolicyViolation, closeErr.Code >= 4000:
			return DisconnectRefused, closeErr.Code
		default:
			return DisconnectLost, closeErr.Code
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return DisconnectClosed, 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EPIPE || errno == syscall.ECONNRESET) {
		return DisconnectReset, 0
	}
	return DisconnectLost, 0
}
