// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed client or document.
	ErrClosed = errors.New("sharejs: closed")

	// ErrNotConnected is returned when an operation needs a live
	// connection and the client has none. Open requests that were
	// outstanding when the connection dropped fail with it.
	ErrNotConnected = errors.New("sharejs: not connected")
)

// ServerError is an error reported by the server in a reply frame.
// Doc is empty for authentication failures.
type ServerError struct {
	Doc     string
	Message string
}

func (e *ServerError) Error() string {
	if e.Doc == "" {
		return fmt.Sprintf("sharejs: server: %s", e.Message)
	}
	return fmt.Sprintf("sharejs: server: %s: %s", e.Doc, e.Message)
}
