// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
)

// MaxResponseSize bounds content API response reads: 64 MB. Entity
// batches and locale lists are far smaller.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads an HTTP response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody returns an error response body as a string for use in error
// messages. Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}
