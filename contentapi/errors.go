// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package contentapi

import "fmt"

// APIError is an error response from the content API.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`

	// ID is the error id from the response's sys block, for example
	// "NotFound" or "VersionMismatch".
	ID string `json:"-"`

	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func (e *APIError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("contentapi: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("contentapi: %s (%d): %s", e.ID, e.StatusCode, e.Message)
}
