// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentapi is a client for the REST content management API.
// It fetches entries and assets by id in batches, content types and
// locales, and applies the server-side entity actions (publish,
// unpublish, archive, unarchive).
//
// Errors returned by the server are *APIError values:
//
//	var apiErr *contentapi.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
//	    // version mismatch
//	}
package contentapi
