// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package entitydoc provides the editable document for one entry or
// asset.
//
// A [Document] follows the load state of a collab.DocLoader. Each time
// a new document handle arrives it is repaired with [Normalize] before
// any reader sees it, then exposed through path-based getters and
// setters and a message channel for presence. Load states the Document
// does not recognize are reported to diagnostics and otherwise
// ignored.
//
// Server-side actions (publish, archive) go through an [EntityRepo],
// which contentapi.Client satisfies.
package entitydoc
