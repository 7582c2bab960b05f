// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package docpool keeps at most one live document per entity and
// shares it between every consumer that holds it.
//
// Each [Pool.Get] takes a reference that is released when the caller's
// lifeline context ends. When the last reference is released the entry
// leaves the pool at once and its document is destroyed on its own
// goroutine; a Get arriving after that point builds a fresh document
// rather than reviving the old one.
//
// Pool keys are "{EntityType}!{id}" and carry no space, unlike the
// server document names built by collab.DocKey.
package docpool
