// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the frame encodings spoken on the
// collaboration channel.
//
// The collaboration server accepts JSON text frames by default. Servers
// that advertise binary support also accept CBOR frames, which carry
// the same structure with smaller snapshots. Both codecs read the same
// `json` struct tags: fxamacker/cbor falls back to `json` tags when no
// `cbor` tag is present, so a frame type declares its field names once.
//
// The CBOR encoder uses Core Deterministic Encoding (RFC 8949 §4.2).
// The decoder materializes untyped maps as map[string]any so snapshots
// decoded from either codec have the same Go shape.
package codec
