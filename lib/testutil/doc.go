// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for fieldsync packages.
//
// [RequireReceive] and [RequireNoReceive] hold the only wall-clock
// timeouts in the test suite; component timers run on clock.Fake.
// [Record] captures every value a signal delivers so tests can assert
// on complete emission sequences, including the absence of duplicates.
//
// All helpers call t.Fatalf on failure.
package testutil
