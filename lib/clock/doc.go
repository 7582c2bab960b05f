// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source used by presence sweeps,
// focus throttling and transport reconnect delays.
//
// Components take a Clock in their config or options and default to
// Real(). Tests construct Fake(start) and move time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	controller := presence.New(presence.Config{Clock: fake, ...})
//	fake.Advance(61 * time.Second) // runs the sweep synchronously
//
// Fake runs AfterFunc callbacks on the goroutine that calls Advance, in
// deadline order, so a test observes every side effect of a timer
// before Advance returns.
package clock
