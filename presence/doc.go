// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence tells collaborators which field each user is
// editing.
//
// A [Controller] rides on the shout channel of an open document. It
// announces itself with ["open", user], answers other users' opens
// with its focus or a ping, broadcasts ["focus", user, path] when the
// local user moves, and says ["close", user] when it leaves the
// document. Peers that go quiet for longer than the ping timeout are
// swept from the map. Every change republishes the [Projection].
package presence
