// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds network I/O helpers shared by the websocket
// transport and the content API client.
//
// ReadResponse bounds HTTP response body reads at MaxResponseSize.
// ClassifyDisconnect sorts the error that ended a websocket read loop
// into a [Disconnect] kind for the transport's reconnect logging.
package netutil
