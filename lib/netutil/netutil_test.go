// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
)

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"items":[]}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"items":[]}` {
		t.Errorf("ReadResponse = %q", data)
	}
}

func TestErrorBody(t *testing.T) {
	body := ErrorBody(strings.NewReader(strings.Repeat("x", 10000)))
	if len(body) != 4096 {
		t.Errorf("ErrorBody length = %d, want 4096", len(body))
	}
}

func TestClassifyDisconnect(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Disconnect
		wantCode int
	}{
		{"eof", io.EOF, DisconnectClosed, 0},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), DisconnectClosed, 0},
		{"closed", net.ErrClosed, DisconnectClosed, 0},
		{"reset", syscall.ECONNRESET, DisconnectReset, 0},
		{"pipe", syscall.EPIPE, DisconnectReset, 0},
		{"normal close frame", &websocket.CloseError{Code: websocket.CloseNormalClosure}, DisconnectClosed, 1000},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, DisconnectClosed, 1001},
		{"policy violation", &websocket.CloseError{Code: websocket.ClosePolicyViolation}, DisconnectRefused, 1008},
		{"application code", &websocket.CloseError{Code: 4001}, DisconnectRefused, 4001},
		{"abnormal close frame", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, DisconnectLost, 1006},
		{"other", errors.New("boom"), DisconnectLost, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			kind, code := ClassifyDisconnect(test.err)
			if kind != test.wantKind || code != test.wantCode {
				t.Errorf("ClassifyDisconnect(%v) = %s, %d; want %s, %d", test.err, kind, code, test.wantKind, test.wantCode)
			}
		})
	}
}
