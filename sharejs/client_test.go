// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fieldsync/fieldsync/lib/codec"
	"github.com/fieldsync/fieldsync/lib/credential"
	"github.com/fieldsync/fieldsync/lib/testutil"
)

const testTimeout = 5 * time.Second

func startClient(t *testing.T, server *testServer, token string) (*Client, <-chan State) {
	t.Helper()
	client, err := NewClient(Config{
		URL:          server.url(),
		Credential:   credential.Static(token),
		Codec:        server.codec,
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	states := make(chan State, 64)
	client.OnState(func(state State) { states <- state })
	client.Start()
	t.Cleanup(client.Close)
	return client, states
}

func expectStates(t *testing.T, states <-chan State, want ...State) {
	t.Helper()
	for _, expected := range want {
		got := testutil.RequireReceive(t, states, testTimeout, "waiting for state %s", expected)
		if got != expected {
			t.Fatalf("state = %s, want %s", got, expected)
		}
	}
}

func openDoc(t *testing.T, client *Client, name string) *Doc {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	doc, err := client.Open(ctx, name)
	if err != nil {
		t.Fatalf("Open(%s): %v", name, err)
	}
	return doc
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Credential: credential.Static("x")}); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := NewClient(Config{URL: "ws://localhost"}); err == nil {
		t.Error("expected error for missing credential")
	}
}

func TestClientAuthRejected(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	client, states := startClient(t, server, "bad-token")

	expectStates(t, states, StateHandshaking, StateStopped)
	testutil.RequireClosed(t, client.Done(), testTimeout, "client did not stop")

	if _, err := client.Open(context.Background(), "space!entry!1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after rejection = %v, want ErrClosed", err)
	}
}

func TestClientEditing(t *testing.T) {
	for _, frameCodec := range []codec.Codec{codec.JSON, codec.CBOR} {
		t.Run(frameCodec.Name(), func(t *testing.T) {
			server := newTestServer(t, frameCodec)
			client, states := startClient(t, server, "good-token")
			expectStates(t, states, StateHandshaking, StateOK)
			if client.ClientID() == "" {
				t.Error("ClientID empty after handshake")
			}

			doc := openDoc(t, client, "space!entry!1")
			if doc.Version() != 0 {
				t.Errorf("Version = %d, want 0", doc.Version())
			}
			if !doc.Attached() {
				t.Error("opened doc is not attached")
			}

			acked := make(chan error, 1)
			if err := doc.SetAt([]any{"fields"}, map[string]any{}, nil); err != nil {
				t.Fatalf("SetAt fields: %v", err)
			}
			if err := doc.SetAt([]any{"fields", "title", "en"}, "Hello", func(err error) { acked <- err }); err != nil {
				t.Fatalf("SetAt title: %v", err)
			}
			if err := testutil.RequireReceive(t, acked, testTimeout, "waiting for ack"); err != nil {
				t.Fatalf("ack error: %v", err)
			}

			if doc.Version() != 2 {
				t.Errorf("Version = %d, want 2", doc.Version())
			}
			if doc.InflightOp() != nil || doc.PendingOp() != nil {
				t.Errorf("ops outstanding after ack: inflight=%v pending=%v", doc.InflightOp(), doc.PendingOp())
			}
			value, ok := lookup(server.snapshot("space!entry!1"), []any{"fields", "title", "en"})
			if !ok || value != "Hello" {
				t.Errorf("server value = %v, %v", value, ok)
			}
		})
	}
}

func TestClientRemoteOpsAndShouts(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	alice, aliceStates := startClient(t, server, "good-token")
	bob, bobStates := startClient(t, server, "good-token")
	expectStates(t, aliceStates, StateHandshaking, StateOK)
	expectStates(t, bobStates, StateHandshaking, StateOK)

	aliceDoc := openDoc(t, alice, "space!entry!1")
	bobDoc := openDoc(t, bob, "space!entry!1")

	remoteOps := make(chan Op, 4)
	bobDoc.OnRemoteOp(func(op Op) { remoteOps <- op })
	shouts := make(chan []any, 4)
	bobDoc.OnShout(func(message []any) { shouts <- message })

	if err := aliceDoc.SetAt([]any{"fields"}, map[string]any{"a": 1.0}, nil); err != nil {
		t.Fatalf("SetAt: %v", err)
	}
	op := testutil.RequireReceive(t, remoteOps, testTimeout, "waiting for remote op")
	if len(op) != 1 {
		t.Fatalf("remote op = %v", op)
	}
	if value, ok := bobDoc.GetAt([]any{"fields", "a"}); !ok || value != 1.0 {
		t.Errorf("bob fields.a = %v, %v", value, ok)
	}
	if bobDoc.Version() != 1 {
		t.Errorf("bob Version = %d, want 1", bobDoc.Version())
	}

	if err := aliceDoc.Shout([]any{"focus", "alice", "fields.title"}); err != nil {
		t.Fatalf("Shout: %v", err)
	}
	message := testutil.RequireReceive(t, shouts, testTimeout, "waiting for shout")
	if len(message) != 3 || message[0] != "focus" || message[2] != "fields.title" {
		t.Errorf("shout = %v", message)
	}
}

func TestClientOpenRejected(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	server.reject["space!entry!secret"] = "forbidden"
	client, states := startClient(t, server, "good-token")
	expectStates(t, states, StateHandshaking, StateOK)

	_, err := client.Open(context.Background(), "space!entry!secret")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Open error = %v, want *ServerError", err)
	}
	if serverErr.Doc != "space!entry!secret" || serverErr.Message != "forbidden" {
		t.Errorf("ServerError = %+v", serverErr)
	}
}

func TestClientOpenBeforeConnected(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	client, _ := startClient(t, server, "good-token")

	// Issued immediately after Start; sent once the handshake completes.
	doc := openDoc(t, client, "space!asset!1")
	if doc.Name() != "space!asset!1" {
		t.Errorf("Name = %q", doc.Name())
	}
}

func TestClientOpenCancelled(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	client, err := NewClient(Config{
		URL:        server.url(),
		Credential: credential.Static("good-token"),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(client.Close)

	// Not started: the open can never be sent.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Open(ctx, "space!entry!1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Open = %v, want context.Canceled", err)
	}
}

func TestClientReconnect(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	client, states := startClient(t, server, "good-token")
	expectStates(t, states, StateHandshaking, StateOK)

	doc := openDoc(t, client, "space!entry!1")
	server.holdAcks.Store(true)
	if err := doc.SetAt([]any{"title"}, "first", nil); err != nil {
		t.Fatalf("SetAt: %v", err)
	}
	if err := doc.SetAt([]any{"title"}, "second", nil); err != nil {
		t.Fatalf("SetAt: %v", err)
	}

	server.dropAll()
	expectStates(t, states, StateDisconnected, StateConnecting, StateHandshaking, StateOK)

	if doc.Attached() {
		t.Error("doc still attached after drop")
	}
	if len(doc.InflightOp()) != 1 {
		t.Errorf("InflightOp = %v, want the first edit", doc.InflightOp())
	}
	if len(doc.PendingOp()) != 1 {
		t.Errorf("PendingOp = %v, want the second edit", doc.PendingOp())
	}

	reopened := openDoc(t, client, "space!entry!1")
	if reopened == doc {
		t.Error("reopen returned the detached doc")
	}
}

func TestClientReportsDropBeforeDetaching(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	client, states := startClient(t, server, "good-token")
	expectStates(t, states, StateHandshaking, StateOK)
	doc := openDoc(t, client, "space!entry!1")

	attachedAtDrop := make(chan bool, 1)
	remove := client.OnState(func(state State) {
		if state == StateDisconnected {
			select {
			case attachedAtDrop <- doc.Attached():
			default:
			}
		}
	})
	defer remove()

	server.dropAll()
	if !testutil.RequireReceive(t, attachedAtDrop, testTimeout, "waiting for disconnect") {
		t.Error("doc detached before the disconnect was reported")
	}
	expectStates(t, states, StateDisconnected, StateConnecting, StateHandshaking, StateOK)
	if doc.Attached() {
		t.Error("doc still attached after reconnect")
	}
}

func TestClientClose(t *testing.T) {
	server := newTestServer(t, codec.JSON)
	client, states := startClient(t, server, "good-token")
	expectStates(t, states, StateHandshaking, StateOK)
	doc := openDoc(t, client, "space!entry!1")

	client.Close()
	expectStates(t, states, StateStopped)
	testutil.RequireClosed(t, client.Done(), testTimeout, "client did not stop")

	if client.State() != StateStopped {
		t.Errorf("State = %s, want stopped", client.State())
	}
	if err := doc.Shout([]any{"ping", "u"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Shout after Close = %v, want ErrNotConnected", err)
	}
	if err := doc.Close(); err != nil {
		t.Errorf("doc.Close after client Close: %v", err)
	}
}
