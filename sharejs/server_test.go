// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/fieldsync/fieldsync/lib/codec"
)

// testServer is an in-process ShareJS server speaking the subset of the
// protocol the client uses. It applies ops in arrival order without
// transforming them; tests that need concurrency avoid conflicting edits.
type testServer struct {
	t      *testing.T
	http   *httptest.Server
	codec  codec.Codec
	token  string
	reject map[string]string

	holdAcks atomic.Bool
	nextID   atomic.Int64

	mu    sync.Mutex
	docs  map[string]*serverDoc
	conns map[*serverConn]bool
}

type serverDoc struct {
	version     int
	snapshot    any
	subscribers map[*serverConn]bool
}

type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func newTestServer(t *testing.T, frameCodec codec.Codec) *testServer {
	t.Helper()
	server := &testServer{
		t:      t,
		codec:  frameCodec,
		token:  "good-token",
		reject: map[string]string{},
		docs:   map[string]*serverDoc{},
		conns:  map[*serverConn]bool{},
	}
	server.http = httptest.NewServer(http.HandlerFunc(server.serveHTTP))
	t.Cleanup(server.http.Close)
	return server
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/spaces/space/channel"
}

// dropAll closes every live connection without a close frame.
func (s *testServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.ws.Close()
	}
}

func (s *testServer) snapshot(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc := s.docs[name]; doc != nil {
		return doc.snapshot
	}
	return nil
}

func (s *testServer) serveHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != "/spaces/space/channel" {
		http.NotFound(writer, request)
		return
	}
	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		return
	}
	conn := &serverConn{ws: ws}
	defer ws.Close()

	auth, err := s.read(conn)
	if err != nil {
		return
	}
	if auth["auth"] != s.token {
		s.write(conn, frame{"auth": nil, "error": "forbidden"})
		return
	}
	s.write(conn, frame{"auth": "client-" + string(rune('a'+s.nextID.Add(1)-1))})

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		for _, doc := range s.docs {
			delete(doc.subscribers, conn)
		}
		s.mu.Unlock()
	}()

	for {
		message, err := s.read(conn)
		if err != nil {
			return
		}
		s.handle(conn, message)
	}
}

func (s *testServer) handle(conn *serverConn, message frame) {
	name, _ := message.str("doc")

	switch {
	case message.has("open"):
		if open, _ := message["open"].(bool); !open {
			s.mu.Lock()
			if doc := s.docs[name]; doc != nil {
				delete(doc.subscribers, conn)
			}
			s.mu.Unlock()
			s.write(conn, frame{"doc": name, "open": false})
			return
		}
		if reason, rejected := s.reject[name]; rejected {
			s.write(conn, frame{"doc": name, "open": false, "error": reason})
			return
		}
		s.mu.Lock()
		doc := s.docs[name]
		if doc == nil {
			doc = &serverDoc{snapshot: map[string]any{}, subscribers: map[*serverConn]bool{}}
			s.docs[name] = doc
		}
		doc.subscribers[conn] = true
		reply := frame{"doc": name, "open": true, "v": doc.version, "snapshot": deepCopy(doc.snapshot)}
		s.mu.Unlock()
		s.write(conn, reply)

	case message.has("shout"):
		for _, peer := range s.peers(name, conn) {
			s.write(peer, frame{"doc": name, "shout": message["shout"]})
		}

	case message.has("op"):
		op, err := opFromWire(message["op"])
		if err != nil {
			s.write(conn, frame{"doc": name, "error": err.Error()})
			return
		}
		s.mu.Lock()
		doc := s.docs[name]
		version := doc.version
		doc.snapshot, err = Apply(doc.snapshot, op)
		doc.version++
		s.mu.Unlock()
		if err != nil {
			s.t.Errorf("server could not apply op: %v", err)
		}
		if !s.holdAcks.Load() {
			s.write(conn, frame{"doc": name, "v": version})
		}
		for _, peer := range s.peers(name, conn) {
			s.write(peer, frame{"doc": name, "v": version, "op": message["op"], "meta": map[string]any{}})
		}
	}
}

func (s *testServer) peers(name string, except *serverConn) []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[name]
	if doc == nil {
		return nil
	}
	var peers []*serverConn
	for conn := range doc.subscribers {
		if conn != except {
			peers = append(peers, conn)
		}
	}
	return peers
}

func (s *testServer) read(conn *serverConn) (frame, error) {
	_, data, err := conn.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var message frame
	if err := s.codec.Unmarshal(data, &message); err != nil {
		s.t.Errorf("server could not decode frame: %v", err)
		return nil, err
	}
	return message, nil
}

func (s *testServer) write(conn *serverConn, message frame) {
	data, err := s.codec.Marshal(message)
	if err != nil {
		s.t.Errorf("server could not encode frame: %v", err)
		return
	}
	messageType := websocket.TextMessage
	if s.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	conn.ws.WriteMessage(messageType, data)
}
