// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package sharejs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/fieldsync/fieldsync/lib/clock"
	"github.com/fieldsync/fieldsync/lib/codec"
	"github.com/fieldsync/fieldsync/lib/credential"
	"github.com/fieldsync/fieldsync/lib/netutil"
)

// State is the raw transport state.
type State string

const (
	StateConnecting   State = "connecting"
	StateHandshaking  State = "handshaking"
	StateOK           State = "ok"
	StateDisconnected State = "disconnected"
	StateStopped      State = "stopped"
)

// Config configures a Client.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/spaces/abc/channel.
	URL string

	// Credential supplies the token sent in the auth handshake. It is
	// asked again on every reconnect.
	Credential credential.Supplier

	// Codec encodes frames. Default: codec.JSON.
	Codec codec.Codec

	// Dialer opens the websocket. Default: websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// ReconnectMin and ReconnectMax bound the exponential delay between
	// reconnect attempts. Defaults: 1s and 30s.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// HandshakeTimeout bounds dialing plus the auth exchange.
	// Default: 10s.
	HandshakeTimeout time.Duration

	// Clock drives reconnect delays. Default: clock.Real().
	Clock clock.Clock

	// Logger receives connection lifecycle logs. Default: slog.Default().
	Logger *slog.Logger
}

// Client is a connection to a ShareJS server. The connection is opened
// by Start and kept open, reconnecting after drops, until Close.
type Client struct {
	url              string
	credential       credential.Supplier
	codec            codec.Codec
	dialer           *websocket.Dialer
	reconnectMin     time.Duration
	reconnectMax     time.Duration
	handshakeTimeout time.Duration
	clock            clock.Clock
	logger           *slog.Logger

	// source identifies this client in op submissions for the lifetime
	// of the Client, across reconnects.
	source string

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	done      chan struct{}

	stateListeners listeners[State]

	mu       sync.Mutex
	state    State
	clientID string
	conn     *websocket.Conn
	docs     map[string]*Doc
	seq      int

	writeMu sync.Mutex
}

// NewClient returns a client for config.URL. Register state listeners,
// then call Start.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("sharejs: URL is required")
	}
	if config.Credential == nil {
		return nil, errors.New("sharejs: Credential is required")
	}

	client := &Client{
		url:              config.URL,
		credential:       config.Credential,
		codec:            config.Codec,
		dialer:           config.Dialer,
		reconnectMin:     config.ReconnectMin,
		reconnectMax:     config.ReconnectMax,
		handshakeTimeout: config.HandshakeTimeout,
		clock:            config.Clock,
		logger:           config.Logger,
		source:           ulid.Make().String(),
		done:             make(chan struct{}),
		state:            StateConnecting,
		docs:             make(map[string]*Doc),
	}
	if client.codec == nil {
		client.codec = codec.JSON
	}
	if client.dialer == nil {
		client.dialer = websocket.DefaultDialer
	}
	if client.reconnectMin <= 0 {
		client.reconnectMin = time.Second
	}
	if client.reconnectMax < client.reconnectMin {
		client.reconnectMax = max(30*time.Second, client.reconnectMin)
	}
	if client.handshakeTimeout <= 0 {
		client.handshakeTimeout = 10 * time.Second
	}
	if client.clock == nil {
		client.clock = clock.Real()
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	client.logger = client.logger.With("url", client.url)
	client.ctx, client.cancel = context.WithCancel(context.Background())
	return client, nil
}

// Start begins connecting in the background and returns immediately.
// Calling Start more than once has no effect.
func (c *Client) Start() {
	c.startOnce.Do(func() { go c.run() })
}

// State returns the current transport state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnState registers a callback for every state change. The callback is
// not called with the current state.
func (c *Client) OnState(callback func(State)) (remove func()) {
	return c.stateListeners.add(callback)
}

// ClientID returns the id the server assigned in the last successful
// handshake.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Source returns the id sent as "src" with every op from this client.
func (c *Client) Source() string {
	return c.source
}

// Done is closed once the client has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close disconnects and stops reconnecting. The state becomes stopped
// asynchronously; wait on Done to observe it.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Open opens the named document, creating it on the server if needed,
// and waits for the server's reply. An open issued while the client is
// not connected is sent once the next handshake succeeds. If the
// connection drops before the reply, Open fails with ErrNotConnected.
// Cancelling ctx abandons the request and closes the document.
func (c *Client) Open(ctx context.Context, name string) (*Doc, error) {
	doc := newDoc(c, name)

	c.mu.Lock()
	if c.ctx.Err() != nil || c.state == StateStopped {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	previous := c.docs[name]
	c.docs[name] = doc
	sendNow := c.state == StateOK
	doc.openSent = sendNow
	c.mu.Unlock()

	if previous != nil {
		previous.detach(ErrClosed)
	}
	if sendNow {
		c.sendOpen(doc)
	}

	select {
	case <-doc.opened:
		if doc.openErr != nil {
			return nil, doc.openErr
		}
		return doc, nil
	case <-ctx.Done():
		doc.Close()
		return nil, ctx.Err()
	}
}

func (c *Client) sendOpen(doc *Doc) {
	err := c.send(frame{
		"doc":      doc.name,
		"open":     true,
		"create":   true,
		"type":     "json",
		"snapshot": nil,
	})
	if err != nil {
		c.logger.Debug("open request not sent", "doc", doc.name, "error", err)
	}
}

func (c *Client) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *Client) forget(doc *Doc) {
	c.mu.Lock()
	if c.docs[doc.name] == doc {
		delete(c.docs, doc.name)
	}
	c.mu.Unlock()
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	var toOpen []*Doc
	if state == StateOK {
		for _, doc := range c.docs {
			if !doc.openSent {
				doc.openSent = true
				toOpen = append(toOpen, doc)
			}
		}
	}
	c.mu.Unlock()

	c.logger.Debug("transport state changed", "state", string(state))
	c.stateListeners.notify(state)
	for _, doc := range toOpen {
		c.sendOpen(doc)
	}
}

// run owns the connection lifecycle: connect, serve until the socket
// drops, wait a backoff interval, repeat.
func (c *Client) run() {
	defer close(c.done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.reconnectMin
	policy.MaxInterval = c.reconnectMax
	policy.MaxElapsedTime = 0
	policy.Clock = c.clock
	policy.Reset()

	for {
		c.setState(StateConnecting)
		conn, err := c.connect()
		if err == nil {
			policy.Reset()
			err = c.serve(conn)
		}

		var serverErr *ServerError
		if c.ctx.Err() != nil {
			c.stop(ErrClosed)
			return
		}
		if errors.As(err, &serverErr) {
			c.logger.Error("authentication rejected", "error", err)
			c.cancel()
			c.stop(err)
			return
		}
		switch kind, code := netutil.ClassifyDisconnect(err); kind {
		case netutil.DisconnectClosed:
			c.logger.Info("connection closed by server", "close_code", code)
		case netutil.DisconnectRefused:
			c.logger.Warn("server ended the session", "close_code", code, "error", err)
		default:
			c.logger.Warn("connection lost", "disconnect", kind.String(), "error", err)
		}

		// Listeners see the drop before outstanding opens fail, so an
		// open failing with ErrNotConnected is already superseded.
		c.setState(StateDisconnected)
		c.detachAll(ErrNotConnected)

		delay := policy.NextBackOff()
		c.logger.Debug("reconnecting", "delay", delay)
		select {
		case <-c.ctx.Done():
			c.stop(ErrClosed)
			return
		case <-c.clock.After(delay):
		}
	}
}

func (c *Client) stop(reason error) {
	c.detachAll(reason)
	c.setState(StateStopped)
}

func (c *Client) detachAll(reason error) {
	c.mu.Lock()
	docs := c.docs
	c.docs = make(map[string]*Doc)
	c.mu.Unlock()
	for _, doc := range docs {
		doc.detach(reason)
	}
}

// connect dials and authenticates. A *ServerError means the server
// rejected the credential.
func (c *Client) connect() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.handshakeTimeout)
	defer cancel()

	token, err := c.credential.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("sharejs: obtaining token: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("sharejs: dialing: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	if c.ctx.Err() != nil {
		conn.Close()
		return nil, ErrClosed
	}

	c.setState(StateHandshaking)

	// A failed auth send is handled like any other drop: the read below
	// fails and the reconnect loop takes over.
	if err := c.send(frame{"auth": token}); err != nil {
		c.logger.Debug("handshake send failed", "error", err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)
	reply, err := c.read(conn)
	if err != nil {
		c.closeConn(conn)
		return nil, fmt.Errorf("sharejs: handshake: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if !reply.has("auth") {
		c.closeConn(conn)
		return nil, errors.New("sharejs: handshake: reply has no auth field")
	}
	clientID, ok := reply.str("auth")
	if !ok {
		c.closeConn(conn)
		return nil, &ServerError{Message: reply.errorMessage()}
	}

	c.mu.Lock()
	c.clientID = clientID
	c.mu.Unlock()
	c.logger.Info("connected", "client_id", clientID)
	return conn, nil
}

// serve reports ok and dispatches frames until the socket fails.
func (c *Client) serve(conn *websocket.Conn) error {
	defer c.closeConn(conn)

	c.setState(StateOK)
	for {
		message, err := c.read(conn)
		if err != nil {
			return err
		}
		c.dispatch(message)
	}
}

func (c *Client) closeConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) read(conn *websocket.Conn) (frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var message frame
	if err := c.codec.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("sharejs: decoding frame: %w", err)
	}
	return message, nil
}

func (c *Client) send(message frame) error {
	data, err := c.codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("sharejs: encoding frame: %w", err)
	}
	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

func (c *Client) dispatch(message frame) {
	name, ok := message.str("doc")
	if !ok {
		c.logger.Debug("ignoring frame without doc", "keys", len(message))
		return
	}
	c.mu.Lock()
	doc := c.docs[name]
	c.mu.Unlock()
	if doc == nil {
		return
	}

	switch {
	case message.has("open"):
		if open, _ := message["open"].(bool); open {
			version, _ := message.integer("v")
			doc.handleOpened(version, message["snapshot"])
		} else if message.has("error") {
			c.forget(doc)
			doc.handleOpenFailed(&ServerError{Doc: name, Message: message.errorMessage()})
		}
	case message.has("shout"):
		if shout, ok := message["shout"].([]any); ok {
			doc.shoutListeners.notify(shout)
		}
	case message.has("op"):
		version, _ := message.integer("v")
		op, err := opFromWire(message["op"])
		if err != nil {
			c.logger.Warn("discarding malformed remote op", "doc", name, "error", err)
			return
		}
		doc.handleRemoteOp(version, op)
	case message.has("error"):
		doc.handleOpError(&ServerError{Doc: name, Message: message.errorMessage()})
	case message.has("v"):
		version, _ := message.integer("v")
		doc.handleAck(version)
	}
}
