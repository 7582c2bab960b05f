// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/fieldsync/fieldsync/lib/clock"
	"github.com/fieldsync/fieldsync/lib/codec"
	"github.com/fieldsync/fieldsync/lib/credential"
	"github.com/fieldsync/fieldsync/lib/signal"
	"github.com/fieldsync/fieldsync/sharejs"
)

// ConnectionConfig configures Dial.
type ConnectionConfig struct {
	// Scheme is "wss:" or "ws:". Default: "wss:".
	Scheme string

	// Host is the collaboration server host, optionally with a port.
	Host string

	// SpaceID is the space whose documents this connection opens.
	SpaceID string

	// Credential supplies the access token for the auth handshake.
	Credential credential.Supplier

	// Codec, ReconnectMin, ReconnectMax, HandshakeTimeout and Clock are
	// passed to the transport. Zero values select its defaults.
	Codec            codec.Codec
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	HandshakeTimeout time.Duration
	Clock            clock.Clock

	// Scheduler serializes state updates. Default: a new scheduler.
	Scheduler *signal.Scheduler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ChannelURL returns the transport URL for a space:
// "{scheme}//{host}/spaces/{spaceID}/channel".
func ChannelURL(scheme, host, spaceID string) string {
	return scheme + "//" + host + "/spaces/" + url.PathEscape(spaceID) + "/channel"
}

// Connection is one session with the collaboration server for a space.
type Connection struct {
	transport Transport
	spaceID   string
	scheduler *signal.Scheduler
	logger    *slog.Logger

	state          *signal.Signal[ConnectionState]
	removeListener func()

	// Owned by the scheduler.
	seenConnecting bool
}

// Option configures NewConnection.
type Option func(*Connection)

// WithScheduler sets the scheduler that owns the connection's signals.
func WithScheduler(scheduler *signal.Scheduler) Option {
	return func(c *Connection) {
		c.scheduler = scheduler
	}
}

// WithLogger sets the connection's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// Dial opens a transport to the collaboration server and returns
// without waiting for it to connect. The connection is closed when ctx
// ends.
func Dial(ctx context.Context, config ConnectionConfig) (*Connection, error) {
	if config.Host == "" {
		return nil, errors.New("collab: Host is required")
	}
	if config.SpaceID == "" {
		return nil, errors.New("collab: SpaceID is required")
	}
	scheme := config.Scheme
	if scheme == "" {
		scheme = "wss:"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := sharejs.NewClient(sharejs.Config{
		URL:              ChannelURL(scheme, config.Host, config.SpaceID),
		Credential:       config.Credential,
		Codec:            config.Codec,
		ReconnectMin:     config.ReconnectMin,
		ReconnectMax:     config.ReconnectMax,
		HandshakeTimeout: config.HandshakeTimeout,
		Clock:            config.Clock,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("collab: %w", err)
	}

	options := []Option{WithLogger(logger)}
	if config.Scheduler != nil {
		options = append(options, WithScheduler(config.Scheduler))
	}
	connection := NewConnection(ShareJSTransport{Client: client}, config.SpaceID, options...)
	client.Start()
	context.AfterFunc(ctx, connection.Close)
	return connection, nil
}

// NewConnection wraps a transport. The transport should already be
// connecting; its current state is sampled immediately.
func NewConnection(transport Transport, spaceID string, options ...Option) *Connection {
	c := &Connection{
		transport: transport,
		spaceID:   spaceID,
	}
	for _, option := range options {
		option(c)
	}
	if c.scheduler == nil {
		c.scheduler = signal.NewScheduler()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("space_id", spaceID)

	c.state = signal.New(c.scheduler, Connecting, signal.SkipEqual[ConnectionState]())
	c.removeListener = transport.OnState(func(raw sharejs.State) {
		c.scheduler.Do(func() { c.apply(raw) })
	})
	c.scheduler.Do(func() { c.apply(transport.State()) })
	return c
}

// apply maps a raw transport state onto the connection state. The
// first raw "connecting" is the initial connect; every later one is a
// reconnect and reads as Disconnected.
func (c *Connection) apply(raw sharejs.State) {
	var next ConnectionState
	switch raw {
	case sharejs.StateConnecting:
		if c.seenConnecting {
			next = Disconnected
		} else {
			c.seenConnecting = true
			next = Connecting
		}
	case sharejs.StateHandshaking:
		next = Handshaking
	case sharejs.StateOK:
		next = Ok
	case sharejs.StateDisconnected:
		next = Disconnected
	case sharejs.StateStopped:
		next = Stopped
	default:
		c.logger.Warn("ignoring unknown transport state", "transport_state", string(raw))
		return
	}
	if next != c.state.Get() {
		c.logger.Debug("connection state changed", "connection_state", next.String())
	}
	c.state.Set(next)
}

// SpaceID returns the space this connection serves.
func (c *Connection) SpaceID() string { return c.spaceID }

// Scheduler returns the scheduler that owns the connection's signals.
// Signals passed to DocLoader must be created on it.
func (c *Connection) Scheduler() *signal.Scheduler { return c.scheduler }

// State returns the de-duplicated connection state signal.
func (c *Connection) State() *signal.Signal[ConnectionState] { return c.state }

// Close disconnects the transport. The state becomes Stopped. Loaders
// already created stay alive and report the loss like any other.
func (c *Connection) Close() {
	c.transport.Close()
}

// DocLoader returns a loader for the entity's document. The document is
// wanted open whenever readOnly is false; a nil readOnly means always.
// The loader is destroyed when ctx ends.
func (c *Connection) DocLoader(ctx context.Context, entity Entity, readOnly *signal.Signal[bool]) (*DocLoader, error) {
	key, err := DocKey(c.spaceID, entity)
	if err != nil {
		return nil, err
	}
	if readOnly == nil {
		readOnly = signal.Const(c.scheduler, false)
	}
	shouldOpen, stopShouldOpen := signal.Map(readOnly, func(readOnly bool) bool { return !readOnly },
		signal.SkipEqual[bool]())

	loader := newDocLoader(key, c.state, shouldOpen, c.transport, c.logger)
	loader.onDestroy = stopShouldOpen
	context.AfterFunc(ctx, loader.Destroy)
	return loader, nil
}

// OpenedDoc is a document opened with Connection.Open. Destroy closes
// it and releases its loader.
type OpenedDoc struct {
	Doc     RawDoc
	Destroy func()
}

// Open opens the entity's document and waits until it is available.
// It returns the load error if the document fails to open first, and
// nil with no error if the connection stopped. Open blocks and must not
// be called from a scheduler task.
func (c *Connection) Open(ctx context.Context, entity Entity) (*OpenedDoc, error) {
	loaderCtx, destroy := context.WithCancel(context.Background())
	loader, err := c.DocLoader(loaderCtx, entity, nil)
	if err != nil {
		destroy()
		return nil, err
	}

	settled := make(chan DocLoadState, 1)
	var once sync.Once
	unsubscribe := loader.State().Subscribe(func(state DocLoadState) {
		if _, pending := state.(LoadPending); pending {
			return
		}
		once.Do(func() { settled <- state })
	})
	defer unsubscribe()

	select {
	case state := <-settled:
		switch state := state.(type) {
		case LoadDoc:
			return &OpenedDoc{Doc: state.Doc, Destroy: destroy}, nil
		case LoadError:
			destroy()
			return nil, state.Err
		case LoadNone:
			destroy()
			return nil, nil
		default:
			destroy()
			return nil, fmt.Errorf("collab: unexpected load state %v", state)
		}
	case <-ctx.Done():
		destroy()
		return nil, ctx.Err()
	}
}
