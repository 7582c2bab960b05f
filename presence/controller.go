// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"errors"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/contentapi"
	"github.com/fieldsync/fieldsync/lib/clock"
	"github.com/fieldsync/fieldsync/lib/signal"
)

const (
	DefaultFocusThrottle = 10 * time.Second
	DefaultPingTimeout   = 60 * time.Second
)

// Message kinds.
const (
	kindOpen  = "open"
	kindPing  = "ping"
	kindFocus = "focus"
	kindClose = "close"
)

// Config configures a Controller.
type Config struct {
	// UserID identifies the local user in outgoing messages. Required.
	UserID string

	// FocusThrottle suppresses repeating the same focus within the
	// window. Defaults to DefaultFocusThrottle.
	FocusThrottle time.Duration

	// PingTimeout is how long a silent peer is kept, and the sweep
	// interval. Defaults to DefaultPingTimeout.
	PingTimeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Scheduler owns the projection signal. Use the connection's
	// scheduler so channel changes and presence updates share one
	// order. Defaults to a new scheduler.
	Scheduler *signal.Scheduler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// FieldPresence lists the users focused on one field path.
type FieldPresence struct {
	Users []contentapi.Link `json:"users"`
}

// Projection is the presence view handed to the editing UI. Users
// holds everyone present; Fields only those with a focus. Both are
// sorted by user id.
type Projection struct {
	Fields map[string]FieldPresence `json:"fields"`
	Users  []contentapi.Link        `json:"users"`
}

// UserLink returns the link to a user.
func UserLink(id string) contentapi.Link {
	return contentapi.Link{Sys: contentapi.LinkSys{Type: "Link", LinkType: "User", ID: id}}
}

type peer struct {
	focus     string
	shoutedAt time.Time
}

// Controller tracks presence on whichever document channel it is
// watching.
type Controller struct {
	userID    string
	throttle  time.Duration
	timeout   time.Duration
	clock     clock.Clock
	scheduler *signal.Scheduler
	logger    *slog.Logger

	projection *signal.Signal[Projection]

	// Owned by the scheduler.
	peers       map[string]peer
	channel     collab.Channel
	removeShout func()
	focus       string
	focusSentAt time.Time
	stopWatch   func()
	sweep       *clock.Timer
	heartbeat   *clock.Timer
	destroyed   bool
}

// New returns a Controller with no channel. Its sweep starts at once.
func New(config Config) (*Controller, error) {
	if config.UserID == "" {
		return nil, errors.New("presence: UserID is required")
	}
	c := &Controller{
		userID:    config.UserID,
		throttle:  config.FocusThrottle,
		timeout:   config.PingTimeout,
		clock:     config.Clock,
		scheduler: config.Scheduler,
		logger:    config.Logger,
		peers:     make(map[string]peer),
	}
	if c.throttle <= 0 {
		c.throttle = DefaultFocusThrottle
	}
	if c.timeout <= 0 {
		c.timeout = DefaultPingTimeout
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.scheduler == nil {
		c.scheduler = signal.NewScheduler()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("user_id", c.userID)

	c.projection = signal.New(c.scheduler, project(c.peers),
		signal.SkipDuplicates(func(a, b Projection) bool { return reflect.DeepEqual(a, b) }))
	c.sweep = c.clock.AfterFunc(c.timeout, c.onSweep)
	c.heartbeat = c.clock.AfterFunc(c.heartbeatInterval(), c.onHeartbeat)
	return c, nil
}

// Projection returns the presence projection signal.
func (c *Controller) Projection() *signal.Signal[Projection] { return c.projection }

// Watch follows the channel held by channels: every change leaves the
// previous channel and joins the new one. Calling Watch again replaces
// the previous subscription. The returned function stops following
// without leaving the current channel.
func (c *Controller) Watch(channels *signal.Signal[collab.Channel]) (stop func()) {
	unsubscribe := channels.Subscribe(func(channel collab.Channel) {
		c.scheduler.Do(func() { c.switchChannel(channel) })
	})
	c.scheduler.Do(func() {
		if c.destroyed {
			unsubscribe()
			return
		}
		if c.stopWatch != nil {
			c.stopWatch()
		}
		c.stopWatch = unsubscribe
	})
	return unsubscribe
}

// SetFocus announces that the local user is editing path. Repeating
// the current path within the throttle window sends nothing.
func (c *Controller) SetFocus(path string) {
	c.scheduler.Do(func() {
		if c.destroyed {
			return
		}
		now := c.clock.Now()
		if path == c.focus && !c.focusSentAt.IsZero() && now.Sub(c.focusSentAt) < c.throttle {
			return
		}
		c.focus = path
		if c.channel == nil {
			return
		}
		c.focusSentAt = now
		c.shout(kindFocus, path)
	})
}

// Leave tells the current channel's peers that the local user left,
// as when the editor closes. The controller keeps listening.
func (c *Controller) Leave() {
	c.scheduler.Do(func() {
		if c.channel != nil {
			c.shout(kindClose)
		}
	})
}

// Destroy leaves the current channel, stops watching and stops the
// sweep. The projection signal ends.
func (c *Controller) Destroy() {
	c.scheduler.Do(func() {
		if c.destroyed {
			return
		}
		c.destroyed = true
		if c.stopWatch != nil {
			c.stopWatch()
			c.stopWatch = nil
		}
		c.switchChannel(nil)
		c.sweep.Stop()
		c.heartbeat.Stop()
		c.projection.End()
		c.logger.Debug("presence controller destroyed")
	})
}

func (c *Controller) switchChannel(next collab.Channel) {
	if next == c.channel || (c.destroyed && next != nil) {
		return
	}
	if c.channel != nil {
		c.removeShout()
		c.removeShout = nil
		c.shout(kindClose)
	}
	clear(c.peers)
	c.publish()

	c.channel = next
	c.focusSentAt = time.Time{}
	if next == nil {
		return
	}
	c.removeShout = next.OnShout(func(message []any) {
		c.scheduler.Do(func() { c.receive(next, message) })
	})
	c.shout(kindOpen)
}

func (c *Controller) receive(from collab.Channel, message []any) {
	if from != c.channel || len(message) < 2 {
		return
	}
	kind, _ := message[0].(string)
	user, ok := message[1].(string)
	if !ok || user == "" {
		c.logger.Debug("ignoring presence message without user", "kind", kind)
		return
	}
	now := c.clock.Now()

	switch kind {
	case kindOpen:
		c.peers[user] = peer{shoutedAt: now}
		if c.focus != "" {
			c.focusSentAt = now
			c.shout(kindFocus, c.focus)
		} else {
			c.shout(kindPing)
		}
	case kindPing:
		record := c.peers[user]
		record.shoutedAt = now
		c.peers[user] = record
	case kindFocus:
		path, _ := focusPath(message)
		c.peers[user] = peer{focus: path, shoutedAt: now}
	case kindClose:
		delete(c.peers, user)
	default:
		c.logger.Debug("ignoring unknown presence message", "kind", kind)
		return
	}
	c.publish()
}

// focusPath returns the path carried by a focus message.
func focusPath(message []any) (string, bool) {
	if len(message) < 3 {
		return "", false
	}
	path, ok := message[2].(string)
	return path, ok
}

func (c *Controller) onSweep() {
	c.scheduler.Do(func() {
		if c.destroyed {
			return
		}
		now := c.clock.Now()
		evicted := 0
		for user, record := range c.peers {
			if now.Sub(record.shoutedAt) > c.timeout {
				delete(c.peers, user)
				evicted++
			}
		}
		if evicted > 0 {
			c.logger.Debug("evicted silent peers", "peers", evicted)
			c.publish()
		}
		c.sweep = c.clock.AfterFunc(c.timeout, c.onSweep)
	})
}

// onHeartbeat keeps the local user alive in peers' sweeps while they
// are not moving focus.
func (c *Controller) onHeartbeat() {
	c.scheduler.Do(func() {
		if c.destroyed {
			return
		}
		if c.channel != nil {
			c.shout(kindPing)
		}
		c.heartbeat = c.clock.AfterFunc(c.heartbeatInterval(), c.onHeartbeat)
	})
}

func (c *Controller) heartbeatInterval() time.Duration {
	if interval := c.timeout / 2; interval > 0 {
		return interval
	}
	return c.timeout
}

func (c *Controller) shout(kind string, extra ...any) {
	message := append([]any{kind, c.userID}, extra...)
	if err := c.channel.Shout(message); err != nil {
		c.logger.Debug("presence message not sent", "kind", kind, "error", err)
	}
}

func (c *Controller) publish() {
	c.projection.Set(project(c.peers))
}

func project(peers map[string]peer) Projection {
	projection := Projection{
		Fields: make(map[string]FieldPresence),
		Users:  make([]contentapi.Link, 0, len(peers)),
	}
	for _, user := range slices.Sorted(maps.Keys(peers)) {
		link := UserLink(user)
		projection.Users = append(projection.Users, link)
		if focus := peers[user].focus; focus != "" {
			field := projection.Fields[focus]
			field.Users = append(field.Users, link)
			projection.Fields[focus] = field
		}
	}
	return projection
}
