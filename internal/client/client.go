// Package client runs a live session: it owns the router, the relay
// connection and the heartbeat and reconnect timers, and serializes all of
// them on one event loop.
package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/live"
	"github.com/DoyleJ11/townsquare-live/internal/presence"
	"github.com/DoyleJ11/townsquare-live/internal/session"
	"github.com/DoyleJ11/townsquare-live/internal/transport"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

var ErrClosed = errors.New("client closed")

// Conn is an open relay connection.
type Conn interface {
	live.Transport
	// Listen blocks until the connection ends and reports its close code.
	Listen(ctx context.Context, onMessage func([]byte)) (code int, reason string)
	Close(code int, reason string) error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

func (f DialFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// Websocket dials the relay with a transport dialer.
func Websocket(d *transport.Dialer) Dialer {
	return DialFunc(func(ctx context.Context, url string) (Conn, error) {
		conn, err := d.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// Prefs persists who we are and which session we were in.
type Prefs interface {
	session.Prefs
	SetMembership(isGuest bool, sessionID string) error
}

type Options struct {
	Logger         *zap.Logger
	Clock          clockwork.Clock
	ServerURL      string
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	Dialer         Dialer
	Prefs          Prefs
	// Live configures the router; its Logger, Clock and Kick are set by the
	// client.
	Live live.Options
}

type Client struct {
	log  *zap.Logger
	opts Options

	inbox  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the loop goroutine.
	dir        *session.Directory
	router     *live.Router
	heartbeat  *presence.Heartbeat
	reconnect  *session.Reconnector
	conn       Conn
	connCancel context.CancelFunc
	attempt    uint64
}

func New(parent context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = presence.DefaultPingInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = session.DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		return nil, errors.New("client: no dialer")
	}

	dir := session.NewDirectory()
	if err := dir.EnsurePlayerID(opts.Prefs); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		log:    opts.Logger.Named("client"),
		opts:   opts,
		inbox:  make(chan func(), 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		dir:    dir,
	}

	lo := opts.Live
	lo.Logger = opts.Logger
	lo.Clock = opts.Clock
	lo.PingInterval = opts.PingInterval
	lo.Kick = c.leave
	c.router = live.New(dir, lo)
	c.heartbeat = presence.NewHeartbeat(opts.Clock, opts.PingInterval, c.post)
	c.reconnect = session.NewReconnector(opts.Clock, opts.ReconnectDelay, c.post)

	go c.loop()
	return c, nil
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.inbox:
			f()
		}
	}
}

// post queues f on the loop. It must not be called from the loop itself.
func (c *Client) post(f func()) {
	select {
	case c.inbox <- f:
	case <-c.ctx.Done():
	}
}

// do runs f on the loop and waits for it.
func (c *Client) do(f func()) error {
	finished := make(chan struct{})
	select {
	case c.inbox <- func() { f(); close(finished) }:
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Host opens a session as its storyteller.
func (c *Client) Host(sessionID string) error {
	return c.enter(false, sessionID)
}

// Join enters an existing session as a guest.
func (c *Client) Join(sessionID string) error {
	return c.enter(true, sessionID)
}

func (c *Client) enter(guest bool, sessionID string) error {
	var err error
	doErr := c.do(func() {
		if guest {
			c.dir.Join(sessionID)
		} else {
			c.dir.Host(sessionID)
		}
		if c.dir.SessionID == "" {
			err = session.ErrNoSession
			return
		}
		c.remember()
		c.connect()
	})
	return multierr.Append(doErr, err)
}

// Leave says goodbye and forgets the session.
func (c *Client) Leave() error {
	return c.do(c.leave)
}

// Disconnect drops the connection but keeps the session.
func (c *Client) Disconnect() error {
	return c.do(c.disconnect)
}

// RequestGamestate asks the host for a fresh snapshot.
func (c *Client) RequestGamestate() error {
	var err error
	doErr := c.do(func() {
		if c.conn == nil {
			err = session.ErrNotConnected
			return
		}
		c.router.RequestGamestate()
	})
	return multierr.Append(doErr, err)
}

// Do runs f against the router on the event loop.
func (c *Client) Do(f func(r *live.Router)) error {
	return c.do(func() { f(c.router) })
}

type Status struct {
	SessionID    string
	Role         session.Role
	State        session.State
	PlayerID     string
	ClaimedSeat  int
	PlayerCount  int
	Ping         int
	Reconnecting bool
	Phase        game.GamePhase
	Day          int
	Players      []game.Player
}

func (c *Client) Status() (Status, error) {
	var st Status
	err := c.do(func() {
		d := c.dir
		st = Status{
			SessionID:    d.SessionID,
			Role:         d.Role,
			State:        d.State,
			PlayerID:     d.PlayerID,
			ClaimedSeat:  d.ClaimedSeat,
			PlayerCount:  d.PlayerCount,
			Ping:         d.Ping,
			Reconnecting: d.Reconnecting,
			Phase:        c.router.Grimoire.GamePhase(),
			Day:          c.router.Grimoire.DayCount(),
			Players:      append([]game.Player(nil), c.router.Roster.Players()...),
		}
	})
	return st, err
}

// Close leaves the session, stops the loop and releases the preferences.
func (c *Client) Close() error {
	err := c.do(c.disconnect)
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	c.cancel()
	<-c.done
	if closer, ok := c.opts.Prefs.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

func (c *Client) remember() {
	if c.opts.Prefs == nil {
		return
	}
	if err := c.opts.Prefs.SetMembership(!c.dir.IsHost(), c.dir.SessionID); err != nil {
		c.log.Warn("save membership", zap.Error(err))
	}
}

// connect replaces any current connection with a fresh attempt.
func (c *Client) connect() {
	c.disconnect()
	url, err := session.URL(c.opts.ServerURL, c.dir.SessionID, c.dir.Identity())
	if err != nil {
		c.log.Error("relay url", zap.Error(err))
		return
	}
	c.dir.State = session.Connecting
	ctx, cancel := context.WithCancel(c.ctx)
	c.connCancel = cancel
	c.attempt++
	go c.dial(ctx, c.attempt, url)
}

func (c *Client) dial(ctx context.Context, attempt uint64, url string) {
	conn, err := c.opts.Dialer.Dial(ctx, url)
	if err != nil {
		c.log.Debug("dial failed", zap.String("url", url), zap.Error(err))
		c.post(func() { c.closed(attempt, transport.CloseAbnormal, "") })
		return
	}
	c.post(func() { c.opened(attempt, conn) })
	code, reason := conn.Listen(ctx, func(data []byte) {
		c.post(func() {
			if attempt == c.attempt {
				c.router.HandleMessage(data)
			}
		})
	})
	c.post(func() { c.closed(attempt, code, reason) })
}

func (c *Client) opened(attempt uint64, conn Conn) {
	if attempt != c.attempt {
		_ = conn.Close(wire.CloseIntentional, "")
		return
	}
	c.log.Info("connected", zap.String("session", c.dir.SessionID), zap.Stringer("role", c.dir.Role))
	c.conn = conn
	c.dir.State = session.Connected
	c.dir.Reconnecting = false
	c.router.Attach(conn)
	c.router.OnOpen()
	c.heartbeat.Start(c.router.Ping)
}

// closed handles the end of a connection. An intentional close ends the
// session; anything else schedules a single reconnect.
func (c *Client) closed(attempt uint64, code int, reason string) {
	if attempt != c.attempt {
		return
	}
	c.heartbeat.Stop()
	c.router.Detach()
	c.conn = nil
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}

	if code == wire.CloseIntentional {
		c.log.Info("session closed", zap.String("reason", reason))
		c.dir.State = session.Disconnected
		c.leave()
		if reason != "" {
			c.router.Alert(reason)
		}
		return
	}
	c.log.Info("connection lost, reconnecting", zap.Int("code", code), zap.Duration("delay", c.opts.ReconnectDelay))
	c.router.ResetPresence()
	c.dir.State = session.Reconnecting
	c.dir.Reconnecting = true
	c.reconnect.Schedule(c.connect)
}

// disconnect tears the connection down on purpose. Guests say goodbye first.
func (c *Client) disconnect() {
	c.router.ResetPresence()
	c.dir.Reconnecting = false
	c.reconnect.Cancel()
	c.heartbeat.Stop()
	c.attempt++
	if c.conn != nil {
		c.router.Bye()
		if err := c.conn.Close(wire.CloseIntentional, ""); err != nil {
			c.log.Debug("close", zap.Error(err))
		}
		c.router.Detach()
		c.conn = nil
	}
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	c.dir.State = session.Disconnected
	c.router.Grimoire.RevertLocale()
}

func (c *Client) leave() {
	c.disconnect()
	c.dir.Leave()
	c.remember()
}
