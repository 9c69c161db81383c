// Package transport is the client side of the relay connection: a websocket
// with a queued writer and close codes surfaced to the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var (
	ErrClosed    = errors.New("connection closed")
	ErrQueueFull = errors.New("write queue full")
)

// CloseAbnormal is reported when the connection dropped without a close frame.
const CloseAbnormal = int(websocket.StatusAbnormalClosure)

type Options struct {
	Logger         *zap.Logger
	WriteTimeout   time.Duration
	MaxMessageSize int64
	QueueSize      int
}

// Dialer opens relay connections.
type Dialer struct {
	opts Options
}

func NewDialer(opts Options) *Dialer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Dialer{opts: opts}
}

func (d *Dialer) Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(d.opts.MaxMessageSize)

	c := &Conn{
		ws:      ws,
		log:     d.opts.Logger.Named("transport"),
		timeout: d.opts.WriteTimeout,
		out:     make(chan []byte, d.opts.QueueSize),
		done:    make(chan struct{}),
	}
	c.open.Store(true)
	go c.writer()
	return c, nil
}

type Conn struct {
	ws      *websocket.Conn
	log     *zap.Logger
	timeout time.Duration
	out     chan []byte
	done    chan struct{}

	open      atomic.Bool
	closeOnce sync.Once
	// localCode is the code we closed with, reported instead of whatever the
	// read loop sees afterwards.
	localCode   atomic.Int32
	localReason atomic.Value
}

func (c *Conn) IsOpen() bool { return c.open.Load() }

// Write queues one text frame. It never blocks.
func (c *Conn) Write(data []byte) error {
	if !c.IsOpen() {
		return ErrClosed
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Conn) writer() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			err := c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.open.Store(false)
				return
			}
		}
	}
}

// Close sends a close frame with code and reason. Frames still queued are
// dropped.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.localCode.Store(int32(code))
		c.localReason.Store(reason)
		c.open.Store(false)
		close(c.done)
		err = c.ws.Close(websocket.StatusCode(code), reason)
	})
	return err
}

// Listen reads frames until the connection ends and returns how it ended.
// A drop without a close frame reports CloseAbnormal.
func (c *Conn) Listen(ctx context.Context, onMessage func([]byte)) (code int, reason string) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err == nil {
			onMessage(data)
			continue
		}
		c.open.Store(false)
		c.closeOnce.Do(func() { close(c.done) })

		if local := int(c.localCode.Load()); local != 0 {
			reason, _ := c.localReason.Load().(string)
			return local, reason
		}
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return int(ce.Code), ce.Reason
		}
		c.log.Debug("connection lost", zap.Error(err))
		return CloseAbnormal, ""
	}
}
