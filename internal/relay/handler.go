package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/townsquare-live/internal/session"
)

type Options struct {
	Logger         *zap.Logger
	OriginPatterns []string
	MaxMessageSize int64
	// ReadTimeout bounds the silence allowed between frames.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PingInterval paces websocket pings used to measure latency.
	PingInterval time.Duration
	OutboxSize   int
	// RateLimit and RateBurst cap inbound frames per member.
	RateLimit rate.Limit
	RateBurst int
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 10 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 64
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 40
	}
}

// Handler upgrades /{session}/{identity} to a websocket and joins the caller
// to that session's channel.
func Handler(h *Hub, opts Options) http.HandlerFunc {
	opts.defaults()
	return func(w http.ResponseWriter, r *http.Request) {
		id := session.NormalizeID(chi.URLParam(r, "session"))
		identity := chi.URLParam(r, "identity")
		if id == "" || identity == "" {
			http.Error(w, "missing session or identity", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			opts.Logger.Debug("upgrade failed", zap.Error(err))
			return
		}
		conn.SetReadLimit(opts.MaxMessageSize)
		log := opts.Logger.With(zap.String("channel", id), zap.String("identity", identity))

		m := NewMember(identity, opts.OutboxSize)
		ch, err := join(r.Context(), h, id, m)
		switch {
		case errors.Is(err, ErrHostTaken):
			conn.Close(websocket.StatusNormalClosure, fmt.Sprintf("The channel %q already has a host.", id))
			return
		case err != nil:
			log.Debug("join failed", zap.Error(err))
			conn.Close(websocket.StatusGoingAway, "")
			return
		}
		log = log.With(zap.String("conn", m.ConnID))
		log.Info("member connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writeLoop(ctx, conn, m, opts.WriteTimeout)
		go pingLoop(ctx, conn, ch, m, opts.PingInterval)

		err = readLoop(ctx, conn, ch, m, opts)
		log.Info("member disconnected", zap.Int("status", int(websocket.CloseStatus(err))))
		leave := context.Background()
		_ = ch.Post(leave, Leave{Member: m})
	}
}

// join retries once when it races a channel shutting down after its last
// member left.
func join(ctx context.Context, h *Hub, id string, m *Member) (*Channel, error) {
	for range 2 {
		ch := h.Ensure(ctx, id)
		if ch == nil {
			return nil, ErrChannelClosed
		}
		err := ch.Join(ctx, m)
		if errors.Is(err, ErrChannelClosed) {
			continue
		}
		return ch, err
	}
	return nil, ErrChannelClosed
}

// writeLoop drains the outbox and closes the socket with the status the
// channel chose once the outbox is closed.
func writeLoop(ctx context.Context, conn *websocket.Conn, m *Member, timeout time.Duration) {
	for data := range m.Outbox {
		wctx, cancel := context.WithTimeout(ctx, timeout)
		err := conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return
		}
	}
	conn.Close(m.CloseStatus())
}

// pingLoop reports half the websocket round trip as the member's latency.
func pingLoop(ctx context.Context, conn *websocket.Conn, ch *Channel, m *Member, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		start := time.Now()
		pctx, cancel := context.WithTimeout(ctx, every)
		err := conn.Ping(pctx)
		cancel()
		if err != nil {
			return
		}
		millis := int(time.Since(start).Milliseconds() / 2)
		if millis < 1 {
			millis = 1
		}
		if ch.Post(ctx, Latency{Member: m, Millis: millis}) != nil {
			return
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, ch *Channel, m *Member, opts Options) error {
	limiter := rate.NewLimiter(opts.RateLimit, opts.RateBurst)
	for {
		rctx, cancel := context.WithTimeout(ctx, opts.ReadTimeout)
		typ, data, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if !limiter.Allow() {
			conn.Close(websocket.StatusPolicyViolation, "too many messages")
			return errors.New("rate limited")
		}
		if err := ch.Post(ctx, FromMember{Member: m, Data: data}); err != nil {
			return err
		}
	}
}
