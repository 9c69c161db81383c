package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

var (
	ErrHostTaken     = errors.New("channel already has a host")
	ErrChannelClosed = errors.New("channel closed")
)

type ChannelMsg interface{ isChannelMsg() }

type Join struct {
	Member *Member
	Reply  chan error
}

func (Join) isChannelMsg() {}

type Leave struct{ Member *Member }

func (Leave) isChannelMsg() {}

// FromMember is one frame read from a member's socket.
type FromMember struct {
	Member *Member
	Data   []byte
}

func (FromMember) isChannelMsg() {}

// Latency reports a member's measured one-way latency.
type Latency struct {
	Member *Member
	Millis int
}

func (Latency) isChannelMsg() {}

type Shutdown struct{}

func (Shutdown) isChannelMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isChannelMsg() {}

type View struct {
	ID      string         `json:"id"`
	Host    bool           `json:"host"`
	Members []string       `json:"members"`
	Latency map[string]int `json:"latency"`
}

// Member is one socket in a channel. Outbox is closed by the channel when the
// member is removed; CloseStatus then says how the socket should be closed.
type Member struct {
	Identity string
	ConnID   string
	Outbox   chan []byte

	// Owned by the channel loop.
	latency     int
	closeCode   websocket.StatusCode
	closeReason string
}

func NewMember(identity string, buffer int) *Member {
	return &Member{
		Identity:  identity,
		ConnID:    uuid.NewString(),
		Outbox:    make(chan []byte, buffer),
		closeCode: websocket.StatusNormalClosure,
	}
}

func (m *Member) IsHost() bool { return m.Identity == wire.HostID }

// CloseStatus is only meaningful once Outbox has been closed.
func (m *Member) CloseStatus() (websocket.StatusCode, string) {
	return m.closeCode, m.closeReason
}

// Channel relays frames between the host and guests of one session.
type Channel struct {
	id      string
	log     *zap.Logger
	inbox   chan ChannelMsg
	members map[string]*Member
	onEmpty func(*Channel)
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewChannel(parent context.Context, id string, log *zap.Logger, onEmpty func(*Channel)) *Channel {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	c := &Channel{
		id:      id,
		log:     log.With(zap.String("channel", id)),
		inbox:   make(chan ChannelMsg, 64),
		members: make(map[string]*Member),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.loop()
	return c
}

func (c *Channel) ID() string { return c.id }

// Inbox exposes the channel's mailbox to the socket layer and tests.
func (c *Channel) Inbox() chan<- ChannelMsg { return c.inbox }

// Done is closed once the channel stops.
func (c *Channel) Done() <-chan struct{} { return c.ctx.Done() }

// Post delivers msg unless the channel has stopped.
func (c *Channel) Post(ctx context.Context, msg ChannelMsg) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds m and waits for the channel to accept it.
func (c *Channel) Join(ctx context.Context, m *Member) error {
	reply := make(chan error, 1)
	if err := c.Post(ctx, Join{Member: m, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.Post(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.ctx.Done():
		return View{}, ErrChannelClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (c *Channel) loop() {
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- c.join(msg.Member)

			case Leave:
				c.remove(msg.Member, websocket.StatusNormalClosure, "")
				c.checkEmpty()

			case FromMember:
				if c.members[msg.Member.Identity] == msg.Member {
					c.route(msg.Member, msg.Data)
				}

			case Latency:
				msg.Member.latency = msg.Millis

			case GetState:
				msg.Reply <- c.view()

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Channel) join(m *Member) error {
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}
	old := c.members[m.Identity]
	if old != nil && m.IsHost() {
		c.log.Info("rejected second host", zap.String("conn", m.ConnID))
		return ErrHostTaken
	}
	if old != nil {
		c.remove(old, websocket.StatusNormalClosure, "You connected to this session from somewhere else.")
	}
	c.members[m.Identity] = m
	c.log.Debug("member joined", zap.String("identity", m.Identity), zap.String("conn", m.ConnID))
	return nil
}

// remove drops m if it is still the current member for its identity and
// closes its outbox.
func (c *Channel) remove(m *Member, code websocket.StatusCode, reason string) {
	if c.members[m.Identity] != m {
		return
	}
	delete(c.members, m.Identity)
	m.closeCode, m.closeReason = code, reason
	close(m.Outbox)
}

// checkEmpty stops a channel whose last member left. Joins racing the stop
// see ErrChannelClosed and go back to the hub for a fresh channel.
func (c *Channel) checkEmpty() {
	if len(c.members) > 0 {
		return
	}
	c.cancel()
	if c.onEmpty != nil {
		c.onEmpty(c)
	}
}

// route forwards a frame. Direct envelopes go to their named recipients; pings
// only travel between the host and guests and carry the guest side's
// latency; everything else reaches every other member.
func (c *Channel) route(from *Member, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		c.log.Debug("dropping undecodable frame", zap.String("identity", from.Identity), zap.Error(err))
		return
	}
	switch msg.Tag {
	case wire.TagDirect:
		env, err := wire.DecodeDirect(msg.Payload)
		if err != nil {
			c.log.Debug("dropping bad envelope", zap.Error(err))
			return
		}
		for target, inner := range env {
			if to := c.members[target]; to != nil && to != from {
				c.deliver(to, inner)
			}
		}

	case wire.TagPing:
		if !from.IsHost() {
			if host := c.members[wire.HostID]; host != nil {
				c.deliver(host, withLatency(msg, from.latency))
			}
			return
		}
		for _, to := range c.members {
			if to != from {
				c.deliver(to, withLatency(msg, to.latency))
			}
		}

	default:
		for _, to := range c.members {
			if to != from {
				c.deliver(to, data)
			}
		}
	}
}

// deliver drops members that cannot keep up.
func (c *Channel) deliver(to *Member, data []byte) {
	select {
	case to.Outbox <- data:
	default:
		c.log.Warn("dropping slow member", zap.String("identity", to.Identity))
		c.remove(to, websocket.StatusGoingAway, "")
	}
}

// withLatency swaps the latency placeholder in a ping for a measured value.
// Without a measurement the placeholder stays.
func withLatency(msg wire.Message, millis int) []byte {
	var parts []json.RawMessage
	if millis <= 0 || json.Unmarshal(msg.Payload, &parts) != nil {
		return encodeRaw(msg)
	}
	placeholder := fmt.Sprintf("%q", wire.LatencyPlaceholder)
	for i, p := range parts {
		if string(p) == placeholder {
			parts[i] = json.RawMessage(fmt.Sprint(millis))
		}
	}
	data, err := wire.Encode(msg.Tag, parts)
	if err != nil {
		return encodeRaw(msg)
	}
	return data
}

func encodeRaw(msg wire.Message) []byte {
	data, _ := json.Marshal([2]any{msg.Tag, msg.Payload})
	return data
}

func (c *Channel) view() View {
	v := View{ID: c.id, Members: []string{}, Latency: map[string]int{}}
	for id, m := range c.members {
		if m.IsHost() {
			v.Host = true
		}
		v.Members = append(v.Members, id)
		if m.latency > 0 {
			v.Latency[id] = m.latency
		}
	}
	sort.Strings(v.Members)
	return v
}

func (c *Channel) shutdown() {
	for _, m := range c.members {
		c.remove(m, websocket.StatusGoingAway, "")
	}
	c.cancel()
}
