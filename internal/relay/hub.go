package relay

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// EnsureChannel returns the live channel for ID, creating it if needed.
type EnsureChannel struct {
	ID    string
	Reply chan *Channel
}

type GetChannel struct {
	ID    string
	Reply chan *Channel
}

// RemoveChannel forgets Channel if it is still the one registered for its ID.
type RemoveChannel struct {
	Channel *Channel
}

type ListChannels struct {
	Reply chan []*Channel
}

type ShutdownHub struct{}

func (EnsureChannel) isHubMsg() {}
func (GetChannel) isHubMsg()    {}
func (RemoveChannel) isHubMsg() {}
func (ListChannels) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	log      *zap.Logger
	inbox    chan HubMsg
	channels map[string]*Channel
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:      log,
		inbox:    make(chan HubMsg, 64),
		channels: make(map[string]*Channel),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) post(ctx context.Context, msg HubMsg) bool {
	select {
	case h.inbox <- msg:
		return true
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Ensure returns the channel for id, or nil once the hub has stopped.
func (h *Hub) Ensure(ctx context.Context, id string) *Channel {
	reply := make(chan *Channel, 1)
	if !h.post(ctx, EnsureChannel{ID: id, Reply: reply}) {
		return nil
	}
	select {
	case ch := <-reply:
		return ch
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Channels snapshots the live channels sorted by ID.
func (h *Hub) Channels(ctx context.Context) []*Channel {
	reply := make(chan []*Channel, 1)
	if !h.post(ctx, ListChannels{Reply: reply}) {
		return nil
	}
	select {
	case chs := <-reply:
		return chs
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureChannel:
				// A stopped channel may linger until its RemoveChannel arrives.
				if ch := h.channels[msg.ID]; ch != nil && ch.ctx.Err() == nil {
					msg.Reply <- ch
					break
				}
				ch := NewChannel(h.ctx, msg.ID, h.log, h.retire)
				h.channels[msg.ID] = ch
				h.log.Info("channel opened", zap.String("channel", msg.ID))
				msg.Reply <- ch

			case GetChannel:
				msg.Reply <- h.channels[msg.ID] // may be nil

			case RemoveChannel:
				if h.channels[msg.Channel.ID()] == msg.Channel {
					delete(h.channels, msg.Channel.ID())
					h.log.Info("channel closed", zap.String("channel", msg.Channel.ID()))
				}

			case ListChannels:
				out := make([]*Channel, 0, len(h.channels))
				for _, ch := range h.channels {
					out = append(out, ch)
				}
				sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
				msg.Reply <- out

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// retire runs on the channel's goroutine, so it must not wait on the hub.
func (h *Hub) retire(ch *Channel) {
	go h.post(context.Background(), RemoveChannel{Channel: ch})
}

func (h *Hub) shutdown() {
	for _, ch := range h.channels {
		select {
		case ch.inbox <- Shutdown{}:
		case <-ch.Done():
		}
	}
	clear(h.channels)
	h.cancel()
}
