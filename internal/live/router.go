// Package live is the message router of a live session. It owns the state
// stores, turns their local edits into frames and applies incoming frames
// under the role rules of the protocol.
package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/townsquare-live/internal/chat"
	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/grimoire"
	"github.com/DoyleJ11/townsquare-live/internal/presence"
	"github.com/DoyleJ11/townsquare-live/internal/reconcile"
	"github.com/DoyleJ11/townsquare-live/internal/roster"
	"github.com/DoyleJ11/townsquare-live/internal/session"
	"github.com/DoyleJ11/townsquare-live/internal/voting"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

// Transport is the duplex channel to the relay.
type Transport interface {
	IsOpen() bool
	Write(data []byte) error
}

type Sounds interface {
	Play(sound string)
}

// Alerter shows a message the user has to acknowledge.
type Alerter interface {
	Alert(msg string)
}

type Options struct {
	Logger       *zap.Logger
	Clock        clockwork.Clock
	Catalog      grimoire.Catalog
	Locale       string
	Texts        voting.Texts
	HostName     string
	PingInterval time.Duration
	Sounds       Sounds
	Alerter      Alerter
	// Kick ends the session from inside a handler, e.g. when the host's
	// script cannot be loaded.
	Kick func()
}

type Router struct {
	log       *zap.Logger
	dir       *session.Directory
	transport Transport
	sounds    Sounds
	alerter   Alerter
	kick      func()

	Roster   *roster.Roster
	Voting   *voting.Store
	Grimoire *grimoire.Store
	Chat     *chat.Store
	Presence *presence.Tracker
}

func New(dir *session.Directory, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HostName == "" {
		opts.HostName = "Host"
	}
	r := &Router{
		log:     opts.Logger.Named("live"),
		dir:     dir,
		sounds:  opts.Sounds,
		alerter: opts.Alerter,
		kick:    opts.Kick,
	}
	r.Roster = roster.New(r)
	r.Grimoire = grimoire.New(r, r, opts.Catalog, opts.Locale)
	r.Voting = voting.New(r, r.Roster, r.Grimoire, voting.Options{
		Clock: opts.Clock,
		Texts: opts.Texts,
		Self:  func() string { return dir.PlayerID },
	})
	r.Chat = chat.New(r, opts.Clock, r.playerName, opts.HostName)
	r.Presence = presence.NewTracker(opts.Clock, opts.PingInterval)
	return r
}

func (r *Router) Directory() *session.Directory { return r.dir }

func (r *Router) IsHost() bool { return r.dir.IsHost() }

// State groups the stores for snapshot building and applying.
func (r *Router) State() reconcile.State {
	return reconcile.State{Roster: r.Roster, Voting: r.Voting, Grimoire: r.Grimoire}
}

// Attach routes outgoing frames to t until Detach.
func (r *Router) Attach(t Transport) { r.transport = t }

func (r *Router) Detach() { r.transport = nil }

// Send broadcasts a frame. It is dropped while the transport is not open.
func (r *Router) Send(tag wire.Tag, payload any) {
	if r.transport == nil || !r.transport.IsOpen() {
		return
	}
	data, err := wire.Encode(tag, payload)
	if err != nil {
		r.log.Error("encode", zap.String("tag", string(tag)), zap.Error(err))
		return
	}
	r.write(tag, data)
}

// SendDirect addresses a frame to one identity; an empty target broadcasts.
func (r *Router) SendDirect(target string, tag wire.Tag, payload any) {
	if target == "" {
		r.Send(tag, payload)
		return
	}
	r.Send(wire.TagDirect, map[string][2]any{target: {tag, payload}})
}

func (r *Router) write(tag wire.Tag, data []byte) {
	if err := r.transport.Write(data); err != nil {
		r.log.Warn("write", zap.String("tag", string(tag)), zap.Error(err))
	}
}

// PushRoster broadcasts a lightweight snapshot.
func (r *Router) PushRoster() { r.SendGamestate("", true) }

// PushEdition broadcasts the edition.
func (r *Router) PushEdition() { r.SendEdition("") }

func (r *Router) ResetMarked(origin game.Origin) { r.Voting.SetMarked(-1, origin) }

func (r *Router) SyncHistory() { r.Voting.SyncHistory() }

func (r *Router) Play(sound string) {
	if r.sounds != nil {
		r.sounds.Play(sound)
	}
}

func (r *Router) Alert(msg string) {
	if r.alerter != nil {
		r.alerter.Alert(msg)
	}
}

// SendGamestate sends the host's snapshot to target, or to everyone. A full
// snapshot is preceded by the edition so the guest can resolve role ids.
func (r *Router) SendGamestate(target string, lightweight bool) {
	if !r.IsHost() {
		return
	}
	if !lightweight {
		r.SendEdition(target)
	}
	r.SendDirect(target, wire.TagGamestate, r.State().Build(lightweight))
}

func (r *Router) SendEdition(target string) {
	if !r.IsHost() {
		return
	}
	r.SendDirect(target, wire.TagEdition, r.Grimoire.EditionPayload())
}

// RequestGamestate asks the host for a full snapshot.
func (r *Router) RequestGamestate() {
	if r.IsHost() || r.dir.SessionID == "" {
		return
	}
	r.SendDirect(wire.HostID, wire.TagGetGamestate, r.dir.PlayerID)
}

// OnOpen runs once the transport is up: guests ask for state, the host
// pushes it.
func (r *Router) OnOpen() {
	if r.IsHost() {
		r.SendGamestate("", false)
		return
	}
	r.RequestGamestate()
}

// Ping is the heartbeat tick. The host first drops peers that went quiet and
// frees their seats, then reports how many peers it sees.
func (r *Router) Ping() {
	if !r.IsHost() {
		r.Send(wire.TagPing, [2]any{r.dir.PlayerID, wire.LatencyPlaceholder})
		return
	}
	r.Presence.Sweep()
	r.refreshPeers()
	r.Send(wire.TagPing, [2]any{r.Presence.Count(), wire.LatencyPlaceholder})
}

func (r *Router) refreshPeers() {
	r.Roster.Unclaim(r.Presence.Tracked, game.Local)
	r.dir.PlayerCount = r.Presence.Count()
	r.dir.Ping = r.Presence.AverageLatency()
}

// Bye tells the host this guest is leaving on purpose.
func (r *Router) Bye() {
	if r.IsHost() || r.dir.SessionID == "" {
		return
	}
	r.SendDirect(wire.HostID, wire.TagBye, r.dir.PlayerID)
}

// ResetPresence forgets every peer and clears the counters shown to the user.
func (r *Router) ResetPresence() {
	r.Presence.Reset()
	r.dir.ClearDisplay()
}

// ClaimSeat records the seat this guest sits in, -1 to stand up, and asks the
// host to assign it. Taken seats are not requested.
func (r *Router) ClaimSeat(seat int) {
	r.dir.ClaimedSeat = seat
	if r.IsHost() || seat >= r.Roster.Len() {
		return
	}
	if seat >= 0 {
		if p, _ := r.Roster.Player(seat); p.ID != "" {
			return
		}
	}
	r.Send(wire.TagClaim, wire.Claim{Seat: seat, PlayerID: r.dir.PlayerID})
}

// DistributeRoles privately hands every seated guest their role, then their
// alignment.
func (r *Router) DistributeRoles() {
	if !r.IsHost() {
		return
	}
	roles := map[string][2]any{}
	alignments := map[string][2]any{}
	for i, p := range r.Roster.Players() {
		if p.ID == "" || p.Role.IsZero() {
			continue
		}
		roles[p.ID] = [2]any{wire.TagPlayer, wire.PlayerUpdate{Index: i, Property: wire.PropRole, Value: roster.Raw(p.Role)}}
		alignments[p.ID] = [2]any{wire.TagPlayer, wire.PlayerUpdate{Index: i, Property: wire.PropAlignment, Value: roster.Raw(p.Alignment)}}
	}
	if len(roles) == 0 {
		return
	}
	r.Send(wire.TagDirect, roles)
	r.Send(wire.TagDirect, alignments)
}

// SendChat whispers to a neighbour and lets the host see that it happened.
func (r *Router) SendChat(to, text string) {
	from := r.Self()
	msg := wire.Chat{From: from, To: to, Message: text}
	left, right, ok := r.Roster.Neighbors(from)
	if r.IsHost() || !ok || !r.Grimoire.TextChatAllowed() {
		return
	}
	ch, ok := chat.Route(to, left, right)
	if !ok {
		r.log.Debug("chat target is not a neighbour", zap.String("to", to))
		return
	}
	r.Chat.Receive(msg, ch)
	r.SendDirect(to, wire.TagChat, msg)
	r.SendDirect(wire.HostID, wire.TagChatActivity, wire.ChatActivity{From: from, To: to})
}

// SendGlobalChat posts to the whole table.
func (r *Router) SendGlobalChat(text string) {
	msg := wire.Chat{From: r.Self(), Message: text}
	r.Chat.Receive(msg, chat.Global)
	r.Send(wire.TagGlobalChat, msg)
}

// Self is the local relay identity.
func (r *Router) Self() string { return r.dir.Identity() }

func (r *Router) playerName(id string) (string, bool) {
	p, ok := r.Roster.Player(r.Roster.IndexOf(id))
	return p.Name, ok
}

func (r *Router) missingRoles(missing []string) {
	r.Alert(fmt.Sprintf("This session contains custom characters that can't be found. "+
		"Please load them before joining! Missing roles: %s", strings.Join(missing, ", ")))
	if r.kick != nil {
		r.kick()
	}
}
