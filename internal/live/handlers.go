package live

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/townsquare-live/internal/chat"
	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/roster"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

// gate says which role may apply a tag. Everything the host is authoritative
// for is applied by guests only; requests aimed at the host by the host only.
type gate uint8

const (
	anyRole gate = iota
	hostOnly
	guestOnly
)

func (g gate) allows(host bool) bool {
	switch g {
	case hostOnly:
		return host
	case guestOnly:
		return !host
	default:
		return true
	}
}

type handler struct {
	gate   gate
	handle func(r *Router, m wire.Message) error
}

var handlers = map[wire.Tag]handler{
	wire.TagPing:                 {anyRole, (*Router).onPing},
	wire.TagGetGamestate:         {hostOnly, (*Router).onGetGamestate},
	wire.TagClaim:                {hostOnly, (*Router).onClaim},
	wire.TagBye:                  {hostOnly, (*Router).onBye},
	wire.TagGamestate:            {guestOnly, (*Router).onGamestate},
	wire.TagEdition:              {guestOnly, (*Router).onEdition},
	wire.TagFabled:               {guestOnly, (*Router).onFabled},
	wire.TagPlayer:               {guestOnly, (*Router).onPlayer},
	wire.TagSwap:                 {guestOnly, (*Router).onSwap},
	wire.TagMove:                 {guestOnly, (*Router).onMove},
	wire.TagRemove:               {guestOnly, (*Router).onRemove},
	wire.TagMarked:               {guestOnly, (*Router).onMarked},
	wire.TagGamePhase:            {guestOnly, (*Router).onGamePhase},
	wire.TagDayCount:             {guestOnly, (*Router).onDayCount},
	wire.TagAllowSelfNaming:      {guestOnly, (*Router).onAllowSelfNaming},
	wire.TagIsSecretVote:         {guestOnly, (*Router).onSecretVote},
	wire.TagIsSecretVoteMode:     {guestOnly, (*Router).onSecretVote},
	wire.TagIsTextChatAllowed:    {guestOnly, (*Router).onTextChatAllowed},
	wire.TagPlaySound:            {guestOnly, (*Router).onPlaySound},
	wire.TagSetTimer:             {guestOnly, (*Router).onSetTimer},
	wire.TagIsVoteHistoryAllowed: {guestOnly, (*Router).onVoteHistoryAllowed},
	wire.TagVotingSpeed:          {guestOnly, (*Router).onVotingSpeed},
	wire.TagIsVoteInProgress:     {guestOnly, (*Router).onVoteInProgress},
	wire.TagNomination:           {guestOnly, (*Router).onNomination},
	wire.TagLock:                 {guestOnly, (*Router).onLock},
	wire.TagChat:                 {guestOnly, (*Router).onChat},
	wire.TagClearChat:            {guestOnly, (*Router).onClearChat},
	wire.TagClearRoles:           {anyRole, (*Router).onClearRoles},
	wire.TagClearVoteHistory:     {anyRole, (*Router).onClearVoteHistory},
	wire.TagVote:                 {anyRole, (*Router).onVote},
	wire.TagName:                 {anyRole, (*Router).onName},
	wire.TagPronouns:             {anyRole, (*Router).onPronouns},
	wire.TagLocale:               {anyRole, (*Router).onLocale},
	wire.TagVoteHistory:          {anyRole, (*Router).onVoteHistory},
	wire.TagChatActivity:         {anyRole, (*Router).onChatActivity},
	wire.TagGlobalChat:           {anyRole, (*Router).onGlobalChat},
}

// HandleMessage applies one frame from the relay. Malformed frames, unknown
// tags and tags the local role may not apply are dropped.
func (r *Router) HandleMessage(data []byte) {
	m, err := wire.Decode(data)
	if err != nil {
		r.log.Warn("unsupported message", zap.Int("size", len(data)), zap.Error(err))
		return
	}
	h, ok := handlers[m.Tag]
	if !ok {
		r.log.Debug("unknown tag", zap.String("tag", string(m.Tag)))
		return
	}
	if !h.gate.allows(r.IsHost()) {
		r.log.Debug("dropped for role", zap.String("tag", string(m.Tag)), zap.Stringer("role", r.dir.Role))
		return
	}
	if err := h.handle(r, m); err != nil {
		level := zap.WarnLevel
		if !errors.Is(err, wire.ErrMalformed) {
			level = zap.ErrorLevel
		}
		r.log.Log(level, "handle message", zap.String("tag", string(m.Tag)), zap.Error(err))
	}
}

func (r *Router) onPing(m wire.Message) error {
	var p wire.Ping
	if err := m.Bind(&p); err != nil {
		return err
	}
	if !r.IsHost() {
		if p.HasLatency {
			r.dir.Ping = p.Latency
		}
		if p.Count > 0 {
			r.dir.PlayerCount = p.Count
		}
		return nil
	}
	if p.PlayerID == "" {
		r.Presence.Sweep()
	} else {
		r.Presence.Observe(p.PlayerID, p.Latency, p.HasLatency)
	}
	r.refreshPeers()
	return nil
}

func (r *Router) onGetGamestate(m wire.Message) error {
	var target string
	if err := m.Bind(&target); err != nil {
		return err
	}
	r.SendGamestate(target, false)
	return nil
}

// onClaim moves a guest to the requested seat, freeing the one it held. The
// host re-announces both seats to the table.
func (r *Router) onClaim(m wire.Message) error {
	var c wire.Claim
	if err := m.Bind(&c); err != nil {
		return err
	}
	if old := r.Roster.IndexOf(c.PlayerID); old >= 0 && old != c.Seat {
		r.Roster.Update(old, roster.ID(""), game.Local)
	}
	r.Roster.Update(c.Seat, roster.ID(c.PlayerID), game.Local)
	return nil
}

func (r *Router) onBye(m wire.Message) error {
	var id string
	if err := m.Bind(&id); err != nil {
		return err
	}
	r.Presence.Forget(id)
	if seat := r.Roster.IndexOf(id); seat >= 0 {
		r.Roster.Update(seat, roster.ID(""), game.Local)
	}
	r.dir.PlayerCount = r.Presence.Count()
	return nil
}

func (r *Router) onGamestate(m wire.Message) error {
	var gs wire.Gamestate
	if err := m.Bind(&gs); err != nil {
		return err
	}
	r.State().Apply(gs)
	r.syncClaim()
	return nil
}

func (r *Router) onEdition(m wire.Message) error {
	var p wire.EditionPayload
	if err := m.Bind(&p); err != nil {
		return err
	}
	if missing := r.State().ApplyEdition(p); len(missing) > 0 {
		r.log.Warn("missing custom roles", zap.Strings("roles", missing))
		r.missingRoles(missing)
	}
	return nil
}

func (r *Router) onFabled(m wire.Message) error {
	var fabled []game.Role
	if err := m.Bind(&fabled); err != nil {
		return err
	}
	r.State().ApplyFabled(fabled)
	return nil
}

func (r *Router) onPlayer(m wire.Message) error {
	var u wire.PlayerUpdate
	if err := m.Bind(&u); err != nil {
		return err
	}
	c, err := roster.Decode(u.Property, u.Value, r.Grimoire.ResolveRole)
	if err != nil {
		return err
	}
	r.Roster.Update(u.Index, c, game.Remote)
	if u.Property == wire.PropID {
		r.syncClaim()
	}
	return nil
}

func (r *Router) onSwap(m wire.Message) error {
	var p wire.Pair
	if err := m.Bind(&p); err != nil {
		return err
	}
	r.Roster.Swap(p.From, p.To, game.Remote)
	r.syncClaim()
	return nil
}

func (r *Router) onMove(m wire.Message) error {
	var p wire.Pair
	if err := m.Bind(&p); err != nil {
		return err
	}
	r.Roster.Move(p.From, p.To, game.Remote)
	r.syncClaim()
	return nil
}

func (r *Router) onRemove(m wire.Message) error {
	var seat int
	if err := m.Bind(&seat); err != nil {
		return err
	}
	r.Roster.Remove(seat, game.Remote)
	r.syncClaim()
	return nil
}

// syncClaim keeps the claimed seat pointing at wherever the host put us.
func (r *Router) syncClaim() {
	r.dir.ClaimedSeat = r.Roster.IndexOf(r.dir.PlayerID)
}

func (r *Router) onMarked(m wire.Message) error {
	var seat int
	if err := m.Bind(&seat); err != nil {
		return err
	}
	r.Voting.SetMarked(seat, game.Remote)
	return nil
}

func (r *Router) onGamePhase(m wire.Message) error {
	var phase game.GamePhase
	if err := m.Bind(&phase); err != nil {
		return err
	}
	r.Grimoire.SetGamePhase(phase, game.Remote)
	return nil
}

func (r *Router) onDayCount(m wire.Message) error {
	var day int
	if err := m.Bind(&day); err != nil {
		return err
	}
	r.Grimoire.SetDayCount(day, game.Remote)
	return nil
}

func (r *Router) onAllowSelfNaming(m wire.Message) error {
	var v bool
	if err := m.Bind(&v); err != nil {
		return err
	}
	r.Grimoire.SetAllowSelfNaming(v, game.Remote)
	return nil
}

func (r *Router) onSecretVote(m wire.Message) error {
	var v bool
	if err := m.Bind(&v); err != nil {
		return err
	}
	r.Grimoire.SetSecretVote(v, game.Remote)
	return nil
}

func (r *Router) onTextChatAllowed(m wire.Message) error {
	var v bool
	if err := m.Bind(&v); err != nil {
		return err
	}
	r.Grimoire.SetTextChatAllowed(v, game.Remote)
	return nil
}

func (r *Router) onPlaySound(m wire.Message) error {
	var s wire.Sound
	if err := m.Bind(&s); err != nil {
		return err
	}
	r.Play(s.Sound)
	return nil
}

func (r *Router) onSetTimer(m wire.Message) error {
	var t game.Timer
	if err := m.Bind(&t); err != nil {
		return err
	}
	r.Grimoire.SetTimer(t, game.Remote)
	return nil
}

// The host re-sends whatever history the new setting allows, so the local
// copy is dropped.
func (r *Router) onVoteHistoryAllowed(m wire.Message) error {
	var v bool
	if err := m.Bind(&v); err != nil {
		return err
	}
	r.Grimoire.SetVoteHistoryAllowed(v, game.Remote)
	r.Voting.ClearHistory(game.Remote)
	return nil
}

func (r *Router) onVotingSpeed(m wire.Message) error {
	var speed int
	if err := m.Bind(&speed); err != nil {
		return err
	}
	r.Voting.SetVotingSpeed(speed, game.Remote)
	return nil
}

func (r *Router) onVoteInProgress(m wire.Message) error {
	var v bool
	if err := m.Bind(&v); err != nil {
		return err
	}
	r.Voting.SetVoteInProgress(v, game.Remote)
	return nil
}

func (r *Router) onNomination(m wire.Message) error {
	var n *game.Nomination
	if err := m.Bind(&n); err != nil {
		return err
	}
	r.Voting.SetNomination(n, game.Remote)
	return nil
}

func (r *Router) onLock(m wire.Message) error {
	var l wire.Lock
	if err := m.Bind(&l); err != nil {
		return err
	}
	r.Voting.ReceiveLock(l)
	return nil
}

func (r *Router) onVote(m wire.Message) error {
	var v wire.Vote
	if err := m.Bind(&v); err != nil {
		return err
	}
	if !r.Voting.ReceiveVote(v) {
		r.log.Debug("vote dropped", zap.Int("seat", v.Seat), zap.Int("locked", r.Voting.LockedVote()))
	}
	return nil
}

func (r *Router) onClearRoles(wire.Message) error {
	r.Roster.ClearRoles(game.Remote)
	return nil
}

func (r *Router) onClearVoteHistory(wire.Message) error {
	r.Voting.ClearHistory(game.Remote)
	return nil
}

func (r *Router) onName(m wire.Message) error {
	var sv wire.SeatValue
	if err := m.Bind(&sv); err != nil {
		return err
	}
	r.Roster.Update(sv.Seat, roster.Name(sv.Value), game.Remote)
	return nil
}

func (r *Router) onPronouns(m wire.Message) error {
	var sv wire.SeatValue
	if err := m.Bind(&sv); err != nil {
		return err
	}
	r.Roster.Update(sv.Seat, roster.Pronouns(sv.Value), game.Remote)
	return nil
}

func (r *Router) onLocale(m wire.Message) error {
	var locale string
	if err := m.Bind(&locale); err != nil {
		return err
	}
	r.Grimoire.ForceLocale(locale)
	return nil
}

func (r *Router) onVoteHistory(m wire.Message) error {
	var history []game.VoteHistoryEntry
	if err := m.Bind(&history); err != nil {
		return err
	}
	r.Voting.SetHistory(history)
	return nil
}

// onChat files a whisper under the neighbour it came from. Guests without a
// seat have no neighbours and ignore whispers.
func (r *Router) onChat(m wire.Message) error {
	var c wire.Chat
	if err := m.Bind(&c); err != nil {
		return err
	}
	left, right, ok := r.Roster.Neighbors(r.dir.PlayerID)
	if !ok {
		return nil
	}
	ch, ok := chat.Route(c.From, left, right)
	if !ok {
		r.log.Warn("chat from unknown neighbour", zap.String("from", c.From))
		return nil
	}
	r.Chat.Receive(c, ch)
	return nil
}

func (r *Router) onChatActivity(m wire.Message) error {
	var a wire.ChatActivity
	if err := m.Bind(&a); err != nil {
		return err
	}
	from, to := r.Roster.IndexOf(a.From), r.Roster.IndexOf(a.To)
	if from >= 0 && to >= 0 {
		r.Chat.NoteActivity(from, to)
	}
	return nil
}

func (r *Router) onGlobalChat(m wire.Message) error {
	var c wire.Chat
	if err := m.Bind(&c); err != nil {
		return err
	}
	r.Chat.Receive(c, chat.Global)
	return nil
}

func (r *Router) onClearChat(wire.Message) error {
	r.Chat.Clear(game.Remote)
	return nil
}
