package voting

import (
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

const DefaultVotingSpeed = 1000

// Seats is the roster view voting reads from.
type Seats interface {
	Players() []game.Player
}

// Flags are the grimoire settings that shape history records.
type Flags interface {
	VoteHistoryAllowed() bool
	SecretVote() bool
	DayCount() int
}

type Options struct {
	Clock clockwork.Clock
	Texts Texts
	// Self returns the local player id, used to decide whether a guest may
	// broadcast a vote for a seat.
	Self func() string
}

// Store holds the active nomination, its vote array and the vote history.
type Store struct {
	link  wire.Link
	seats Seats
	flags Flags
	opts  Options

	nomination  *game.Nomination
	votes       game.Votes
	lockedVote  int
	votingSpeed int
	inProgress  bool
	marked      int
	history     []game.VoteHistoryEntry
}

func New(link wire.Link, seats Seats, flags Flags, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Texts == (Texts{}) {
		opts.Texts = DefaultTexts
	}
	if opts.Self == nil {
		opts.Self = func() string { return "" }
	}
	return &Store{
		link:        link,
		seats:       seats,
		flags:       flags,
		opts:        opts,
		votingSpeed: DefaultVotingSpeed,
		marked:      -1,
	}
}

func (s *Store) Nomination() *game.Nomination { return s.nomination }
func (s *Store) Votes() game.Votes            { return s.votes }
func (s *Store) LockedVote() int              { return s.lockedVote }
func (s *Store) VotingSpeed() int             { return s.votingSpeed }
func (s *Store) InProgress() bool             { return s.inProgress }
func (s *Store) Marked() int                  { return s.marked }
func (s *Store) History() []game.VoteHistoryEntry {
	return s.history
}

// Majority for the active nomination.
func (s *Store) Majority() int {
	players := s.seats.Players()
	return Majority(players, IsExile(s.nomination, players))
}

// Label is the vote type as the given viewer should see it.
func (s *Store) Label(viewerIsHost bool) string {
	exile := IsExile(s.nomination, s.seats.Players())
	label := VoteType(s.nomination, exile, s.opts.Texts)
	if !exile && !s.nomination.IsSpecial() {
		label = ExecutionLabel(label, s.flags.SecretVote(), viewerIsHost)
	}
	return label
}

// SetNomination starts (or clears, with nil) a nomination and resets the vote
// state. The host only announces nominations whose seats exist.
func (s *Store) SetNomination(n *game.Nomination, origin game.Origin) {
	s.nomination = n
	s.votes = nil
	s.lockedVote = 0
	s.inProgress = false
	if origin == game.Remote || !s.link.IsHost() {
		return
	}
	count := len(s.seats.Players())
	if n != nil && (!inRange(n.Nominator, count) || !inRange(n.Nominee, count)) {
		return
	}
	if s.votingSpeed > 0 {
		s.link.Send(wire.TagVotingSpeed, s.votingSpeed)
	}
	s.link.Send(wire.TagNomination, n)
}

func inRange(ref game.SeatRef, count int) bool {
	seat, ok := ref.SeatIndex()
	return !ok || seat < count
}

// Update is a replica overwrite of the whole nomination state.
type Update struct {
	Nomination  *game.Nomination
	Votes       game.Votes
	VotingSpeed int
	LockedVote  int
	InProgress  bool
}

// UpdateNomination overwrites the replica. A zero voting speed keeps the
// current one.
func (s *Store) UpdateNomination(u Update) {
	s.nomination = u.Nomination
	s.votes = slices.Clone(u.Votes)
	if u.VotingSpeed != 0 {
		s.votingSpeed = u.VotingSpeed
	}
	s.lockedVote = u.LockedVote
	s.inProgress = u.InProgress
}

// HandleVote records a vote without any propagation and reports whether it
// was kept. It is a no-op without an active nomination or for a seat outside
// the roster.
func (s *Store) HandleVote(seat int, value bool) bool {
	if s.nomination == nil || seat < 0 || seat >= len(s.seats.Players()) {
		return false
	}
	if seat >= len(s.votes) {
		grown := make(game.Votes, seat+1)
		copy(grown, s.votes)
		s.votes = grown
	}
	s.votes[seat] = value
	return true
}

// Toggle flips a seat's vote.
func (s *Store) Toggle(seat int, origin game.Origin) {
	s.Vote(seat, !s.votes.At(seat), origin)
}

// Vote records a vote and broadcasts it when the local user is the host or
// owns the seat.
func (s *Store) Vote(seat int, value bool, origin game.Origin) {
	if !s.HandleVote(seat, value) || origin == game.Remote {
		return
	}
	players := s.seats.Players()
	owns := seat >= 0 && seat < len(players) && players[seat].ID != "" && players[seat].ID == s.opts.Self()
	if s.link.IsHost() || owns {
		s.link.Send(wire.TagVote, wire.Vote{Seat: seat, Value: s.votes.At(seat), FromHost: s.link.IsHost()})
	}
}

// ReceiveVote applies a vote from the wire unless it targets a seat the lock
// has already passed. It reports whether the vote was applied.
func (s *Store) ReceiveVote(v wire.Vote) bool {
	seats := len(s.seats.Players())
	if !v.FromHost {
		adjusted := AdjustedIndex(v.Seat, seats, Anchor(s.nomination))
		if adjusted < 0 || !Accept(false, adjusted, s.lockedVote) {
			return false
		}
	}
	return s.HandleVote(v.Seat, v.Value)
}

// LockVote advances the lock pointer by one, or sets it when lock is given.
// The host broadcasts the new pointer with the vote it landed on; once the
// pointer passes the last seat the host records the vote and ends the
// nomination.
func (s *Store) LockVote(lock *int, origin game.Origin) {
	if lock != nil {
		s.lockedVote = *lock
	} else {
		s.lockedVote++
	}
	if origin == game.Remote || !s.link.IsHost() {
		return
	}
	seats := len(s.seats.Players())
	idx := LockIndex(Anchor(s.nomination), s.lockedVote, seats)
	s.link.Send(wire.TagLock, wire.Lock{Locked: s.lockedVote, Forced: s.votes.At(idx)})

	if s.nomination != nil && s.lockedVote > seats {
		s.AddHistory()
		s.SetNomination(nil, game.Local)
	}
}

// ReceiveLock mirrors the host's lock pointer and forces the vote at the
// locked seat to the host's value.
func (s *Store) ReceiveLock(l wire.Lock) {
	locked := l.Locked
	s.LockVote(&locked, game.Remote)
	if locked <= 1 {
		return
	}
	idx := LockIndex(Anchor(s.nomination), s.lockedVote, len(s.seats.Players()))
	if idx >= 0 && s.votes.At(idx) != l.Forced {
		s.HandleVote(idx, l.Forced)
	}
}

// AddHistory commits the resolved nomination to the history. Only the host
// authors entries, and only once every seat has been locked.
func (s *Store) AddHistory() {
	players := s.seats.Players()
	if !s.link.IsHost() || s.nomination == nil || s.lockedVote <= len(players) {
		return
	}
	n := s.nomination
	exile := IsExile(n, players)
	hidden := s.flags.SecretVote() && !exile

	voters := []string{}
	for i, p := range players {
		if s.votes.At(i) {
			voters = append(voters, p.Name)
		}
	}
	s.history = append(s.history, game.VoteHistoryEntry{
		Day:       s.flags.DayCount(),
		Timestamp: s.opts.Clock.Now(),
		Nominator: n.Nominator.DisplayName(players),
		Nominee:   n.Nominee.DisplayName(players),
		Type:      VoteType(n, exile, s.opts.Texts),
		Majority:  Majority(players, exile),
		Votes:     voters,
		Anonymous: hidden,
	})
	s.SyncHistory()
}

// SyncHistory broadcasts the host's history, sanitized for guests.
func (s *Store) SyncHistory() {
	if !s.link.IsHost() {
		return
	}
	s.link.Send(wire.TagVoteHistory, Sanitize(s.history, s.flags.VoteHistoryAllowed()))
}

// Sanitize prepares history for guests: anonymous entries lose their voter
// lists, and nothing is shared when history is not allowed.
func Sanitize(history []game.VoteHistoryEntry, allowed bool) []game.VoteHistoryEntry {
	out := []game.VoteHistoryEntry{}
	if !allowed {
		return out
	}
	for _, e := range history {
		if e.Anonymous {
			e.Votes = []string{}
		}
		out = append(out, e)
	}
	return out
}

func (s *Store) SetHistory(history []game.VoteHistoryEntry) {
	s.history = slices.Clone(history)
}

func (s *Store) ClearHistory(origin game.Origin) {
	s.history = nil
	if origin == game.Local && s.link.IsHost() {
		s.link.Send(wire.TagClearVoteHistory, nil)
	}
}

func (s *Store) SetVotingSpeed(speed int, origin game.Origin) {
	s.votingSpeed = speed
	if origin == game.Local && s.link.IsHost() {
		s.link.Send(wire.TagVotingSpeed, speed)
	}
}

func (s *Store) SetVoteInProgress(v bool, origin game.Origin) {
	s.inProgress = v
	if origin == game.Local && s.link.IsHost() {
		s.link.Send(wire.TagIsVoteInProgress, v)
	}
}

// SetMarked points at the seat marked for execution, -1 for none.
func (s *Store) SetMarked(seat int, origin game.Origin) {
	s.marked = seat
	if origin == game.Local && s.link.IsHost() {
		s.link.Send(wire.TagMarked, seat)
	}
}

// Reset returns the store to its initial state without notifying anyone.
func (s *Store) Reset() {
	s.nomination = nil
	s.votes = nil
	s.lockedVote = 0
	s.votingSpeed = DefaultVotingSpeed
	s.inProgress = false
	s.marked = -1
	s.history = nil
}
