package voting

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

type sent struct {
	tag     wire.Tag
	payload any
}

type fakeLink struct {
	host bool
	sent []sent
}

func (f *fakeLink) IsHost() bool                   { return f.host }
func (f *fakeLink) Send(tag wire.Tag, payload any) { f.sent = append(f.sent, sent{tag, payload}) }

func (f *fakeLink) last(tag wire.Tag) (any, bool) {
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].tag == tag {
			return f.sent[i].payload, true
		}
	}
	return nil, false
}

type table struct{ players []game.Player }

func (t *table) Players() []game.Player { return t.players }

type flags struct {
	allowed bool
	secret  bool
	day     int
}

func (f *flags) VoteHistoryAllowed() bool { return f.allowed }
func (f *flags) SecretVote() bool         { return f.secret }
func (f *flags) DayCount() int            { return f.day }

func newTable(n int) *table {
	t := &table{}
	for i := 0; i < n; i++ {
		t.players = append(t.players, game.Player{Name: string(rune('A' + i))})
	}
	return t
}

func newStore(host bool, seats int) (*Store, *fakeLink, *table, *flags) {
	link := &fakeLink{host: host}
	tbl := newTable(seats)
	fl := &flags{allowed: true, day: 2}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))
	return New(link, tbl, fl, Options{Clock: clock}), link, tbl, fl
}

func TestAdjustedIndex(t *testing.T) {
	nominee3 := &game.Nomination{Nominator: game.Seat(1), Nominee: game.Seat(3)}
	assert.Equal(t, 0, AdjustedIndex(4, 7, Anchor(nominee3)))

	nominee0 := &game.Nomination{Nominator: game.Seat(5), Nominee: game.Seat(0)}
	assert.Equal(t, 0, AdjustedIndex(1, 7, Anchor(nominee0)))

	// the nominee votes last
	assert.Equal(t, 6, AdjustedIndex(3, 7, Anchor(nominee3)))
	assert.Equal(t, -1, AdjustedIndex(1, 0, 0))
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, 4, Anchor(&game.Nomination{Nominator: game.Seat(2), Nominee: game.Seat(4)}))
	assert.Equal(t, 2, Anchor(&game.Nomination{Nominator: game.Seat(2), Nominee: game.Label("Everyone")}))
	assert.Equal(t, 0, Anchor(&game.Nomination{Nominator: game.Label("host"), Nominee: game.NoRef()}))
	assert.Equal(t, 0, Anchor(nil))
}

func TestLockIndex(t *testing.T) {
	assert.Equal(t, 4, LockIndex(3, 2, 7))
	assert.Equal(t, 3, LockIndex(3, 8, 7))
	assert.Equal(t, -1, LockIndex(0, 1, 0))
}

func TestReceiveVote_StaleRejected(t *testing.T) {
	s, _, _, _ := newStore(false, 7)
	s.UpdateNomination(Update{Nomination: &game.Nomination{Nominator: game.Seat(1), Nominee: game.Seat(3)}, LockedVote: 3})

	// raw 5 -> adjusted 1, behind the lock
	assert.False(t, s.ReceiveVote(wire.Vote{Seat: 5, Value: true}))
	assert.False(t, s.Votes().At(5))

	// raw 6 -> adjusted 2, still open
	assert.True(t, s.ReceiveVote(wire.Vote{Seat: 6, Value: true}))
	assert.True(t, s.Votes().At(6))

	// the host can always overwrite
	assert.True(t, s.ReceiveVote(wire.Vote{Seat: 5, Value: true, FromHost: true}))
	assert.True(t, s.Votes().At(5))
}

func TestReceiveVote_NoNominationIsNoop(t *testing.T) {
	s, _, _, _ := newStore(false, 5)
	assert.False(t, s.ReceiveVote(wire.Vote{Seat: 1, Value: true, FromHost: true}))
	assert.Empty(t, s.Votes())
}

func TestReceiveVote_SeatBeyondRosterTolerated(t *testing.T) {
	s, _, _, _ := newStore(false, 3)
	s.UpdateNomination(Update{Nomination: &game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(1)}})
	assert.NotPanics(t, func() {
		assert.False(t, s.ReceiveVote(wire.Vote{Seat: 9, Value: true, FromHost: true}))
		assert.False(t, s.ReceiveVote(wire.Vote{Seat: 1e8, Value: true, FromHost: true}))
		assert.False(t, s.ReceiveVote(wire.Vote{Seat: 1e8, Value: true}))
		assert.False(t, s.ReceiveVote(wire.Vote{Seat: 1e18, Value: true, FromHost: true}))
		assert.False(t, s.ReceiveVote(wire.Vote{Seat: 1e18, Value: true}))
		s.ReceiveLock(wire.Lock{Locked: 12, Forced: true})
	})
	assert.LessOrEqual(t, len(s.Votes()), 3)
	assert.False(t, s.HandleVote(3, true))
	assert.True(t, s.HandleVote(2, true))
}

func TestMajority(t *testing.T) {
	tbl := newTable(10)
	tbl.players[0].IsDead = true
	tbl.players[1].IsDead = true
	assert.Equal(t, 4, Majority(tbl.players, false))
	assert.Equal(t, 5, Majority(tbl.players, true))
}

func TestIsExile(t *testing.T) {
	tbl := newTable(4)
	tbl.players[2].Role = game.Role{ID: "beggar", Team: game.TeamTraveler}

	assert.True(t, IsExile(&game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(2)}, tbl.players))
	assert.False(t, IsExile(&game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(1)}, tbl.players))
	assert.False(t, IsExile(&game.Nomination{
		Nominator: game.Seat(0), Nominee: game.Seat(2), SpecialVote: &game.SpecialVote{Type: "x"},
	}, tbl.players))
	assert.False(t, IsExile(nil, tbl.players))
}

func TestVoteTypeAndLabel(t *testing.T) {
	texts := Texts{Exile: "Exile", Execution: "Execution"}
	special := &game.Nomination{SpecialVote: &game.SpecialVote{Type: "bishop", ButtonLabel: "Nominate"}}
	assert.Equal(t, "Nominate", VoteType(special, false, texts))
	assert.Equal(t, "Exile", VoteType(&game.Nomination{}, true, texts))
	assert.Equal(t, "Execution", VoteType(&game.Nomination{}, false, texts))

	assert.Equal(t, "Execution*", ExecutionLabel("Execution", true, false))
	assert.Equal(t, "Execution", ExecutionLabel("Execution", true, true))
	assert.Equal(t, "Execution", ExecutionLabel("Execution", false, false))
}

func TestSetNomination_HostAnnounces(t *testing.T) {
	s, link, _, _ := newStore(true, 5)
	s.HandleVote(0, true)

	n := &game.Nomination{Nominator: game.Seat(1), Nominee: game.Seat(3)}
	s.SetNomination(n, game.Local)

	require.Len(t, link.sent, 2)
	assert.Equal(t, wire.TagVotingSpeed, link.sent[0].tag)
	assert.Equal(t, wire.TagNomination, link.sent[1].tag)
	assert.Equal(t, n, link.sent[1].payload)
	assert.Empty(t, s.Votes())
	assert.Zero(t, s.LockedVote())
}

func TestSetNomination_MissingSeatNotAnnounced(t *testing.T) {
	s, link, _, _ := newStore(true, 3)
	s.SetNomination(&game.Nomination{Nominator: game.Seat(1), Nominee: game.Seat(5)}, game.Local)
	assert.Empty(t, link.sent)
	assert.NotNil(t, s.Nomination())
}

func TestVote_GuestOnlyBroadcastsOwnSeat(t *testing.T) {
	link := &fakeLink{}
	tbl := newTable(4)
	tbl.players[2].ID = "me"
	s := New(link, tbl, &flags{}, Options{Self: func() string { return "me" }})
	s.UpdateNomination(Update{Nomination: &game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(1)}})

	s.Vote(1, true, game.Local)
	assert.Empty(t, link.sent)

	s.Vote(2, true, game.Local)
	require.Len(t, link.sent, 1)
	assert.Equal(t, wire.Vote{Seat: 2, Value: true}, link.sent[0].payload)
}

func TestLockVote_HostResolvesFullCircle(t *testing.T) {
	s, link, tbl, fl := newStore(true, 3)
	fl.secret = false
	s.SetNomination(&game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(1)}, game.Local)
	s.Vote(2, true, game.Local)
	s.Vote(0, true, game.Local)

	for i := 0; i < 3; i++ {
		s.LockVote(nil, game.Local)
	}
	payload, ok := link.last(wire.TagLock)
	require.True(t, ok)
	// lock 3 sits on seat (1+3-1)%3 = 0
	assert.Equal(t, wire.Lock{Locked: 3, Forced: true}, payload)
	assert.Empty(t, s.History())

	s.LockVote(nil, game.Local)
	require.Len(t, s.History(), 1)
	entry := s.History()[0]
	assert.Equal(t, tbl.players[0].Name, entry.Nominator)
	assert.Equal(t, tbl.players[1].Name, entry.Nominee)
	assert.Equal(t, []string{"A", "C"}, entry.Votes)
	assert.Equal(t, 2, entry.Majority)
	assert.Equal(t, 2, entry.Day)
	assert.Equal(t, "Execution", entry.Type)
	assert.False(t, entry.Anonymous)
	assert.Nil(t, s.Nomination(), "nomination cleared after resolution")

	_, ok = link.last(wire.TagVoteHistory)
	assert.True(t, ok)
}

func TestReceiveLock_ForcesValue(t *testing.T) {
	s, link, _, _ := newStore(false, 5)
	s.UpdateNomination(Update{Nomination: &game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(2)}})

	s.ReceiveLock(wire.Lock{Locked: 2, Forced: true})
	assert.Equal(t, 2, s.LockedVote())
	assert.True(t, s.Votes().At(3))

	s.ReceiveLock(wire.Lock{Locked: 1, Forced: true})
	assert.False(t, s.Votes().At(2), "first lock does not force")
	assert.Empty(t, link.sent)
}

func TestAddHistory_SecretVoteIsAnonymous(t *testing.T) {
	s, link, _, fl := newStore(true, 2)
	fl.secret = true
	s.SetNomination(&game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(1)}, game.Local)
	s.Vote(0, true, game.Local)
	three := 3
	s.LockVote(&three, game.Local)

	require.Len(t, s.History(), 1)
	assert.True(t, s.History()[0].Anonymous)
	assert.Equal(t, []string{"A"}, s.History()[0].Votes, "host keeps the detail")

	payload, _ := link.last(wire.TagVoteHistory)
	sent := payload.([]game.VoteHistoryEntry)
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Votes)
}

func TestAddHistory_GuestNeverAuthors(t *testing.T) {
	s, _, _, _ := newStore(false, 2)
	s.UpdateNomination(Update{Nomination: &game.Nomination{Nominator: game.Seat(0), Nominee: game.Seat(1)}, LockedVote: 3})
	s.AddHistory()
	assert.Empty(t, s.History())
}

func TestSanitize_AnonymousStaysHiddenAcrossToggle(t *testing.T) {
	history := []game.VoteHistoryEntry{
		{Nominee: "B", Votes: []string{"A", "C"}, Anonymous: true},
		{Nominee: "C", Votes: []string{"A"}},
	}

	assert.Empty(t, Sanitize(history, false))

	on := Sanitize(history, true)
	require.Len(t, on, 2)
	assert.Empty(t, on[0].Votes)
	assert.Equal(t, []string{"A"}, on[1].Votes)
	assert.Equal(t, []string{"A", "C"}, history[0].Votes, "source untouched")

	assert.Empty(t, Sanitize(history, false))
	assert.Empty(t, Sanitize(history, true)[0].Votes)
}

func TestSetters_OnlyHostLocalSends(t *testing.T) {
	s, link, _, _ := newStore(true, 3)
	s.SetMarked(2, game.Local)
	s.SetVoteInProgress(true, game.Local)
	s.SetVotingSpeed(500, game.Local)
	s.ClearHistory(game.Local)
	s.SetMarked(1, game.Remote)
	require.Len(t, link.sent, 4)
	assert.Equal(t, 1, s.Marked())

	g, glink, _, _ := newStore(false, 3)
	g.SetMarked(2, game.Local)
	g.ClearHistory(game.Local)
	assert.Empty(t, glink.sent)
}
