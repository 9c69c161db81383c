package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

func TestNormalizeID(t *testing.T) {
	tests := map[string]string{
		"Game-Night 42":                          "gamenight4",
		"abc":                                    "abc",
		"https://townsquare.example/#/MySession": "mysession",
		"http://host/a/b/XyZ-1":                  "xyz1",
		"!!!":                                    "",
		"  1234567890123 ":                       "1234567890",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeID(in), in)
	}
}

func TestURL(t *testing.T) {
	u, err := URL("ws://localhost:8080/", "abc", wire.HostID)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/abc/host", u)

	u, err = URL("wss://relay.example", "abc", "p1")
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example/abc/p1", u)

	_, err = URL("ws://x/", "", "p1")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestNewPlayerID(t *testing.T) {
	id, err := NewPlayerID()
	require.NoError(t, err)
	assert.Len(t, id, 11)
	assert.Regexp(t, "^[0-9a-z]{11}$", id)
}

func TestNewSessionID_IsNormalized(t *testing.T) {
	id, err := NewSessionID()
	require.NoError(t, err)
	assert.Len(t, id, 10)
	assert.Equal(t, id, NormalizeID(id))
}

type memPrefs struct {
	id  string
	err error
}

func (m *memPrefs) PlayerID() (string, error) { return m.id, m.err }
func (m *memPrefs) SetPlayerID(id string) error {
	m.id = id
	return nil
}

func TestDirectory_Lifecycle(t *testing.T) {
	d := NewDirectory()
	assert.Equal(t, -1, d.ClaimedSeat)

	p := &memPrefs{err: errors.New("not found")}
	require.NoError(t, d.EnsurePlayerID(p))
	assert.NotEmpty(t, d.PlayerID)
	assert.Equal(t, d.PlayerID, p.id, "fresh id is persisted")

	d.Join("Room 7")
	assert.Equal(t, "room7", d.SessionID)
	assert.False(t, d.IsHost())
	assert.Equal(t, d.PlayerID, d.Identity())

	d.ClaimedSeat = 3
	d.Leave()
	assert.Empty(t, d.SessionID)
	assert.Equal(t, -1, d.ClaimedSeat)
	assert.Equal(t, p.id, d.PlayerID, "identity survives leaving")

	d.Host("room8")
	assert.True(t, d.IsHost())
	assert.Equal(t, wire.HostID, d.Identity())
}

func TestDirectory_ReusesPersistedID(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.EnsurePlayerID(&memPrefs{id: "persisted"}))
	assert.Equal(t, "persisted", d.PlayerID)
}

type loop chan func()

func (l loop) post(f func()) { l <- f }

func TestReconnector_SingleShotPerClose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := make(loop, 4)
	r := NewReconnector(clock, 3*time.Second, l.post)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	attempts := 0
	var attempt func()
	attempt = func() { attempts++ }

	// first abnormal close
	r.Schedule(attempt)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(3 * time.Second)
	(<-l)()
	assert.Equal(t, 1, attempts)
	assert.False(t, r.Pending())

	// the retry also drops
	r.Schedule(attempt)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Second)
	(<-l)()
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, r.Scheduled())

	select {
	case <-l:
		t.Fatal("timers accumulated")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReconnector_RescheduleReplacesPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := make(loop, 4)
	r := NewReconnector(clock, 3*time.Second, l.post)

	attempts := 0
	r.Schedule(func() { attempts++ })
	r.Schedule(func() { attempts++ })
	clock.Advance(3 * time.Second)
	(<-l)()
	assert.Equal(t, 1, attempts)

	select {
	case <-l:
		t.Fatal("replaced attempt still fired")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReconnector_CancelBeatsQueuedAttempt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := make(loop, 4)
	r := NewReconnector(clock, 3*time.Second, l.post)

	attempts := 0
	r.Schedule(func() { attempts++ })
	clock.Advance(3 * time.Second)
	r.Cancel()
	(<-l)()
	assert.Zero(t, attempts)
}
