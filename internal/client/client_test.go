package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/townsquare-live/internal/live"
	"github.com/DoyleJ11/townsquare-live/internal/session"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

type ending struct {
	code   int
	reason string
}

type fakeConn struct {
	mu       sync.Mutex
	open     bool
	frames   []string
	closes   []int
	incoming chan []byte
	end      chan ending
}

func newFakeConn() *fakeConn {
	return &fakeConn{open: true, incoming: make(chan []byte, 8), end: make(chan ending, 1)}
}

func (f *fakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConn) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(data))
	return nil
}

func (f *fakeConn) Listen(ctx context.Context, onMessage func([]byte)) (int, string) {
	for {
		select {
		case data := <-f.incoming:
			onMessage(data)
		case e := <-f.end:
			return e.code, e.reason
		case <-ctx.Done():
			return 1006, ""
		}
	}
}

func (f *fakeConn) Close(code int, reason string) error {
	f.mu.Lock()
	f.open = false
	f.closes = append(f.closes, code)
	f.mu.Unlock()
	f.drop(code, reason)
	return nil
}

// drop ends the connection the way the relay would.
func (f *fakeConn) drop(code int, reason string) {
	select {
	case f.end <- ending{code, reason}:
	default:
	}
}

func (f *fakeConn) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func (f *fakeConn) closedWith() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closes...)
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	fail  int
	dials chan *fakeConn
}

func newFakeDialer() *fakeDialer { return &fakeDialer{dials: make(chan *fakeConn, 8)} }

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	fail := d.fail > 0
	if fail {
		d.fail--
	}
	d.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.dials <- conn
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

type memPrefs struct {
	mu       sync.Mutex
	id       string
	guest    bool
	session  string
	closeErr error
}

func (p *memPrefs) PlayerID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, nil
}

func (p *memPrefs) SetPlayerID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	return nil
}

func (p *memPrefs) SetMembership(guest bool, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guest, p.session = guest, id
	return nil
}

func (p *memPrefs) Close() error { return p.closeErr }

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alerts) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

type fixture struct {
	*Client
	clock  *clockwork.FakeClock
	dialer *fakeDialer
	prefs  *memPrefs
	alerts *alerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  clockwork.NewFakeClock(),
		dialer: newFakeDialer(),
		prefs:  &memPrefs{id: "p1"},
		alerts: &alerts{},
	}
	c, err := New(context.Background(), Options{
		Logger:         zaptest.NewLogger(t),
		Clock:          f.clock,
		ServerURL:      "ws://relay.test/",
		PingInterval:   30 * time.Second,
		ReconnectDelay: 3 * time.Second,
		Dialer:         f.dialer,
		Prefs:          f.prefs,
		Live:           live.Options{Alerter: f.alerts, Locale: "en"},
	})
	require.NoError(t, err)
	f.Client = c
	t.Cleanup(func() { _ = c.Close() })
	return f
}

func (f *fixture) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-f.dialer.dials:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no dial")
		return nil
	}
}

func (f *fixture) waitState(t *testing.T, want session.State) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var err error
		st, err = f.Status()
		return err == nil && st.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestHost_PushesStateAndStartsHeartbeat(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Host("Table 1"))
	conn := f.nextConn(t)
	f.waitState(t, session.Connected)

	assert.Equal(t, []string{"ws://relay.test/table1/host"}, f.dialer.urls)
	require.Eventually(t, func() bool { return len(conn.sent()) == 3 }, time.Second, 5*time.Millisecond)
	frames := conn.sent()
	for i, want := range []wire.Tag{wire.TagEdition, wire.TagGamestate, wire.TagPing} {
		m, err := wire.Decode([]byte(frames[i]))
		require.NoError(t, err)
		assert.Equal(t, want, m.Tag)
	}
	assert.JSONEq(t, `["ping",[0,"latency"]]`, frames[2])
	assert.False(t, f.prefs.guest)
	assert.Equal(t, "table1", f.prefs.session)
}

func TestJoin_RequestsStateAndAppliesSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Join("abc"))
	conn := f.nextConn(t)
	f.waitState(t, session.Connected)

	assert.Equal(t, []string{"ws://relay.test/abc/p1"}, f.dialer.urls)
	require.Eventually(t, func() bool { return len(conn.sent()) >= 2 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `["direct",{"host":["getGamestate","p1"]}]`, conn.sent()[0])
	assert.JSONEq(t, `["ping",["p1","latency"]]`, conn.sent()[1])

	conn.incoming <- []byte(`["gs",{"gamestate":[{"name":"Ada","id":"p1","isDead":false,"voteToken":false,"pronouns":""},{"name":"Bo","id":"","isDead":true,"voteToken":false,"pronouns":""}],"isLightweight":true}]`)
	require.Eventually(t, func() bool {
		st, err := f.Status()
		return err == nil && len(st.Players) == 2
	}, time.Second, 5*time.Millisecond)
	st, err := f.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.ClaimedSeat)
	assert.True(t, st.Players[1].IsDead)
}

func TestAbnormalClose_SchedulesOneReconnect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Join("abc"))
	first := f.nextConn(t)
	f.waitState(t, session.Connected)
	first.incoming <- []byte(`["ping",[5,40]]`)
	require.Eventually(t, func() bool {
		st, err := f.Status()
		return err == nil && st.PlayerCount == 5 && st.Ping == 40
	}, time.Second, 5*time.Millisecond)

	first.drop(1006, "")
	st := f.waitState(t, session.Reconnecting)
	assert.True(t, st.Reconnecting)
	assert.Zero(t, st.PlayerCount, "peer count is cleared while reconnecting")
	assert.Zero(t, st.Ping)
	assert.Equal(t, 1, f.dialer.count())

	f.clock.Advance(3 * time.Second)
	second := f.nextConn(t)
	f.waitState(t, session.Connected)
	assert.Equal(t, 2, f.dialer.count())

	// A second drop arms exactly one new attempt.
	second.drop(1001, "")
	f.waitState(t, session.Reconnecting)
	f.clock.Advance(3 * time.Second)
	f.nextConn(t)
	f.waitState(t, session.Connected)
	f.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, f.dialer.count())
}

func TestDialFailure_Retries(t *testing.T) {
	f := newFixture(t)
	f.dialer.fail = 1
	require.NoError(t, f.Join("abc"))
	f.waitState(t, session.Reconnecting)

	f.clock.Advance(3 * time.Second)
	f.nextConn(t)
	f.waitState(t, session.Connected)
}

func TestCleanClose_EndsSessionWithReason(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Join("abc"))
	conn := f.nextConn(t)
	f.waitState(t, session.Connected)

	conn.drop(wire.CloseIntentional, "The session host has left.")
	require.Eventually(t, func() bool {
		st, err := f.Status()
		return err == nil && st.SessionID == ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"The session host has left."}, f.alerts.all())

	f.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.dialer.count(), "no reconnect after a clean close")
	assert.Empty(t, f.prefs.session)
}

func TestLeave_SaysGoodbye(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Join("abc"))
	conn := f.nextConn(t)
	f.waitState(t, session.Connected)

	require.NoError(t, f.Leave())
	sent := conn.sent()
	assert.JSONEq(t, `["direct",{"host":["bye","p1"]}]`, sent[len(sent)-1])
	assert.Equal(t, []int{wire.CloseIntentional}, conn.closedWith())

	st, err := f.Status()
	require.NoError(t, err)
	assert.Empty(t, st.SessionID)
	assert.Equal(t, session.Disconnected, st.State)
	assert.Equal(t, "p1", st.PlayerID)
}

func TestDisconnect_CancelsPendingReconnect(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.Join("abc"))
	conn := f.nextConn(t)
	f.waitState(t, session.Connected)

	conn.drop(1006, "")
	f.waitState(t, session.Reconnecting)
	require.NoError(t, f.Disconnect())

	f.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.dialer.count())
	st, err := f.Status()
	require.NoError(t, err)
	assert.Equal(t, "abc", st.SessionID, "disconnect keeps the session")
}

func TestRequestGamestate_NeedsConnection(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.RequestGamestate(), session.ErrNotConnected)
	assert.ErrorIs(t, f.Join("!!!"), session.ErrNoSession)
}

func TestClose_StopsLoop(t *testing.T) {
	f := newFixture(t)
	f.prefs.closeErr = errors.New("flush failed")
	err := f.Close()
	assert.EqualError(t, err, "flush failed")

	_, err = f.Status()
	assert.ErrorIs(t, err, ErrClosed)
}
