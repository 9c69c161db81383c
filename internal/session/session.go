package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

var (
	ErrNoSession    = errors.New("no session")
	ErrNotConnected = errors.New("not connected")
)

const maxIDLength = 10

type Role uint8

const (
	RoleHost Role = iota
	RoleGuest
)

func (r Role) String() string {
	if r == RoleGuest {
		return "guest"
	}
	return "host"
}

type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// NormalizeID lowercases a session id, keeps only [0-9a-z] and truncates it.
// Join links are reduced to their last path segment first.
func NormalizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		raw = raw[strings.LastIndex(raw, "/")+1:]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
			if b.Len() == maxIDLength {
				break
			}
		}
	}
	return b.String()
}

// URL is the relay address for a session: base/sessionId/identity.
func URL(base, sessionID, identity string) (string, error) {
	if sessionID == "" {
		return "", ErrNoSession
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("relay url %q: %w", base, err)
	}
	return u.JoinPath(sessionID, identity).String(), nil
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewPlayerID returns a fresh guest identity token.
func NewPlayerID() (string, error) {
	return gonanoid.Generate(idAlphabet, 11)
}

// NewSessionID returns a random session id for a new host.
func NewSessionID() (string, error) {
	return gonanoid.Generate(idAlphabet, maxIDLength)
}

// Prefs persists the guest identity between runs.
type Prefs interface {
	PlayerID() (string, error)
	SetPlayerID(id string) error
}

// Directory is the local process's view of its session membership.
type Directory struct {
	SessionID   string
	Role        Role
	PlayerID    string
	ClaimedSeat int
	State       State

	// Display values driven by presence and reconnects.
	PlayerCount  int
	Ping         int
	Reconnecting bool
}

func NewDirectory() *Directory {
	return &Directory{ClaimedSeat: -1}
}

func (d *Directory) IsHost() bool { return d.Role == RoleHost }

// Identity is the relay identity: the host sentinel or the guest's token.
func (d *Directory) Identity() string {
	if d.IsHost() {
		return wire.HostID
	}
	return d.PlayerID
}

func (d *Directory) SetSessionID(id string) { d.SessionID = NormalizeID(id) }

// Host makes the local process the storyteller of id.
func (d *Directory) Host(id string) {
	d.Role = RoleHost
	d.SetSessionID(id)
}

// Join makes the local process a guest of id.
func (d *Directory) Join(id string) {
	d.Role = RoleGuest
	d.SetSessionID(id)
}

// Leave resets membership but keeps the persisted identity.
func (d *Directory) Leave() {
	*d = Directory{PlayerID: d.PlayerID, ClaimedSeat: -1}
}

// EnsurePlayerID loads the persisted identity or mints and stores a new one.
func (d *Directory) EnsurePlayerID(p Prefs) error {
	if d.PlayerID != "" {
		return nil
	}
	if p != nil {
		id, err := p.PlayerID()
		if err == nil && id != "" {
			d.PlayerID = id
			return nil
		}
	}
	id, err := NewPlayerID()
	if err != nil {
		return fmt.Errorf("player id: %w", err)
	}
	d.PlayerID = id
	if p != nil {
		if err := p.SetPlayerID(id); err != nil {
			return fmt.Errorf("persist player id: %w", err)
		}
	}
	return nil
}

// ClearDisplay zeroes the peer count and ping shown to the user.
func (d *Directory) ClearDisplay() {
	d.PlayerCount = 0
	d.Ping = 0
}
