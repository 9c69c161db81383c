// Package prefs persists the local identity token and the last session the
// user was part of, so a restarted client can rejoin as the same player.
package prefs

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

var ErrNotFound = errors.New("preference not set")

const (
	keyPlayerID = "playerId"
	keySession  = "session"
	keyIsGuest  = "isGuest"
)

type Store interface {
	PlayerID() (string, error)
	SetPlayerID(id string) error
	// Membership reports the last session joined or hosted.
	Membership() (isGuest bool, sessionID string, err error)
	SetMembership(isGuest bool, sessionID string) error
}

// kv is the storage primitive both implementations share.
type kv interface {
	get(ctx context.Context, key string) (string, error)
	put(ctx context.Context, values map[string]string) error
}

type prefs struct{ kv kv }

func (p prefs) PlayerID() (string, error) {
	return p.kv.get(context.Background(), keyPlayerID)
}

func (p prefs) SetPlayerID(id string) error {
	return p.kv.put(context.Background(), map[string]string{keyPlayerID: id})
}

func (p prefs) Membership() (bool, string, error) {
	ctx := context.Background()
	id, err := p.kv.get(ctx, keySession)
	if err != nil {
		return false, "", err
	}
	guest, err := p.kv.get(ctx, keyIsGuest)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, "", err
	}
	isGuest, _ := strconv.ParseBool(guest)
	return isGuest, id, nil
}

func (p prefs) SetMembership(isGuest bool, sessionID string) error {
	return p.kv.put(context.Background(), map[string]string{
		keySession: sessionID,
		keyIsGuest: strconv.FormatBool(isGuest),
	})
}

// Memory keeps preferences for the life of the process.
type Memory struct{ prefs }

func NewMemory() *Memory {
	return &Memory{prefs{kv: &memKV{values: map[string]string{}}}}
}

type memKV struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memKV) get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memKV) put(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}
