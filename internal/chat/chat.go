package chat

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/DoyleJ11/townsquare-live/internal/game"
	"github.com/DoyleJ11/townsquare-live/internal/wire"
)

type Channel string

const (
	Left     Channel = "left"
	Right    Channel = "right"
	Global   Channel = "global"
	Host     Channel = "host"
	Whispers Channel = "whispers"
)

var Channels = []Channel{Left, Right, Global, Host, Whispers}

type Message struct {
	From     string
	To       string
	FromName string
	ToName   string
	Text     string
	At       time.Time
}

// Activity is a seat-to-seat message notification, used for table animations.
type Activity struct {
	From int
	To   int
}

// Names resolves a player id to a display name; ok is false for unknown ids.
type Names func(id string) (string, bool)

type Store struct {
	link     wire.Link
	clock    clockwork.Clock
	names    Names
	hostName string

	messages map[Channel][]Message
	activity []Activity
}

func New(link wire.Link, clock clockwork.Clock, names Names, hostName string) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		link:     link,
		clock:    clock,
		names:    names,
		hostName: hostName,
		messages: make(map[Channel][]Message),
	}
}

func (s *Store) Messages(ch Channel) []Message { return s.messages[ch] }
func (s *Store) Activity() []Activity          { return s.activity }

// Receive files a message under ch, resolving sender and recipient names.
func (s *Store) Receive(c wire.Chat, ch Channel) {
	s.messages[ch] = append(s.messages[ch], Message{
		From:     c.From,
		To:       c.To,
		FromName: s.display(c.From, c.From),
		ToName:   s.display(c.To, "Undefined"),
		Text:     c.Message,
		At:       s.clock.Now(),
	})
}

func (s *Store) display(id, fallback string) string {
	if id == "" || id == wire.HostID {
		return s.hostName
	}
	if s.names != nil {
		if name, ok := s.names(id); ok && name != "" {
			return name
		}
	}
	return fallback
}

// Route picks the neighbour channel for a whisper. ok is false when the
// sender sits next to neither side.
func Route(from string, left, right game.Player) (Channel, bool) {
	switch {
	case from != "" && left.ID == from:
		return Left, true
	case from != "" && right.ID == from:
		return Right, true
	default:
		return "", false
	}
}

func (s *Store) NoteActivity(from, to int) {
	s.activity = append(s.activity, Activity{From: from, To: to})
}

// Clear wipes every channel. The host tells the table to do the same.
func (s *Store) Clear(origin game.Origin) {
	s.messages = make(map[Channel][]Message)
	s.activity = nil
	if origin == game.Local && s.link.IsHost() {
		s.link.Send(wire.TagClearChat, nil)
	}
}
