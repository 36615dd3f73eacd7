package ws

import (
	"sync"
)

var (
	nextSubscriberID   int
	nextSubscriberIDMu sync.Mutex
)

const (
	EventWelcome     = "WELCOME"
	EventUnreadCount = "UNREAD_COUNT"
	EventLogoChanged = "LOGO_CHANGED"
)

// Welcome is the first message on every connection.
type Welcome struct {
	Type  string `json:"type"`
	ID    int    `json:"id"`
	Count int    `json:"count"`
	Badge string `json:"badge"`
	Logo  string `json:"logo"`
}

type UnreadCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	Badge string `json:"badge"`
}

type LogoChanged struct {
	Type string `json:"type"`
	Logo string `json:"logo"`
}

// Subscriber is one websocket connection. Each gets a unique numeric id, a
// buffered message channel and a closeSlow callback.
type Subscriber struct {
	id        int
	userID    string
	messc     chan []byte
	closeSlow func()
}

func NewSubscriber(userID string, messc chan []byte, closeSlow func()) *Subscriber {
	nextSubscriberIDMu.Lock()
	id := nextSubscriberID
	nextSubscriberID++
	nextSubscriberIDMu.Unlock()

	return &Subscriber{
		id:        id,
		userID:    userID,
		messc:     messc,
		closeSlow: closeSlow,
	}
}

func (s *Subscriber) ID() int { return s.id }

func (s *Subscriber) UserID() string { return s.userID }

// Room groups the connections of one user.
type Room struct {
	ID          string
	mutex       sync.Mutex
	subscribers map[int]*Subscriber
}

func newRoom(id string) *Room {
	return &Room{ID: id, subscribers: make(map[int]*Subscriber)}
}
