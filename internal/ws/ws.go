// Package ws pushes header updates to browsers over websocket: unread
// notification counts per user and site-wide logo changes.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vindennt/outfred-gateway/internal/auth"
	"github.com/vindennt/outfred-gateway/internal/metrics"
	"github.com/vindennt/outfred-gateway/internal/models"
	"github.com/vindennt/outfred-gateway/internal/nav"
)

// IdentifyFunc resolves the caller of an upgrade request; satisfied by
// auth.Authenticator.Identify.
type IdentifyFunc func(r *http.Request) (context.Context, bool)

type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type LogoSource interface {
	Logo(ctx context.Context) string
}

type Hub struct {
	// Controls the message queue's window size
	// Messages exceeding the window get dropped
	subscriberMessageBuffer int

	// Default: 1 every 100ms, burst capacity of 8
	publishLimiter *rate.Limiter

	logf func(format string, v ...any)

	identify       IdentifyFunc
	unread         UnreadCounter
	logo           LogoSource
	originPatterns []string

	roomsMutex sync.Mutex
	rooms      map[string]*Room // keyed by user id
}

type Option func(*Hub)

// WithOriginPatterns restricts which origins may open a connection. Without
// patterns origin checks are skipped.
func WithOriginPatterns(patterns []string) Option {
	return func(h *Hub) { h.originPatterns = patterns }
}

func NewHub(identify IdentifyFunc, unread UnreadCounter, logo LogoSource, logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		subscriberMessageBuffer: 12,
		publishLimiter:          rate.NewLimiter(rate.Every(time.Millisecond*100), 8),
		logf:                    logger.Sugar().Debugf,
		identify:                identify,
		unread:                  unread,
		logo:                    logo,
		rooms:                   make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades authenticated requests and streams events until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.identify(r)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	id, _ := auth.IdentityFrom(ctx)

	err := h.subscribe(w, r, id.ID)
	if errors.Is(err, context.Canceled) {
		h.logf("Subscription canceled: %v", err)
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
		h.logf("WebSocket connection closed: %v", err)
		return
	}
	if err != nil {
		h.logf("Failed to subscribe: %v", err)
	}
}

func (h *Hub) addSubscriber(s *Subscriber) {
	h.roomsMutex.Lock()
	defer h.roomsMutex.Unlock()

	room, ok := h.rooms[s.userID]
	if !ok {
		room = newRoom(s.userID)
		h.rooms[s.userID] = room
	}
	room.mutex.Lock()
	room.subscribers[s.ID()] = s
	room.mutex.Unlock()
	metrics.PushSubscribers.Inc()
}

func (h *Hub) removeSubscriber(s *Subscriber) {
	h.roomsMutex.Lock()
	defer h.roomsMutex.Unlock()

	room, ok := h.rooms[s.userID]
	if !ok {
		return
	}
	room.mutex.Lock()
	delete(room.subscribers, s.ID())
	empty := len(room.subscribers) == 0
	room.mutex.Unlock()

	if empty {
		delete(h.rooms, s.userID)
	}
	metrics.PushSubscribers.Dec()
}

// RoomSize returns the number of open connections of userID.
func (h *Hub) RoomSize(userID string) int {
	h.roomsMutex.Lock()
	room, ok := h.rooms[userID]
	h.roomsMutex.Unlock()
	if !ok {
		return 0
	}

	room.mutex.Lock()
	defer room.mutex.Unlock()
	return len(room.subscribers)
}

// SubscriberCount returns the number of open connections across all rooms.
func (h *Hub) SubscriberCount() int {
	h.roomsMutex.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.roomsMutex.Unlock()

	n := 0
	for _, room := range rooms {
		room.mutex.Lock()
		n += len(room.subscribers)
		room.mutex.Unlock()
	}
	return n
}

func writeTimeout(ctx context.Context, timeout time.Duration, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, msg)
}

// subscribe registers the connection in the user's room and writes queued
// messages until the client closes or falls behind.
func (h *Hub) subscribe(w http.ResponseWriter, r *http.Request, userID string) error {
	var mutex sync.Mutex
	var conn *websocket.Conn
	var closed bool

	s := NewSubscriber(userID, make(chan []byte, h.subscriberMessageBuffer), func() {
		mutex.Lock()
		defer mutex.Unlock()

		closed = true
		if conn != nil {
			conn.Close(websocket.StatusPolicyViolation, "Connection is too slow to keep up with messages")
		}
	})

	opts := websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: len(h.originPatterns) == 0,
	}
	connRes, err := websocket.Accept(w, r, &opts)
	if err != nil {
		return err
	}

	// closeSlow may already have fired from a publish
	mutex.Lock()
	if closed {
		mutex.Unlock()
		return net.ErrClosed
	}
	conn = connRes
	mutex.Unlock()
	defer conn.CloseNow()

	// Join the room before reading the count so that a change landing in
	// between is queued behind the welcome frame instead of lost.
	h.addSubscriber(s)
	defer h.removeSubscriber(s)

	count, err := h.unread.UnreadCount(r.Context(), userID)
	if err != nil {
		h.logf("[ERROR] Failed to count notifications for user '%s': %v", userID, err)
	}
	welcome, _ := json.Marshal(Welcome{
		Type:  EventWelcome,
		ID:    s.ID(),
		Count: count,
		Badge: nav.Badge(count),
		Logo:  h.logo.Logo(r.Context()),
	})
	if err := writeTimeout(r.Context(), time.Second*5, conn, welcome); err != nil {
		return err
	}

	// Read only: the context ends when the client closes the connection
	ctx := conn.CloseRead(context.Background())

	for {
		select {
		case msg := <-s.messc:
			if err := writeTimeout(ctx, time.Second*5, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
