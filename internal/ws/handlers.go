package ws

import (
	"context"
	"encoding/json"

	"github.com/vindennt/outfred-gateway/internal/nav"
)

// NotifyUnread pushes the current unread count to every connection of userID.
func (h *Hub) NotifyUnread(userID string) {
	if h.RoomSize(userID) == 0 {
		return
	}

	count, err := h.unread.UnreadCount(context.Background(), userID)
	if err != nil {
		h.logf("[ERROR] Failed to count notifications for user '%s': %v", userID, err)
		return
	}

	msg, _ := json.Marshal(UnreadCount{Type: EventUnreadCount, Count: count, Badge: nav.Badge(count)})
	h.publishToRoom(userID, msg)
}

// BroadcastLogo tells every connection that the site logo changed.
func (h *Hub) BroadcastLogo(logo string) {
	msg, _ := json.Marshal(LogoChanged{Type: EventLogoChanged, Logo: logo})
	h.publishAll(msg)
}

// publishToRoom sends msg to all subscribers of one room.
func (h *Hub) publishToRoom(roomID string, msg []byte) {
	h.roomsMutex.Lock()
	room, exists := h.rooms[roomID]
	h.roomsMutex.Unlock()

	if !exists {
		return
	}

	h.publishLimiter.Wait(context.Background())

	room.mutex.Lock()
	defer room.mutex.Unlock()

	sent := 0
	for _, s := range room.subscribers {
		select {
		case s.messc <- msg:
			sent++
		default:
			h.logf("[WARN] Subscriber %d channel full, closing slow", s.ID())
			go s.closeSlow()
		}
	}
	h.logf("[PUBLISH] Message sent to %d/%d subscribers in room '%s'", sent, len(room.subscribers), roomID)
}

// publishAll sends msg to every subscriber in every room.
func (h *Hub) publishAll(msg []byte) {
	h.roomsMutex.Lock()
	rooms := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		rooms = append(rooms, id)
	}
	h.roomsMutex.Unlock()

	for _, id := range rooms {
		h.publishToRoom(id, msg)
	}
}
