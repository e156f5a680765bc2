package websocket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"ecolisting-chat-backend/internal/logger"
)

type Hub struct {
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *WSMessage

	mu    sync.RWMutex
	rooms map[string]*Room
	done  chan struct{}
	log   *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *WSMessage),
		rooms:      make(map[string]*Room),
		done:       make(chan struct{}),
		log:        logger.OrNop(log).With("component", "ws_hub"),
	}
}

// Run serves the hub channels until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.mu.Lock()
			room, ok := h.rooms[client.RoomID]
			if !ok {
				h.mu.Unlock()
				h.log.Warn("register for unknown room", "room", client.RoomID, "client", client.ID)
				close(client.Message)
				continue
			}
			room.Clients[client.ID] = client
			h.mu.Unlock()
			incConnections()

		case client := <-h.Unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.RoomID]; ok {
				if _, ok := room.Clients[client.ID]; ok {
					delete(room.Clients, client.ID)
					close(client.Message)
					decConnections()
				}
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			payload, err := json.Marshal(message)
			if err != nil {
				h.log.Warn("encode room message failed", "room", message.RoomID, "error", err)
				continue
			}
			h.mu.Lock()
			room, ok := h.rooms[message.RoomID]
			if !ok {
				h.mu.Unlock()
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- payload:
					delivered++
				default:
					h.log.Warn("dropping slow room member", "room", room.Id, "client", client.ID)
					close(client.Message)
					delete(room.Clients, client.ID)
					decConnections()
				}
			}
			h.mu.Unlock()
			if delivered > 0 {
				addDelivered(delivered)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for id, client := range room.Clients {
			close(client.Message)
			delete(room.Clients, id)
			decConnections()
		}
	}
}

// EnsureRoom creates the room when missing and reports whether it did.
func (h *Hub) EnsureRoom(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.rooms[id]; exists {
		return false
	}
	h.rooms[id] = &Room{Id: id, Clients: make(map[string]*WSClient)}
	setRooms(len(h.rooms))
	return true
}

func (h *Hub) Rooms() []RoomRes {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]RoomRes, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, RoomRes{ID: room.Id, Clients: len(room.Clients)})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// Publish hands payload to every member of roomID. It gives up once the
// hub has stopped.
func (h *Hub) Publish(roomID string, payload []byte) bool {
	msg := &WSMessage{Content: json.RawMessage(payload), RoomID: roomID, Timestamp: time.Now().Unix()}
	select {
	case h.Broadcast <- msg:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) join(client *WSClient) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *WSClient) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}
