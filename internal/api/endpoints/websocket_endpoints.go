package endpoints

import (
	"net/http"

	"ecolisting-chat-backend/internal/websocket"
)

type WebsocketEndpoints interface {
	Chat(http.ResponseWriter, *http.Request) error
	StaffAlerts(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type websocketEndpoints struct {
	handler *websocket.Handler
}

func NewWebsocketEndpoints(handler *websocket.Handler) WebsocketEndpoints {
	return &websocketEndpoints{handler: handler}
}

func (h *websocketEndpoints) Chat(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.handler.Chat(w, r)
			return nil
		},
	})
}

func (h *websocketEndpoints) StaffAlerts(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.handler.StaffAlerts(w, r)
			return nil
		},
	})
}

func (h *websocketEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.handler.GetRooms(w, r)
			return nil
		},
	})
}
