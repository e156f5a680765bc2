package websocket

import "encoding/json"

type Room struct {
	Id      string               `json:"id"`
	Clients map[string]*WSClient `json:"clients"`
}

// WSMessage is what room members receive.
type WSMessage struct {
	Content   json.RawMessage `json:"content"`
	RoomID    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
}

type FrameType string

const (
	FrameOpen  FrameType = "open"
	FrameSend  FrameType = "send"
	FrameToken FrameType = "token"
	FrameError FrameType = "error"
)

// ClientFrame is a message from a chat connection.
type ClientFrame struct {
	Type           FrameType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Content        string    `json:"content,omitempty"`
	PropertyID     string    `json:"propertyId,omitempty"`
	Address        string    `json:"address,omitempty"`
	Token          string    `json:"token,omitempty"`
}

type ErrorFrame struct {
	Type  FrameType `json:"type"`
	Error string    `json:"error"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
