package feed

import (
	"time"

	"ecolisting-chat-backend/internal/model"
)

// Message is the shape both persisted and guest-buffered messages take in a
// feed.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId,omitempty"`
	Role           model.MessageRole `json:"role"`
	Display        model.DisplayRole `json:"display"`
	Content        string            `json:"content"`
	SenderUID      string            `json:"senderUid,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	Local          bool              `json:"local,omitempty"`
}

func FromItem(item model.MessageItem) Message {
	return Message{
		ID:             item.MessageID,
		ConversationID: item.ConversationID,
		Role:           item.Role,
		Display:        model.Present(item.Role),
		Content:        item.Content,
		SenderUID:      item.SenderUID,
		CreatedAt:      item.CreatedTime(),
	}
}

func FromItems(items []model.MessageItem) []Message {
	out := make([]Message, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

func less(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
