package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/conversation"

	"github.com/google/uuid"
)

type Store struct {
	conversations *conversation.Service
	broker        *realtime.Broker
	historyLimit  int
	log           *logger.Logger
}

func NewStore(conversations *conversation.Service, broker *realtime.Broker, historyLimit int, log *logger.Logger) *Store {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Store{
		conversations: conversations,
		broker:        broker,
		historyLimit:  historyLimit,
		log:           logger.OrNop(log).With("component", "feed"),
	}
}

// Load returns history in ascending order. A failed load is an empty feed.
func (s *Store) Load(ctx context.Context, conversationID string) []Message {
	items, err := s.conversations.ListMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		s.log.Warn("history load failed, showing empty feed", "conversation", conversationID, "error", err)
		return []Message{}
	}
	return FromItems(items)
}

// LoadGuest maps the guest buffer into feed messages.
func (s *Store) LoadGuest(ctx context.Context, buffer *localstore.GuestBuffer) []Message {
	entries := buffer.Read(ctx)
	out := make([]Message, 0, len(entries))
	for i, e := range entries {
		out = append(out, Message{
			ID:        fmt.Sprintf("local-%d", i),
			Role:      e.Role,
			Display:   model.Present(e.Role),
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
			Local:     true,
		})
	}
	return out
}

// Write persists a message and publishes it on the conversation's change
// feed. A publish failure is logged; the message is already durable.
func (s *Store) Write(ctx context.Context, params conversation.PostMessageParams) (model.MessageItem, error) {
	item, err := s.conversations.PostMessage(ctx, params)
	if err != nil {
		return model.MessageItem{}, err
	}

	payload, err := json.Marshal(FromItem(item))
	if err != nil {
		s.log.Warn("encode change event failed", "message", item.MessageID, "error", err)
		return item, nil
	}
	if err := s.broker.Publish(ctx, realtime.ConversationChannel(item.ConversationID), payload); err != nil {
		s.log.Warn("publish change event failed", "conversation", item.ConversationID, "error", err)
	}
	return item, nil
}

// AppendGuest stores a message in the guest buffer and returns it in feed
// shape right away.
func (s *Store) AppendGuest(ctx context.Context, buffer *localstore.GuestBuffer, role model.MessageRole, content string) (Message, error) {
	entry, err := buffer.Append(ctx, role, content, s.conversations.Now())
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:        "local-" + uuid.NewString(),
		Role:      entry.Role,
		Display:   model.Present(entry.Role),
		Content:   entry.Content,
		CreatedAt: entry.CreatedAt,
		Local:     true,
	}, nil
}

// Subscribe calls onInsert for each message published to conversationID.
// Undecodable events are skipped.
func (s *Store) Subscribe(ctx context.Context, conversationID string, onInsert func(Message)) (*realtime.Subscription, error) {
	return s.broker.Subscribe(ctx, realtime.ConversationChannel(conversationID), func(payload []byte) {
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			s.log.Warn("dropping undecodable change event", "conversation", conversationID, "error", err)
			return
		}
		if m.ConversationID != "" && m.ConversationID != conversationID {
			return
		}
		onInsert(m)
	})
}

// Append writes to conversationID when bound and to the guest buffer when
// conversationID is empty.
func (s *Store) Append(ctx context.Context, conversationID string, buffer *localstore.GuestBuffer, role model.MessageRole, content, senderUID string) (Message, error) {
	if conversationID == "" {
		return s.AppendGuest(ctx, buffer, role, content)
	}
	item, err := s.Write(ctx, conversation.PostMessageParams{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		SenderUID:      senderUID,
	})
	if err != nil {
		return Message{}, err
	}
	return FromItem(item), nil
}
