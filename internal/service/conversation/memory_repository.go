package conversation

import (
	"context"
	"sync"

	"ecolisting-chat-backend/internal/model"
)

// MemoryRepository keeps everything in process. It backs the memory storage
// mode used for local runs and the tests of dependent packages.
type MemoryRepository struct {
	mu            sync.Mutex
	conversations map[string]model.ConversationItem
	participants  map[string]model.ParticipantItem
	messages      map[string][]model.MessageItem
	roles         map[string]model.UserRole
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]model.ConversationItem),
		participants:  make(map[string]model.ParticipantItem),
		messages:      make(map[string][]model.MessageItem),
		roles:         make(map[string]model.UserRole),
	}
}

func (r *MemoryRepository) SetRole(uid string, role model.UserRole) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[uid] = role
}

func (r *MemoryRepository) GetConversation(_ context.Context, conversationID string) (model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) LatestOpenConversation(_ context.Context, ownerUID string) (model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest, ok := latestOpen(r.ownedBy(ownerUID))
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return latest, nil
}

func (r *MemoryRepository) CreateConversation(_ context.Context, conversation model.ConversationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conversation.ConversationID] = conversation
	return nil
}

func (r *MemoryRepository) AddParticipant(_ context.Context, participant model.ParticipantItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[participant.PK]; ok {
		return nil
	}
	r.participants[participant.PK] = participant
	return nil
}

func (r *MemoryRepository) ListParticipants(_ context.Context, conversationID string) ([]model.ParticipantItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ParticipantItem, 0)
	for _, p := range r.participants {
		if p.ConversationID == conversationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateMessage(_ context.Context, message model.MessageItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[message.ConversationID] = append(r.messages[message.ConversationID], message)
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append([]model.MessageItem(nil), r.messages[conversationID]...)
	return latestMessages(msgs, limit), nil
}

func (r *MemoryRepository) TouchConversation(_ context.Context, conversationID string, touch Touch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = touch.At
	c.LastMessageAt = touch.At
	c.LastMessageRole = touch.Role
	c.LastMessagePreview = touch.Preview
	r.conversations[conversationID] = c
	return nil
}

func (r *MemoryRepository) ListConversationsByOwner(_ context.Context, ownerUID string, limit int) ([]model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return byLastActivity(r.ownedBy(ownerUID), limit), nil
}

func (r *MemoryRepository) ListOpenConversations(_ context.Context, limit int) ([]model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ConversationItem, 0)
	for _, c := range r.conversations {
		if c.Status == model.ConversationStatusOpen {
			out = append(out, c)
		}
	}
	return byLastActivity(out, limit), nil
}

func (r *MemoryRepository) GetRole(_ context.Context, uid string) (model.UserRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[uid]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (r *MemoryRepository) LatestMessageByRole(_ context.Context, conversationID string, role model.MessageRole) (model.MessageItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append([]model.MessageItem(nil), r.messages[conversationID]...)
	latest, ok := latestWithRole(msgs, role)
	if !ok {
		return model.MessageItem{}, ErrNotFound
	}
	return latest, nil
}

func (r *MemoryRepository) ownedBy(ownerUID string) []model.ConversationItem {
	out := make([]model.ConversationItem, 0)
	for _, c := range r.conversations {
		if c.OwnerUID == ownerUID {
			out = append(out, c)
		}
	}
	return out
}
