package binder

import (
	"context"
	"net/url"
	"strings"

	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/identity"
)

type State string

const (
	StateStart     State = "start"
	StateGuestMode State = "guest"
	StateJoined    State = "joined"
)

// ConversationQueryParam carries the bound conversation in shareable links.
const ConversationQueryParam = "conversation_id"

type Binding struct {
	State          State
	ConversationID string
	ShareURL       string
	Created        bool
	// Degraded is set when binding failed and the session fell back to
	// guest behaviour.
	Degraded bool
}

func (b Binding) Joined() bool {
	return b.State == StateJoined && b.ConversationID != ""
}

type MessageWriter interface {
	Write(ctx context.Context, params conversation.PostMessageParams) (model.MessageItem, error)
}

type Binder struct {
	conversations *conversation.Service
	shareBase     string
	log           *logger.Logger
}

func New(conversations *conversation.Service, shareBase string, log *logger.Logger) *Binder {
	return &Binder{
		conversations: conversations,
		shareBase:     shareBase,
		log:           logger.OrNop(log).With("component", "binder"),
	}
}

// Bind runs one chat-open event from Start to GuestMode or Joined.
func (b *Binder) Bind(ctx context.Context, id identity.Identity, candidateID string) Binding {
	if id.IsGuest() {
		return Binding{State: StateGuestMode}
	}

	conversationID, created, err := b.resolve(ctx, id, strings.TrimSpace(candidateID))
	if err != nil {
		b.log.Warn("binding failed, continuing in guest mode", "uid", id.UID, "candidate", candidateID, "error", err)
		return Binding{State: StateGuestMode, Degraded: true}
	}

	return b.join(ctx, id, conversationID, created)
}

// Join binds id to a conversation that is already known to exist, such as
// one opened for a guest by the notify function.
func (b *Binder) Join(ctx context.Context, id identity.Identity, conversationID string) Binding {
	return b.join(ctx, id, conversationID, false)
}

func (b *Binder) join(ctx context.Context, id identity.Identity, conversationID string, created bool) Binding {
	if err := b.conversations.EnsureParticipant(ctx, conversationID, id.ParticipantKey()); err != nil {
		b.log.Warn("participant upsert failed, continuing in guest mode", "conversation", conversationID, "error", err)
		return Binding{State: StateGuestMode, Degraded: true}
	}
	return Binding{
		State:          StateJoined,
		ConversationID: conversationID,
		ShareURL:       ShareURL(b.shareBase, conversationID),
		Created:        created,
	}
}

func (b *Binder) resolve(ctx context.Context, id identity.Identity, candidateID string) (string, bool, error) {
	if candidateID != "" {
		_, err := b.conversations.Get(ctx, candidateID)
		if err == nil {
			return candidateID, false, nil
		}
		if !conversation.IsNotFound(err) {
			return "", false, err
		}
		b.log.Debug("candidate conversation not found", "candidate", candidateID)
	}

	res, err := b.conversations.Ensure(ctx, conversation.EnsureParams{
		OwnerUID:  id.UID,
		VisitorID: id.VisitorID,
	})
	if err != nil {
		return "", false, err
	}
	return res.Conversation.ConversationID, res.Created, nil
}

// Drain takes the guest buffer and writes it into conversationID in
// original order. Messages appended after the take stay buffered. Write
// failures are logged; taken entries are not put back.
func (b *Binder) Drain(ctx context.Context, buffer *localstore.GuestBuffer, writer MessageWriter, conversationID, senderUID string) int {
	entries, err := buffer.Take(ctx)
	if err != nil {
		b.log.Warn("guest buffer take failed", "conversation", conversationID, "error", err)
		return 0
	}
	written := 0
	for _, entry := range entries {
		params := conversation.PostMessageParams{
			ConversationID: conversationID,
			Role:           entry.Role,
			Content:        entry.Content,
			CreatedAt:      entry.CreatedAt,
		}
		if entry.Role == model.RoleCustomer {
			params.SenderUID = senderUID
		}
		if _, err := writer.Write(ctx, params); err != nil {
			b.log.Warn("guest buffer drain stopped", "conversation", conversationID, "written", written, "total", len(entries), "error", err)
			break
		}
		written++
	}
	return written
}

// ShareURL mirrors conversationID into the conversation query parameter of
// base. An unparsable base yields a bare query string.
func ShareURL(base, conversationID string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return "?" + ConversationQueryParam + "=" + url.QueryEscape(conversationID)
	}
	q := u.Query()
	q.Set(ConversationQueryParam, conversationID)
	u.RawQuery = q.Encode()
	return u.String()
}
