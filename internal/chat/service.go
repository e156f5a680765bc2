package chat

import (
	"context"
	"strings"
	"sync"

	"ecolisting-chat-backend/internal/functions"
	internaljwt "ecolisting-chat-backend/internal/jwt"
	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/binder"
	"ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/feed"
	"ecolisting-chat-backend/internal/service/identity"
	"ecolisting-chat-backend/internal/service/notify"
)

// Client is what a request carries about its caller.
type Client struct {
	Token   string
	Profile string
}

type Deps struct {
	Resolver      *identity.Resolver
	Binder        *binder.Binder
	Feed          *feed.Store
	Dispatcher    *notify.Dispatcher
	Conversations *conversation.Service
	Profiles      localstore.Profiles
	Auth          *internaljwt.Authenticator
	Log           *logger.Logger
}

// Service is the request/response face of the chat pipeline. It keeps no
// per-caller state between calls.
type Service struct {
	resolver      *identity.Resolver
	binder        *binder.Binder
	feed          *feed.Store
	dispatcher    *notify.Dispatcher
	conversations *conversation.Service
	profiles      localstore.Profiles
	auth          *internaljwt.Authenticator
	log           *logger.Logger

	buffers sync.Map // profile -> *localstore.GuestBuffer
}

func NewService(deps Deps) *Service {
	return &Service{
		resolver:      deps.Resolver,
		binder:        deps.Binder,
		feed:          deps.Feed,
		dispatcher:    deps.Dispatcher,
		conversations: deps.Conversations,
		profiles:      deps.Profiles,
		auth:          deps.Auth,
		log:           logger.OrNop(deps.Log).With("component", "chat"),
	}
}

type OpenResult struct {
	Identity identity.Identity
	Binding  binder.Binding
	Messages []feed.Message
}

type SendParams struct {
	ConversationID string
	Content        string
	PropertyID     string
	Address        string
}

type SendResult struct {
	Identity identity.Identity
	Message  feed.Message
}

func (s *Service) store(client Client) localstore.Store {
	return s.profiles.Profile(client.Profile)
}

// buffer returns the one GuestBuffer of the client's profile, so every
// caller in this process shares its lock.
func (s *Service) buffer(client Client) *localstore.GuestBuffer {
	profile := client.Profile
	if profile == "" {
		profile = localstore.DefaultProfile
	}
	if b, ok := s.buffers.Load(profile); ok {
		return b.(*localstore.GuestBuffer)
	}
	b, _ := s.buffers.LoadOrStore(profile, localstore.NewGuestBuffer(s.store(client)))
	return b.(*localstore.GuestBuffer)
}

func (s *Service) Identity(ctx context.Context, client Client) identity.Identity {
	return s.resolver.Resolve(ctx, client.Token, s.store(client))
}

// Open resolves the caller, binds a conversation and returns its history.
// A guest buffer left from before sign-in is drained into the bound
// conversation first.
func (s *Service) Open(ctx context.Context, client Client, candidateID string) OpenResult {
	id := s.Identity(ctx, client)
	buffer := s.buffer(client)

	binding, messages := s.bindAndLoad(ctx, id, buffer, candidateID)
	return OpenResult{Identity: id, Binding: binding, Messages: messages}
}

func (s *Service) bindAndLoad(ctx context.Context, id identity.Identity, buffer *localstore.GuestBuffer, candidateID string) (binder.Binding, []feed.Message) {
	binding := s.binder.Bind(ctx, id, candidateID)
	if !binding.Joined() {
		return binding, s.feed.LoadGuest(ctx, buffer)
	}
	s.drain(ctx, id, buffer, binding.ConversationID)
	return binding, s.feed.Load(ctx, binding.ConversationID)
}

func (s *Service) drain(ctx context.Context, id identity.Identity, buffer *localstore.GuestBuffer, conversationID string) {
	if len(buffer.Read(ctx)) == 0 {
		return
	}
	n := s.binder.Drain(ctx, buffer, s.feed, conversationID, id.UID)
	s.log.Info("guest buffer drained", "conversation", conversationID, "messages", n)
}

// History returns the messages of conversationID, or the guest buffer when
// conversationID is empty. Load failures yield an empty list.
func (s *Service) History(ctx context.Context, client Client, conversationID string) ([]feed.Message, error) {
	id := s.Identity(ctx, client)
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return s.feed.LoadGuest(ctx, s.buffer(client)), nil
	}
	if err := s.authorize(ctx, id, conversationID); err != nil {
		return nil, err
	}
	return s.feed.Load(ctx, conversationID), nil
}

func (s *Service) authorize(ctx context.Context, id identity.Identity, conversationID string) error {
	if id.IsStaff() {
		return nil
	}
	c, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if conversation.IsNotFound(err) {
			return newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return err
	}
	if !id.IsGuest() && c.OwnerUID == id.UID {
		return nil
	}
	ok, err := s.conversations.IsParticipant(ctx, conversationID, id.ParticipantKey())
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrorCodeForbidden, "not a participant of this conversation", nil)
	}
	return nil
}

// Send appends content for the caller. Only a failure to store the
// caller's own message is returned; notifications run detached.
func (s *Service) Send(ctx context.Context, client Client, params SendParams) (SendResult, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return SendResult{}, newError(ErrorCodeValidation, "message content is required", nil)
	}

	id := s.Identity(ctx, client)
	buffer := s.buffer(client)
	conversationID := strings.TrimSpace(params.ConversationID)

	if id.IsGuest() || conversationID == "" {
		msg, err := s.feed.AppendGuest(ctx, buffer, model.RoleCustomer, content)
		if err != nil {
			return SendResult{}, sendFailed(err)
		}
		s.dispatcher.Dispatch(notify.Outbound{
			Sender:       id,
			Content:      content,
			PropertyID:   params.PropertyID,
			Address:      params.Address,
			GuestHistory: guestHistory(buffer.Read(ctx)),
		}, notify.Hooks{
			OnGuestReply: func(reply string) {
				if _, err := s.feed.AppendGuest(context.Background(), buffer, model.RoleAutomated, reply); err != nil {
					s.log.Warn("store guest reply failed", "error", err)
				}
			},
		})
		return SendResult{Identity: id, Message: msg}, nil
	}

	if err := s.authorize(ctx, id, conversationID); err != nil {
		return SendResult{}, err
	}
	if err := s.conversations.EnsureParticipant(ctx, conversationID, id.ParticipantKey()); err != nil {
		s.log.Warn("participant upsert before send failed", "conversation", conversationID, "error", err)
	}

	item, err := s.feed.Write(ctx, conversation.PostMessageParams{
		ConversationID: conversationID,
		Role:           id.MessageRole(),
		Content:        content,
		SenderUID:      id.UID,
	})
	if err != nil {
		return SendResult{}, sendFailed(err)
	}

	s.dispatcher.Dispatch(notify.Outbound{
		Sender:     id,
		Message:    item,
		Content:    content,
		PropertyID: params.PropertyID,
		Address:    params.Address,
	}, notify.Hooks{})

	return SendResult{Identity: id, Message: feed.FromItem(item)}, nil
}

// Inbox lists conversations for the caller, or every open one for staff.
func (s *Service) Inbox(ctx context.Context, client Client, limit int) ([]model.ConversationItem, error) {
	id := s.Identity(ctx, client)
	if id.IsGuest() {
		return nil, newError(ErrorCodeUnauthorized, "sign in to see your conversations", nil)
	}
	if id.IsStaff() {
		return s.conversations.OpenInbox(ctx, limit)
	}
	return s.conversations.Inbox(ctx, id.UID, limit)
}

func (s *Service) SignOut(ctx context.Context, client Client) error {
	id := s.Identity(ctx, client)
	if id.IsGuest() {
		return nil
	}
	if err := s.auth.SignOut(ctx, client.Token); err != nil {
		return newError(ErrorCodeUnauthorized, "invalid session", err)
	}
	s.resolver.Forget(id.UID)
	return nil
}

func guestHistory(entries []localstore.GuestEntry) []functions.HistoryEntry {
	out := make([]functions.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, functions.HistoryEntry{Role: string(e.Role), Content: e.Content})
	}
	return out
}
