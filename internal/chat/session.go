package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/binder"
	"ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/feed"
	"ecolisting-chat-backend/internal/service/identity"
	"ecolisting-chat-backend/internal/service/notify"
)

var (
	ErrSessionClosed = errors.New("chat: session closed")
	ErrSuperseded    = errors.New("chat: binding superseded by a newer open")
)

type EventType string

const (
	EventMessage    EventType = "message"
	EventTyping     EventType = "typing"
	EventBound      EventType = "bound"
	EventSendFailed EventType = "send_failed"
)

type Event struct {
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversationId,omitempty"`
	State          binder.State   `json:"state,omitempty"`
	ShareURL       string         `json:"shareUrl,omitempty"`
	Message        *feed.Message  `json:"message,omitempty"`
	Messages       []feed.Message `json:"messages,omitempty"`
	Typing         bool           `json:"typing"`
	Content        string         `json:"content,omitempty"`
	Error          string         `json:"error,omitempty"`
}

const eventBufferSize = 256

// Session is one live chat view. Every Open starts a new generation; work
// finishing for an older generation is discarded.
type Session struct {
	svc    *Service
	buffer *localstore.GuestBuffer
	log    *logger.Logger
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	client     Client
	id         identity.Identity
	binding    binder.Binding
	view       *feed.Feed
	sub        *realtime.Subscription
	typing     bool
	generation uint64
	closed     bool
}

func (s *Service) NewSession(client Client) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		svc:     s,
		buffer:  s.buffer(client),
		log:     s.log.With("profile", client.Profile),
		events:  make(chan Event, eventBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		client:  client,
		binding: binder.Binding{State: binder.StateStart},
		view:    feed.NewFeed(nil),
	}
}

func (s *Session) Events() <-chan Event {
	return s.events
}

// SetToken replaces the session token used by the next Open.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.Token = token
}

// Open tears down the current live feed, then resolves identity, binds,
// loads history and subscribes, strictly in that order.
func (s *Session) Open(ctx context.Context, candidateID string) (binder.Binding, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return binder.Binding{}, ErrSessionClosed
	}
	s.generation++
	gen := s.generation
	old := s.sub
	s.sub = nil
	s.binding = binder.Binding{State: binder.StateStart}
	s.typing = false
	client := s.client
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}

	id := s.svc.Identity(ctx, client)
	binding := s.svc.binder.Bind(ctx, id, candidateID)
	return binding, s.attach(ctx, gen, id, binding)
}

// attach installs binding for generation gen. A joined binding first takes
// over the guest buffer.
func (s *Session) attach(ctx context.Context, gen uint64, id identity.Identity, binding binder.Binding) error {
	var history []feed.Message
	if binding.Joined() {
		s.svc.drain(ctx, id, s.buffer, binding.ConversationID)
		history = s.svc.feed.Load(ctx, binding.ConversationID)
	} else {
		history = s.svc.feed.LoadGuest(ctx, s.buffer)
	}

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.id = id
	s.binding = binding
	s.view = feed.NewFeed(history)
	s.emitLocked(Event{
		Type:           EventBound,
		ConversationID: binding.ConversationID,
		State:          binding.State,
		ShareURL:       binding.ShareURL,
		Messages:       s.view.Messages(),
	})
	s.mu.Unlock()

	if !binding.Joined() {
		return nil
	}

	conversationID := binding.ConversationID
	sub, err := s.svc.feed.Subscribe(ctx, conversationID, func(m feed.Message) {
		s.onInsert(gen, conversationID, m)
	})
	if err != nil {
		s.log.Warn("live feed unavailable", "conversation", conversationID, "error", err)
		return nil
	}

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		sub.Cancel()
		return ErrSuperseded
	}
	s.sub = sub
	s.mu.Unlock()

	// Rows written between the load and the subscription reach no
	// callback; pick them up now. The view drops the ones it has.
	for _, m := range s.svc.feed.Load(ctx, conversationID) {
		s.onInsert(gen, conversationID, m)
	}
	return nil
}

func (s *Session) onInsert(gen uint64, conversationID string, m feed.Message) {
	s.mu.Lock()
	if s.closed || s.generation != gen || s.binding.ConversationID != conversationID {
		s.mu.Unlock()
		return
	}
	inserted := s.view.Insert(m)
	if inserted {
		msg := m
		s.emitLocked(Event{Type: EventMessage, ConversationID: conversationID, Message: &msg})
	}
	if inserted && m.Role == model.RoleAutomated && s.typing {
		s.typing = false
		s.emitLocked(Event{Type: EventTyping, ConversationID: conversationID, Typing: false})
	}
	visitorID := s.id.VisitorID
	s.mu.Unlock()

	if inserted && m.Role == model.RoleAutomated {
		s.svc.dispatcher.AutomatedReplySent(model.MessageItem{
			ConversationID: conversationID,
			MessageID:      m.ID,
			Role:           m.Role,
			Content:        m.Content,
		}, visitorID)
	}
}

// Send appends content to the bound conversation, or to the guest buffer in
// guest mode. Only a failure to store the message is returned.
func (s *Session) Send(ctx context.Context, params SendParams) (feed.Message, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return feed.Message{}, newError(ErrorCodeValidation, "message content is required", nil)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return feed.Message{}, ErrSessionClosed
	}
	gen := s.generation
	id := s.id
	binding := s.binding
	s.mu.Unlock()

	if binding.State == binder.StateStart {
		return feed.Message{}, newError(ErrorCodeValidation, "chat is not open yet", nil)
	}

	hooks := notify.Hooks{
		OnTyping: func(active bool) { s.setTyping(gen, active) },
	}

	if !binding.Joined() {
		msg, err := s.svc.feed.AppendGuest(ctx, s.buffer, model.RoleCustomer, content)
		if err != nil {
			s.sendFailed(gen, content, err)
			return feed.Message{}, sendFailed(err)
		}
		s.show(gen, "", msg)

		hooks.OnPromote = func(conversationID string) bool { return s.promote(gen, conversationID) }
		hooks.OnGuestReply = func(reply string) { s.guestReply(gen, reply) }
		s.svc.dispatcher.Dispatch(notify.Outbound{
			Sender:       id,
			Content:      content,
			PropertyID:   params.PropertyID,
			Address:      params.Address,
			GuestHistory: guestHistory(s.buffer.Read(ctx)),
		}, hooks)
		return msg, nil
	}

	if err := s.svc.conversations.EnsureParticipant(ctx, binding.ConversationID, id.ParticipantKey()); err != nil {
		s.log.Warn("participant upsert before send failed", "conversation", binding.ConversationID, "error", err)
	}

	item, err := s.svc.feed.Write(ctx, conversation.PostMessageParams{
		ConversationID: binding.ConversationID,
		Role:           id.MessageRole(),
		Content:        content,
		SenderUID:      id.UID,
	})
	if err != nil {
		s.sendFailed(gen, content, err)
		return feed.Message{}, sendFailed(err)
	}
	msg := feed.FromItem(item)
	s.show(gen, binding.ConversationID, msg)

	s.svc.dispatcher.Dispatch(notify.Outbound{
		Sender:     id,
		Message:    item,
		Content:    content,
		PropertyID: params.PropertyID,
		Address:    params.Address,
	}, hooks)
	return msg, nil
}

// show puts the sender's own message in the view if the binding it was
// sent under is still current.
func (s *Session) show(gen uint64, conversationID string, msg feed.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen || s.binding.ConversationID != conversationID {
		return
	}
	if s.view.Insert(msg) {
		m := msg
		s.emitLocked(Event{Type: EventMessage, ConversationID: conversationID, Message: &m})
	}
}

func (s *Session) sendFailed(gen uint64, content string, err error) {
	s.log.Warn("send failed", "error", err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.emitLocked(Event{
		Type:           EventSendFailed,
		ConversationID: s.binding.ConversationID,
		Content:        content,
		Error:          "message could not be sent, please retry",
	})
}

func (s *Session) setTyping(gen uint64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen || s.typing == active {
		return
	}
	s.typing = active
	s.emitLocked(Event{Type: EventTyping, ConversationID: s.binding.ConversationID, Typing: active})
}

// promote binds a guest session to a conversation opened on its behalf.
func (s *Session) promote(gen uint64, conversationID string) bool {
	s.mu.Lock()
	if s.closed || s.generation != gen || s.binding.Joined() {
		s.mu.Unlock()
		return false
	}
	id := s.id
	s.mu.Unlock()

	binding := s.svc.binder.Join(s.ctx, id, conversationID)
	if !binding.Joined() {
		return false
	}
	if err := s.attach(s.ctx, gen, id, binding); err != nil {
		return false
	}
	s.log.Info("guest promoted", "conversation", conversationID, "visitor", id.VisitorID)
	return true
}

func (s *Session) guestReply(gen uint64, reply string) {
	s.mu.Lock()
	if s.closed || s.generation != gen || s.binding.Joined() {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	msg, err := s.svc.feed.AppendGuest(s.ctx, s.buffer, model.RoleAutomated, reply)
	if err != nil {
		s.log.Warn("store guest reply failed", "error", err)
		return
	}
	s.show(gen, "", msg)
}

func (s *Session) emitLocked(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event dropped, consumer too slow", "type", ev.Type)
	}
}

func (s *Session) Messages() []feed.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Messages()
}

func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

func (s *Session) Binding() binder.Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding
}

func (s *Session) Identity() identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Close cancels the live feed. No event is emitted after it returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	old := s.sub
	s.sub = nil
	close(s.events)
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	s.cancel()
}
