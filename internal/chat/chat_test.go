package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ecolisting-chat-backend/internal/functions"
	internaljwt "ecolisting-chat-backend/internal/jwt"
	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/queue"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/binder"
	"ecolisting-chat-backend/internal/service/conversation"
	"ecolisting-chat-backend/internal/service/feed"
	"ecolisting-chat-backend/internal/service/identity"
	"ecolisting-chat-backend/internal/service/notify"
)

type fakeFunctions struct {
	mu        sync.Mutex
	policy    bool
	promoteTo string
	reply     string
	triggers  []string
	notified  []functions.NotifyPayload
	guestAsks int
}

func (f *fakeFunctions) ShouldAutoReply(context.Context, string, time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy, nil
}

func (f *fakeFunctions) TriggerAutoReply(_ context.Context, conversationID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, conversationID)
	return nil
}

func (f *fakeFunctions) GuestReply(context.Context, []functions.HistoryEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guestAsks++
	return f.reply, nil
}

func (f *fakeFunctions) StaffNotify(_ context.Context, payload functions.NotifyPayload) (functions.NotifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, payload)
	return functions.NotifyResult{OK: true, ConversationID: f.promoteTo}, nil
}

func (f *fakeFunctions) triggered(conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.triggers {
		if id == conversationID {
			return true
		}
	}
	return false
}

func (f *fakeFunctions) countEvent(event functions.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.notified {
		if p.Event == event {
			n++
		}
	}
	return n
}

type flakyRepository struct {
	*conversation.MemoryRepository
	mu        sync.Mutex
	failSend  bool
	failBind  bool
	afterList func(conversationID string)
}

func (r *flakyRepository) LatestOpenConversation(ctx context.Context, ownerUID string) (model.ConversationItem, error) {
	r.mu.Lock()
	fail := r.failBind
	r.mu.Unlock()
	if fail {
		return model.ConversationItem{}, errors.New("table unavailable")
	}
	return r.MemoryRepository.LatestOpenConversation(ctx, ownerUID)
}

// ListMessages runs afterList once, after the rows were read.
func (r *flakyRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	msgs, err := r.MemoryRepository.ListMessages(ctx, conversationID, limit)
	r.mu.Lock()
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()
	if hook != nil {
		hook(conversationID)
	}
	return msgs, err
}

func (r *flakyRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	r.mu.Lock()
	fail := r.failSend
	r.mu.Unlock()
	if fail {
		return errors.New("write rejected")
	}
	return r.MemoryRepository.CreateMessage(ctx, message)
}

type harness struct {
	svc           *Service
	repo          *flakyRepository
	conversations *conversation.Service
	store         *feed.Store
	broker        *realtime.Broker
	fns           *fakeFunctions
	auth          *internaljwt.Authenticator
	rqm           *queue.RequestQueueManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := &flakyRepository{MemoryRepository: conversation.NewMemoryRepository()}
	conversations := conversation.NewWithRepository(repo, nil)
	broker := realtime.NewBroker(realtime.NewMemoryBus(), nil)
	store := feed.NewStore(conversations, broker, 200, nil)
	auth := internaljwt.NewAuthenticator("test-secret", nil)
	fns := &fakeFunctions{}
	rqm := queue.NewRequestQueueManager(32, 2, nil)
	t.Cleanup(rqm.Shutdown)

	svc := NewService(Deps{
		Resolver:      identity.NewResolver(auth, conversations, time.Minute, nil),
		Binder:        binder.New(conversations, "https://ecolisting.test/chat", nil),
		Feed:          store,
		Dispatcher:    notify.NewDispatcher(fns, conversations, broker, rqm, notify.Config{}, nil),
		Conversations: conversations,
		Profiles:      localstore.NewMemoryProfiles(),
		Auth:          auth,
	})
	return &harness{
		svc:           svc,
		repo:          repo,
		conversations: conversations,
		store:         store,
		broker:        broker,
		fns:           fns,
		auth:          auth,
		rqm:           rqm,
	}
}

func (h *harness) token(t *testing.T, uid string) string {
	t.Helper()
	tokens, err := h.auth.CreateToken(internaljwt.User{Id: uid}, 0)
	if err != nil {
		t.Fatalf("CreateToken returned error: %v", err)
	}
	return tokens.AccessToken
}

func (h *harness) session(t *testing.T, client Client) *Session {
	t.Helper()
	s := h.svc.NewSession(client)
	t.Cleanup(s.Close)
	return s
}

func waitEvent(t *testing.T, s *Session, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("event stream closed")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event")
			return Event{}
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func isMessage(id string) func(Event) bool {
	return func(ev Event) bool {
		return ev.Type == EventMessage && ev.Message != nil && ev.Message.ID == id
	}
}

func TestGuestMessagesMoveIntoConversationOnSignIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	client := Client{Profile: "browser-1"}

	s := h.session(t, client)
	binding, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if binding.State != binder.StateGuestMode {
		t.Fatalf("expected guest mode, got %s", binding.State)
	}

	for _, text := range []string{"Is the house on Elm St available?", "Does it have solar panels?"} {
		if _, err := s.Send(ctx, SendParams{Content: text}); err != nil {
			t.Fatalf("guest Send returned error: %v", err)
		}
	}
	h.rqm.Wait()

	if got := len(s.Messages()); got != 2 {
		t.Fatalf("expected 2 local messages, got %d", got)
	}

	s.SetToken(h.token(t, "user-1"))
	binding, err = s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open after sign-in returned error: %v", err)
	}
	if !binding.Joined() || !binding.Created {
		t.Fatalf("expected a newly created joined conversation, got %+v", binding)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected drained history of 2, got %d", len(msgs))
	}
	if msgs[0].Content != "Is the house on Elm St available?" || msgs[1].Content != "Does it have solar panels?" {
		t.Fatalf("drained messages out of order: %+v", msgs)
	}
	for _, m := range msgs {
		if m.Local || m.ConversationID != binding.ConversationID || m.SenderUID != "user-1" {
			t.Fatalf("unexpected drained message %+v", m)
		}
	}

	if entries := h.svc.buffer(client).Read(ctx); len(entries) != 0 {
		t.Fatalf("expected guest buffer to be cleared, got %d entries", len(entries))
	}
}

func TestReopenDropsPreviousLiveFeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	other, err := h.conversations.Ensure(ctx, conversation.EnsureParams{OwnerUID: "user-2"})
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}

	s := h.session(t, Client{Token: h.token(t, "user-1"), Profile: "p"})
	first, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	second, err := s.Open(ctx, other.Conversation.ConversationID)
	if err != nil {
		t.Fatalf("second Open returned error: %v", err)
	}
	if second.ConversationID == first.ConversationID {
		t.Fatalf("expected a different conversation on reopen")
	}
	if got := h.broker.Active(); got != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", got)
	}

	stale, err := h.store.Write(ctx, conversation.PostMessageParams{
		ConversationID: first.ConversationID,
		Role:           model.RoleStaff,
		Content:        "reply in the old conversation",
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	fresh, err := h.store.Write(ctx, conversation.PostMessageParams{
		ConversationID: second.ConversationID,
		Role:           model.RoleStaff,
		Content:        "reply in the current conversation",
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	waitEvent(t, s, isMessage(fresh.MessageID))
	for _, m := range s.Messages() {
		if m.ID == stale.MessageID {
			t.Fatalf("message from the previous conversation leaked into the view")
		}
	}

	s.Close()
	if got := h.broker.Active(); got != 0 {
		t.Fatalf("expected no live subscription after Close, got %d", got)
	}
}

func TestSendFailureIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.session(t, Client{Token: h.token(t, "user-1"), Profile: "p"})
	if _, err := s.Open(ctx, ""); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	h.repo.mu.Lock()
	h.repo.failSend = true
	h.repo.mu.Unlock()

	_, err := s.Send(ctx, SendParams{Content: "hello"})
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	ev := waitEvent(t, s, func(ev Event) bool { return ev.Type == EventSendFailed })
	if ev.Content != "hello" {
		t.Fatalf("expected failed content to be echoed, got %q", ev.Content)
	}
	if h.fns.countEvent(functions.EventCustomerMessage) != 0 {
		t.Fatalf("no notification expected for an unsent message")
	}
}

func TestCustomerSendTriggersAutoReply(t *testing.T) {
	h := newHarness(t)
	h.fns.policy = true
	ctx := context.Background()

	s := h.session(t, Client{Token: h.token(t, "user-1"), Profile: "p"})
	binding, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	msg, err := s.Send(ctx, SendParams{Content: "Can I book a viewing?"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if msg.Role != model.RoleCustomer {
		t.Fatalf("expected customer role, got %s", msg.Role)
	}
	h.rqm.Wait()

	if !h.fns.triggered(binding.ConversationID) {
		t.Fatalf("expected automated reply to be triggered")
	}
	if h.fns.countEvent(functions.EventCustomerMessage) != 1 {
		t.Fatalf("expected one staff alert")
	}
	if got := len(s.Messages()); got != 1 {
		t.Fatalf("expected sent message to appear once, got %d", got)
	}
}

func TestAutomatedReplyAnnouncedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.session(t, Client{Token: h.token(t, "user-1"), Profile: "p"})
	binding, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	reply, err := h.store.Write(ctx, conversation.PostMessageParams{
		ConversationID: binding.ConversationID,
		Role:           model.RoleAutomated,
		Content:        "Viewings are available on Saturday.",
	})
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	waitEvent(t, s, isMessage(reply.MessageID))

	eventually(t, func() bool { return h.fns.countEvent(functions.EventAutomatedReplySent) == 1 })
	h.svc.dispatcher.AutomatedReplySent(reply, "")
	h.rqm.Wait()
	if got := h.fns.countEvent(functions.EventAutomatedReplySent); got != 1 {
		t.Fatalf("expected one announcement, got %d", got)
	}
}

func TestGuestPromotedIntoNotifiedConversation(t *testing.T) {
	h := newHarness(t)
	h.fns.policy = true
	ctx := context.Background()

	opened, err := h.conversations.Ensure(ctx, conversation.EnsureParams{OwnerUID: "staff-inbox"})
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	conversationID := opened.Conversation.ConversationID
	h.fns.promoteTo = conversationID

	s := h.session(t, Client{Profile: "guest"})
	if _, err := s.Open(ctx, ""); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := s.Send(ctx, SendParams{Content: "Hi, anyone there?"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	ev := waitEvent(t, s, func(ev Event) bool { return ev.Type == EventBound && ev.ConversationID != "" })
	if ev.ConversationID != conversationID || ev.State != binder.StateJoined {
		t.Fatalf("unexpected bound event %+v", ev)
	}
	h.rqm.Wait()

	if !s.Binding().Joined() {
		t.Fatalf("expected session to be joined after promotion")
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "Hi, anyone there?" || msgs[0].Local {
		t.Fatalf("expected the guest message to move into the conversation, got %+v", msgs)
	}
	ok, err := h.conversations.IsParticipant(ctx, conversationID, s.Identity().ParticipantKey())
	if err != nil || !ok {
		t.Fatalf("expected guest to be a participant, ok=%v err=%v", ok, err)
	}
	if !h.fns.triggered(conversationID) {
		t.Fatalf("expected automated reply for the promoted conversation")
	}
}

func TestGuestReceivesLocalReply(t *testing.T) {
	h := newHarness(t)
	h.fns.reply = "Thanks for asking! The home is still listed."
	ctx := context.Background()

	s := h.session(t, Client{Profile: "guest"})
	if _, err := s.Open(ctx, ""); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := s.Send(ctx, SendParams{Content: "Is it still for sale?"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	waitEvent(t, s, func(ev Event) bool {
		return ev.Type == EventMessage && ev.Message != nil && ev.Message.Role == model.RoleAutomated
	})
	h.rqm.Wait()

	if s.Typing() {
		t.Fatalf("typing indicator should be off after the reply")
	}
	entries := h.svc.buffer(Client{Profile: "guest"}).Read(ctx)
	if len(entries) != 2 || entries[1].Role != model.RoleAutomated {
		t.Fatalf("expected customer and automated entries in the buffer, got %+v", entries)
	}
}

func TestHistoryRequiresParticipation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owned, err := h.conversations.Ensure(ctx, conversation.EnsureParams{OwnerUID: "user-2"})
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}

	_, err = h.svc.History(ctx, Client{Token: h.token(t, "user-1"), Profile: "p"}, owned.Conversation.ConversationID)
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != ErrorCodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	h.repo.SetRole("agent-1", model.UserRoleAgent)
	if _, err := h.svc.History(ctx, Client{Token: h.token(t, "agent-1"), Profile: "p"}, owned.Conversation.ConversationID); err != nil {
		t.Fatalf("staff should read any conversation, got %v", err)
	}

	_, err = h.svc.History(ctx, Client{Token: h.token(t, "user-1"), Profile: "p"}, "missing")
	if !errors.As(err, &chatErr) || chatErr.Code != ErrorCodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInboxRequiresSignIn(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Inbox(context.Background(), Client{Profile: "guest"}, 10)
	var chatErr *Error
	if !errors.As(err, &chatErr) || chatErr.Code != ErrorCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDegradedStaffSendGetsNoAutomatedReply(t *testing.T) {
	h := newHarness(t)
	h.fns.policy = true
	h.fns.reply = "Happy to help!"
	h.repo.SetRole("agent-1", model.UserRoleAgent)
	h.repo.failBind = true
	ctx := context.Background()

	s := h.session(t, Client{Token: h.token(t, "agent-1"), Profile: "console"})
	binding, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if binding.State != binder.StateGuestMode || !binding.Degraded || !s.Identity().IsStaff() {
		t.Fatalf("expected a staff session in degraded guest mode, got %+v", binding)
	}

	if _, err := s.Send(ctx, SendParams{Content: "internal note from agent"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if _, err := h.svc.Send(ctx, Client{Token: h.token(t, "agent-1"), Profile: "console"}, SendParams{Content: "second note"}); err != nil {
		t.Fatalf("Service.Send returned error: %v", err)
	}
	h.rqm.Wait()

	for _, m := range s.Messages() {
		if m.Role == model.RoleAutomated {
			t.Fatalf("automated reply to a staff message: %+v", m)
		}
	}
	h.fns.mu.Lock()
	defer h.fns.mu.Unlock()
	if h.fns.guestAsks != 0 || len(h.fns.triggers) != 0 || len(h.fns.notified) != 0 {
		t.Fatalf("expected no responder calls, got replies=%d triggers=%d notified=%d",
			h.fns.guestAsks, len(h.fns.triggers), len(h.fns.notified))
	}
}

func TestMessageWrittenWhileOpeningIsShown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var injected model.MessageItem
	h.repo.afterList = func(conversationID string) {
		msg, err := h.store.Write(ctx, conversation.PostMessageParams{
			ConversationID: conversationID,
			Role:           model.RoleAutomated,
			Content:        "bot reply",
		})
		if err != nil {
			t.Errorf("Write returned error: %v", err)
		}
		injected = msg
	}

	s := h.session(t, Client{Token: h.token(t, "user-1"), Profile: "p"})
	if _, err := s.Open(ctx, ""); err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if injected.MessageID == "" {
		t.Fatalf("expected a message to be written during the history load")
	}

	waitEvent(t, s, isMessage(injected.MessageID))
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].ID != injected.MessageID {
		t.Fatalf("expected the message written during open in the view, got %+v", msgs)
	}
}
