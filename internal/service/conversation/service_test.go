package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ecolisting-chat-backend/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEnsureCreatesConversationWithDefaults(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewWithRepository(repo, fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	res, err := svc.Ensure(ctx, EnsureParams{OwnerUID: "user-1", MemberUIDs: []string{"agent-1"}})
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected a new conversation")
	}
	c := res.Conversation
	if c.Kind != model.DefaultConversationKind || c.Title != model.DefaultConversationTitle || c.Status != model.ConversationStatusOpen {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	participants, _ := repo.ListParticipants(ctx, c.ConversationID)
	if len(participants) != 2 {
		t.Fatalf("expected owner and member as participants, got %+v", participants)
	}
}

func TestEnsureReusesNewestOpenConversation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "old", OwnerUID: "user-1", Status: model.ConversationStatusOpen, CreatedAt: model.FormatTime(base)})
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "new", OwnerUID: "user-1", Status: model.ConversationStatusOpen, CreatedAt: model.FormatTime(base.Add(time.Hour))})
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "closed", OwnerUID: "user-1", Status: model.ConversationStatusClosed, CreatedAt: model.FormatTime(base.Add(2 * time.Hour))})
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "other", OwnerUID: "user-2", Status: model.ConversationStatusOpen, CreatedAt: model.FormatTime(base.Add(3 * time.Hour))})

	svc := NewWithRepository(repo, nil)
	res, err := svc.Ensure(ctx, EnsureParams{OwnerUID: "user-1"})
	if err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if res.Created || res.Conversation.ConversationID != "new" {
		t.Fatalf("expected to reuse conversation new, got %+v", res)
	}
}

func TestLatestOpenBreaksTiesByID(t *testing.T) {
	at := model.FormatTime(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	a := model.ConversationItem{ConversationID: "conv-a", Status: model.ConversationStatusOpen, CreatedAt: at}
	b := model.ConversationItem{ConversationID: "conv-b", Status: model.ConversationStatusOpen, CreatedAt: at}

	for _, order := range [][]model.ConversationItem{{a, b}, {b, a}} {
		got, ok := latestOpen(order)
		if !ok || got.ConversationID != "conv-b" {
			t.Fatalf("expected conv-b regardless of order, got %+v", got)
		}
	}
}

func TestEnsureParticipantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewWithRepository(repo, nil)

	for i := 0; i < 2; i++ {
		if err := svc.EnsureParticipant(ctx, "conv-1", "user-1"); err != nil {
			t.Fatalf("EnsureParticipant #%d returned error: %v", i+1, err)
		}
	}

	participants, _ := repo.ListParticipants(ctx, "conv-1")
	if len(participants) != 1 {
		t.Fatalf("expected one membership row, got %d", len(participants))
	}
	ok, err := svc.IsParticipant(ctx, "conv-1", "user-1")
	if err != nil || !ok {
		t.Fatalf("expected user-1 to be a participant, got %v %v", ok, err)
	}
}

func TestGetMissingConversation(t *testing.T) {
	svc := NewWithRepository(NewMemoryRepository(), nil)
	_, err := svc.Get(context.Background(), "missing")

	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != ErrorCodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound to match")
	}
}

func TestPostMessageValidation(t *testing.T) {
	svc := NewWithRepository(NewMemoryRepository(), nil)
	ctx := context.Background()

	cases := []PostMessageParams{
		{ConversationID: "c", Role: model.RoleCustomer, Content: "   "},
		{ConversationID: "c", Role: "system", Content: "hi"},
		{ConversationID: "", Role: model.RoleCustomer, Content: "hi"},
	}
	for _, params := range cases {
		_, err := svc.PostMessage(ctx, params)
		var svcErr *Error
		if !errors.As(err, &svcErr) || svcErr.Code != ErrorCodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", params, err)
		}
	}
}

func TestListMessagesOrderedWithinSameInstant(t *testing.T) {
	ctx := context.Background()
	svc := NewWithRepository(NewMemoryRepository(), fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	want := []string{"one", "two", "three", "four"}
	for _, content := range want {
		if _, err := svc.PostMessage(ctx, PostMessageParams{ConversationID: "c", Role: model.RoleCustomer, Content: content}); err != nil {
			t.Fatalf("PostMessage returned error: %v", err)
		}
	}

	msgs, err := svc.ListMessages(ctx, "c", 0)
	if err != nil {
		t.Fatalf("ListMessages returned error: %v", err)
	}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], m.Content)
		}
	}

	limited, _ := svc.ListMessages(ctx, "c", 2)
	if len(limited) != 2 || limited[0].Content != "three" || limited[1].Content != "four" {
		t.Fatalf("expected newest two in ascending order, got %+v", limited)
	}
}

func TestTouchWritesPreview(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "c", Status: model.ConversationStatusOpen})
	svc := NewWithRepository(repo, nil)

	long := strings.Repeat("a", 300)
	err := svc.Touch(ctx, model.MessageItem{ConversationID: "c", Role: model.RoleCustomer, Content: long, CreatedAt: "2024-05-01T10:00:00Z"})
	if err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}

	c, _ := repo.GetConversation(ctx, "c")
	if len(c.LastMessagePreview) != model.PreviewLength || c.LastMessageRole != model.RoleCustomer || c.LastMessageAt != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected touch result: %+v", c)
	}
}

func TestInboxSortsByLastActivity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "a", OwnerUID: "u", Status: model.ConversationStatusOpen, CreatedAt: "2024-05-01T10:00:00Z", LastMessageAt: "2024-05-01T12:00:00Z"})
	_ = repo.CreateConversation(ctx, model.ConversationItem{ConversationID: "b", OwnerUID: "u", Status: model.ConversationStatusOpen, CreatedAt: "2024-05-01T11:00:00Z"})
	svc := NewWithRepository(repo, nil)

	inbox, err := svc.Inbox(ctx, "u", 0)
	if err != nil {
		t.Fatalf("Inbox returned error: %v", err)
	}
	if len(inbox) != 2 || inbox[0].ConversationID != "a" {
		t.Fatalf("unexpected inbox order: %+v", inbox)
	}
}
