package feed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/realtime"
	"ecolisting-chat-backend/internal/service/conversation"
)

type failingRepository struct {
	*conversation.MemoryRepository
}

func (failingRepository) ListMessages(context.Context, string, int) ([]model.MessageItem, error) {
	return nil, errors.New("dynamo unavailable")
}

func (failingRepository) CreateMessage(context.Context, model.MessageItem) error {
	return errors.New("dynamo unavailable")
}

func newStore(repo conversation.Repository) (*Store, *realtime.Broker) {
	svc := conversation.NewWithRepository(repo, nil)
	broker := realtime.NewBroker(realtime.NewMemoryBus(), nil)
	return NewStore(svc, broker, 200, nil), broker
}

func recv(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for message")
		return Message{}
	}
}

func TestFeedOrdersAndDedupes(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]Message, 0, 20)
	for i := 0; i < 20; i++ {
		msgs = append(msgs, Message{ID: fmt.Sprintf("m%02d", i), CreatedAt: base.Add(time.Duration(i%7) * time.Second)})
	}

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		f := NewFeed(nil)
		order := rng.Perm(len(msgs))
		for _, i := range order {
			f.Insert(msgs[i])
			if rng.Intn(3) == 0 {
				if f.Insert(msgs[i]) {
					t.Fatalf("duplicate %s was accepted", msgs[i].ID)
				}
			}
		}

		got := f.Messages()
		if len(got) != len(msgs) {
			t.Fatalf("expected %d messages, got %d", len(msgs), len(got))
		}
		for i := 1; i < len(got); i++ {
			if less(got[i], got[i-1]) {
				t.Fatalf("feed out of order at %d: %s before %s", i, got[i-1].ID, got[i].ID)
			}
		}
	}
}

func TestLoadFailureIsEmpty(t *testing.T) {
	store, _ := newStore(failingRepository{conversation.NewMemoryRepository()})
	if got := store.Load(context.Background(), "conv-1"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil feed, got %#v", got)
	}
}

func TestWriteFailureIsReturned(t *testing.T) {
	store, _ := newStore(failingRepository{conversation.NewMemoryRepository()})
	_, err := store.Append(context.Background(), "conv-1", nil, model.RoleCustomer, "hi", "user-1")
	if err == nil {
		t.Fatalf("expected send failure to propagate")
	}
}

func TestAppendPublishesToSubscribers(t *testing.T) {
	ctx := context.Background()
	store, broker := newStore(conversation.NewMemoryRepository())

	got := make(chan Message, 4)
	sub, err := store.Subscribe(ctx, "conv-1", func(m Message) { got <- m })
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer sub.Cancel()

	sent, err := store.Append(ctx, "conv-1", nil, model.RoleStaff, "Hello from the team", "agent-1")
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	m := recv(t, got, time.Second)
	if m.ID != sent.ID || m.Role != model.RoleStaff || m.Display != model.DisplayAssistant {
		t.Fatalf("unexpected live message %+v", m)
	}

	history := store.Load(ctx, "conv-1")
	if len(history) != 1 || history[0].ID != sent.ID {
		t.Fatalf("unexpected history %+v", history)
	}
	if broker.Active() != 1 {
		t.Fatalf("expected one active subscription, got %d", broker.Active())
	}
}

func TestAppendInGuestMode(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(conversation.NewMemoryRepository())
	buffer := localstore.NewGuestBuffer(localstore.NewMemoryStore())

	m, err := store.Append(ctx, "", buffer, model.RoleCustomer, "Hi", "")
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if !m.Local || m.Content != "Hi" {
		t.Fatalf("unexpected guest message %+v", m)
	}

	loaded := store.LoadGuest(ctx, buffer)
	if len(loaded) != 1 || loaded[0].Content != "Hi" || loaded[0].Display != model.DisplayUser {
		t.Fatalf("unexpected guest feed %+v", loaded)
	}
}
