package realtime

import (
	"context"
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for message")
		return ""
	}
}

func TestBrokerDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	broker := NewBroker(bus, nil)

	got := make(chan string, 10)
	sub, err := broker.Subscribe(ctx, ConversationChannel("a"), func(p []byte) {
		got <- string(p)
	})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer sub.Cancel()

	for _, m := range []string{"one", "two", "three"} {
		if err := broker.Publish(ctx, ConversationChannel("a"), []byte(m)); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		if v := recv(t, got, time.Second); v != want {
			t.Fatalf("expected %q, got %q", want, v)
		}
	}
}

func TestCancelStopsCallbacks(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	broker := NewBroker(bus, nil)

	var mu sync.Mutex
	cancelled := false
	late := 0

	got := make(chan string, 100)
	sub, err := broker.Subscribe(ctx, ConversationChannel("a"), func(p []byte) {
		mu.Lock()
		if cancelled {
			late++
		}
		mu.Unlock()
		got <- string(p)
	})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	_ = broker.Publish(ctx, ConversationChannel("a"), []byte("before"))
	recv(t, got, time.Second)

	sub.Cancel()
	mu.Lock()
	cancelled = true
	mu.Unlock()

	for i := 0; i < 10; i++ {
		_ = broker.Publish(ctx, ConversationChannel("a"), []byte("after"))
	}

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatalf("delivery goroutine did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if late != 0 {
		t.Fatalf("expected no callbacks after cancel, got %d", late)
	}
	if broker.Active() != 0 {
		t.Fatalf("expected no active subscriptions, got %d", broker.Active())
	}
	if bus.Subscribers(ConversationChannel("a")) != 0 {
		t.Fatalf("expected bus stream to be released")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	broker := NewBroker(NewMemoryBus(), nil)
	sub, err := broker.Subscribe(context.Background(), "x", func([]byte) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	sub.Cancel()
	sub.Cancel()
	if broker.Active() != 0 {
		t.Fatalf("expected no active subscriptions, got %d", broker.Active())
	}
}

func TestChannelsAreIsolated(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker(NewMemoryBus(), nil)

	gotA := make(chan string, 10)
	gotB := make(chan string, 10)
	subA, _ := broker.Subscribe(ctx, ConversationChannel("a"), func(p []byte) { gotA <- string(p) })
	subB, _ := broker.Subscribe(ctx, ConversationChannel("b"), func(p []byte) { gotB <- string(p) })
	defer subA.Cancel()
	defer subB.Cancel()

	_ = broker.Publish(ctx, ConversationChannel("b"), []byte("for-b"))

	if v := recv(t, gotB, time.Second); v != "for-b" {
		t.Fatalf("unexpected payload %q", v)
	}
	select {
	case v := <-gotA:
		t.Fatalf("channel a received %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}
