package realtime

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus for single-instance deployments and tests.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*memoryStream
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]*memoryStream)}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return fmt.Errorf("realtime publish: channel required")
	}

	b.mu.Lock()
	targets := make([]*memoryStream, 0, len(b.subs[channel]))
	for _, s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, channel string) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &memoryStream{
		bus:     b,
		channel: channel,
		id:      b.nextID,
		ch:      make(chan []byte, 256),
		done:    make(chan struct{}),
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]*memoryStream)
	}
	b.subs[channel][s.id] = s
	return s, nil
}

// Subscribers reports how many streams are open on channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *MemoryBus) remove(s *memoryStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.channel], s.id)
	if len(b.subs[s.channel]) == 0 {
		delete(b.subs, s.channel)
	}
}

type memoryStream struct {
	bus     *MemoryBus
	channel string
	id      int
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *memoryStream) Messages() <-chan []byte {
	return s.ch
}

func (s *memoryStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
	return nil
}
