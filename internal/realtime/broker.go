package realtime

import (
	"context"
	"sync"

	"ecolisting-chat-backend/internal/logger"
)

// Broker turns bus streams into callback subscriptions and keeps count of
// the ones still open.
type Broker struct {
	bus Bus
	log *logger.Logger

	mu     sync.Mutex
	active map[*Subscription]struct{}
}

func NewBroker(bus Bus, log *logger.Logger) *Broker {
	return &Broker{
		bus:    bus,
		log:    logger.OrNop(log).With("component", "realtime"),
		active: make(map[*Subscription]struct{}),
	}
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.bus.Publish(ctx, channel, payload)
}

// Subscribe invokes onMessage for every payload on channel, one at a time,
// in delivery order, until the returned Subscription is cancelled.
func (b *Broker) Subscribe(ctx context.Context, channel string, onMessage func([]byte)) (*Subscription, error) {
	stream, err := b.bus.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		Channel:   channel,
		broker:    b,
		stream:    stream,
		onMessage: onMessage,
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	b.mu.Lock()
	b.active[sub] = struct{}{}
	activeSubscriptions.Inc()
	b.mu.Unlock()

	go sub.run()
	b.log.Debug("subscribed", "channel", channel)
	return sub, nil
}

// Active is the number of subscriptions not yet cancelled.
func (b *Broker) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

func (b *Broker) release(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.active[sub]; ok {
		delete(b.active, sub)
		activeSubscriptions.Dec()
	}
	b.mu.Unlock()
	b.log.Debug("unsubscribed", "channel", sub.Channel)
}

type Subscription struct {
	Channel string

	broker    *Broker
	stream    Stream
	onMessage func([]byte)

	mu      sync.Mutex
	closed  bool
	once    sync.Once
	quit    chan struct{}
	stopped chan struct{}
}

func (s *Subscription) run() {
	defer close(s.stopped)
	msgs := s.stream.Messages()
	for {
		select {
		case <-s.quit:
			return
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			if !s.deliver(payload) {
				return
			}
		}
	}
}

func (s *Subscription) deliver(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.onMessage(payload)
	return true
}

// Cancel releases the subscription. Once it returns no further callback
// runs. It must not be called from inside the callback.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.quit)
		if err := s.stream.Close(); err != nil {
			s.broker.log.Warn("close stream failed", "channel", s.Channel, "error", err)
		}
		s.broker.release(s)
	})
}

// Done is closed when the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}
