package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opencustomruler/ruler/internal/domain"
)

// ChannelBus is the in-process bus. Each subscriber owns a buffered queue
// drained by its own goroutine; publishing never blocks, so a subscriber
// whose queue is full misses the message.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	topics     map[string][]*channelSubscription
	closed     bool
	handlers   sync.WaitGroup
}

type channelSubscription struct {
	id     string
	topic  string
	queue  chan *domain.Message
	cancel context.CancelFunc
	bus    *ChannelBus
}

// NewChannelBus returns an empty bus. bufferSize <= 0 means 1000.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		topics:     make(map[string][]*channelSubscription),
	}
}

// Publish fans the envelope out to every current subscriber of topic.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	msg := newMessage(ctx, topic, payload)
	for _, sub := range b.topics[topic] {
		select {
		case sub.queue <- msg:
		default:
			count(topic, "dropped")
			slog.Warn("event dropped, subscriber queue full",
				"topic", topic,
				"subscription_id", sub.id,
				"queue_size", b.bufferSize,
			)
		}
	}
	count(topic, "published")
	return nil
}

// Subscribe starts a goroutine delivering topic's messages to handler until
// ctx ends, Unsubscribe is called or the bus closes.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:     uuid.NewString(),
		topic:  topic,
		queue:  make(chan *domain.Message, b.bufferSize),
		cancel: cancel,
		bus:    b,
	}
	b.topics[topic] = append(b.topics[topic], sub)

	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		sub.deliver(subCtx, handler)
	}()

	return sub, nil
}

func (s *channelSubscription) deliver(ctx context.Context, handler domain.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			if err := handler(ctx, msg); err != nil {
				count(msg.Topic, "failed")
				slog.Error("handler error",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close cancels every subscription and waits for in-flight handlers.
// Handlers that publish during shutdown get a "bus is closed" error.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string][]*channelSubscription)
	b.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.handlers.Wait()
	return nil
}

func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[s.topic]
	for i, other := range subs {
		if other == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.topics, s.topic)
	} else {
		b.topics[s.topic] = subs
	}
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.topic
}
