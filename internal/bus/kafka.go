package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/opencustomruler/ruler/internal/domain"
)

// KafkaBus implements EventBus on Kafka. Each subscription runs its own
// consumer-group reader; one writer serves every topic.
type KafkaBus struct {
	mu            sync.Mutex
	brokers       []string
	groupID       string
	writer        *kafka.Writer
	subscriptions map[string]*kafkaSubscription
	closed        bool
}

type kafkaSubscription struct {
	id     string
	topic  string
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
	bus    *KafkaBus
}

// NewKafkaBus creates a Kafka event bus. It does not dial until the first
// publish or subscription.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	groupID := cfg.ConsumerGroup
	if groupID == "" {
		groupID = "ruler"
	}

	return &KafkaBus{
		brokers: cfg.KafkaBrokers,
		groupID: groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		subscriptions: make(map[string]*kafkaSubscription),
	}, nil
}

// Publish writes a message envelope to the topic, keyed by message id.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	msg := newMessage(ctx, topic, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(msg.ID),
		Value: data,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		var temporary kafka.Error
		if errors.As(err, &temporary) && temporary.Temporary() {
			slog.Warn("kafka temporary error", "topic", topic, "error", err)
		}
		count(topic, "failed")
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	count(topic, "published")
	return nil
}

// Subscribe starts a consumer-group reader for topic.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		id:    uuid.New().String(),
		topic: topic,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        b.brokers,
			Topic:          topic,
			GroupID:        b.groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			MaxWait:        time.Second,
		}),
		cancel: cancel,
		done:   make(chan struct{}),
		bus:    b,
	}
	b.subscriptions[sub.id] = sub

	go sub.consume(subCtx, handler)

	return sub, nil
}

func (s *kafkaSubscription) consume(ctx context.Context, handler domain.MessageHandler) {
	defer close(s.done)
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("kafka read error", "topic", s.topic, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		var msg domain.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			slog.Error("failed to unmarshal kafka message",
				"topic", m.Topic,
				"offset", m.Offset,
				"error", err,
			)
			continue
		}
		if err := handler(ctx, &msg); err != nil {
			count(s.topic, "failed")
			slog.Error("handler error",
				"topic", m.Topic,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}
}

// Ping dials the first reachable broker.
func (b *KafkaBus) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close stops every reader and flushes the writer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscriptions
	b.subscriptions = make(map[string]*kafkaSubscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return b.writer.Close()
}

func (s *kafkaSubscription) stop() {
	s.cancel()
	<-s.done
	if err := s.reader.Close(); err != nil {
		slog.Warn("kafka reader close failed", "topic", s.topic, "error", err)
	}
}

// Unsubscribe stops the reader.
func (s *kafkaSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	_, live := s.bus.subscriptions[s.id]
	delete(s.bus.subscriptions, s.id)
	s.bus.mu.Unlock()

	if live {
		s.stop()
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}
