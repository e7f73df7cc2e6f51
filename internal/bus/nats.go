package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opencustomruler/ruler/internal/domain"
)

const (
	natsConnectAttempts = 5
	natsMaxReconnects   = 10
	natsReconnectWait   = 2 * time.Second
)

// NATSBus publishes envelopes on NATS subjects named after the topics.
// Subscriptions join the configured queue group, so a rule change is
// estimated once per deployment rather than once per instance.
type NATSBus struct {
	conn  *nats.Conn
	queue string

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

type natsSubscription struct {
	id    string
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl, retrying with a doubling wait.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := connectNATS(url, natsOptions(cfg))
	if err != nil {
		return nil, err
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.ConsumerGroup,
	)

	return &NATSBus{
		conn:  conn,
		queue: cfg.ConsumerGroup,
		subs:  make(map[string]*natsSubscription),
	}, nil
}

func natsOptions(cfg domain.EventBusConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("ruler"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

func connectNATS(url string, opts []nats.Option) (*nats.Conn, error) {
	wait := 250 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= natsConnectAttempts; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", natsConnectAttempts,
			"retry_in", wait,
			"error", err,
		)
		if attempt < natsConnectAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return nil, fmt.Errorf("connect to NATS at %s: %w", url, lastErr)
}

// Publish sends the envelope for payload on the topic's subject.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	data, err := json.Marshal(newMessage(ctx, topic, payload))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.conn.Publish(topic, data); err != nil {
		count(topic, "failed")
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	count(topic, "published")
	return nil
}

// Subscribe joins the queue group on the topic's subject. Without a
// configured group every instance receives every message.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	deliver := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping undecodable NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &msg); err != nil {
			count(topic, "failed")
			slog.Error("handler error",
				"topic", topic,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var (
		natsSub *nats.Subscription
		err     error
	)
	if b.queue != "" {
		natsSub, err = b.conn.QueueSubscribe(topic, b.queue, deliver)
	} else {
		natsSub, err = b.conn.Subscribe(topic, deliver)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &natsSubscription{id: uuid.NewString(), topic: topic, sub: natsSub, bus: b}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the subscriptions, flushing pending publishes, then closes
// the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]*natsSubscription)
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
