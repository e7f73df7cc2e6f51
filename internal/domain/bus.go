package domain

import (
	"context"
	"time"
)

// EventBus carries rule and impact events between the catalog, the impact
// worker and any external listener. In-process channels, NATS and Kafka
// implementations exist.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe delivers every message on topic to handler until the
	// subscription is cancelled or the bus is closed.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message. A returned error is
// logged by the bus; delivery is never retried.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus puts on the wire.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

// PublishedAt returns the envelope timestamp.
func (m *Message) PublishedAt() time.Time {
	return time.Unix(0, m.Timestamp)
}

// MetaTraceID is the metadata key holding the publisher's trace id.
const MetaTraceID = "trace_id"

// Subscription is a live registration returned by Subscribe.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus.
type EventBusConfig struct {
	// Type is "channel", "nats" or "kafka".
	Type string

	// ChannelBufferSize is the per-subscriber queue of the in-process bus.
	ChannelBufferSize int

	NATSUrl   string
	NATSToken string

	KafkaBrokers []string

	// ConsumerGroup lets several ruler instances share one stream of
	// events: a NATS queue group, or a Kafka consumer group.
	ConsumerGroup string
}

// Topics. The names double as NATS subjects and Kafka topics.
const (
	TopicRuleChanged     = "ruler.rule.changed"
	TopicRuleRemoved     = "ruler.rule.removed"
	TopicImpactEstimated = "ruler.impact.estimated"
	TopicImpactReview    = "ruler.impact.review"
)

// RuleEvent is the payload of the rule topics. Rule is nil on removal.
type RuleEvent struct {
	RuleID string `json:"ruleId"`
	Rule   *Rule  `json:"rule,omitempty"`
	Editor string `json:"editor,omitempty"`

	// Sequence orders catalog mutations. Delivery order is not guaranteed;
	// consumers drop an event older than one already applied.
	Sequence uint64 `json:"sequence"`
}

// ImpactEvent is the payload of the impact topics.
type ImpactEvent struct {
	RuleID   string        `json:"ruleId"`
	RuleName string        `json:"ruleName"`
	Editor   string        `json:"editor,omitempty"`
	Sequence uint64        `json:"sequence"` // of the rule event estimated
	Report   *ImpactReport `json:"report"`
}
