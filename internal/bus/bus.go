// Package bus carries rule and impact events between the catalog, the
// impact worker and external listeners.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/metrics"
)

// New builds the bus named by cfg.Type: "channel" for a single process,
// "nats" or "kafka" when several instances share events.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	case "kafka":
		return NewKafkaBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage wraps payload in an envelope. The trace id of the span in ctx,
// if any, travels in the metadata so consumers can correlate logs.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.TraceID().IsValid() {
		msg.Metadata = map[string]string{domain.MetaTraceID: sc.TraceID().String()}
	}
	return msg
}

func count(topic, result string) {
	metrics.BusMessagesTotal.WithLabelValues(topic, result).Inc()
}
