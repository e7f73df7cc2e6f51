// Package worker recomputes impact estimates in the background whenever a
// rule changes, and fans the results out on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opencustomruler/ruler/internal/advisory"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/metrics"
)

// Estimator produces the impact report of a rule. *impact.Service satisfies it.
type Estimator interface {
	Report(ctx context.Context, rule *domain.Rule, seed *uint64) (*domain.ImpactReport, error)
}

// Worker consumes rule change events from the EventBus.
type Worker struct {
	bus       domain.EventBus
	estimator Estimator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds how many estimates run at once.
	Concurrency int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, estimator Estimator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		estimator: estimator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to rule changes.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	w.sem = make(chan struct{}, cfg.Concurrency)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRuleChanged, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicRuleChanged, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("impact worker started",
		"topic", domain.TopicRuleChanged,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// handleMessage hands msg to a pool goroutine. Buses deliver one message at a
// time per subscription, so the pool is what lets estimates overlap; a full
// pool blocks delivery until a slot frees up.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	// Stop cancels under w.mu before waiting, so no Add can follow the Wait.
	w.mu.Lock()
	if err := w.ctx.Err(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.wg.Add(1)
	w.mu.Unlock()

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		w.wg.Done()
		return ctx.Err()
	case <-w.ctx.Done():
		w.wg.Done()
		return w.ctx.Err()
	}

	go func() {
		defer func() {
			<-w.sem
			w.wg.Done()
		}()

		status := "ok"
		if err := w.processRule(w.ctx, msg); err != nil {
			status = "error"
		}
		metrics.EventsProcessedTotal.WithLabelValues(msg.Topic, status).Inc()
	}()
	return nil
}

// processRule estimates the changed rule and publishes the report.
func (w *Worker) processRule(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.RuleEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse rule event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if event.Rule == nil {
		return fmt.Errorf("rule event %s carries no rule", event.RuleID)
	}

	slog.Debug("estimating changed rule",
		"rule_id", event.RuleID,
		"sequence", event.Sequence,
		"message_id", msg.ID,
		"trace_id", msg.Metadata[domain.MetaTraceID],
		"queued_ms", time.Since(msg.PublishedAt()).Milliseconds(),
	)

	report, err := w.estimator.Report(ctx, event.Rule, nil)
	if err != nil {
		slog.Warn("impact estimate failed",
			"rule_id", event.RuleID,
			"code", domain.ErrorCode(err),
			"error", err,
		)
		return err
	}

	payload, err := json.Marshal(domain.ImpactEvent{
		RuleID:   event.RuleID,
		RuleName: event.Rule.Name,
		Editor:   event.Editor,
		Sequence: event.Sequence,
		Report:   report,
	})
	if err != nil {
		return fmt.Errorf("encode impact event: %w", err)
	}

	if err := w.bus.Publish(ctx, domain.TopicImpactEstimated, payload); err != nil {
		slog.Error("failed to publish impact",
			"rule_id", event.RuleID,
			"error", err,
		)
	}

	if advisory.ShouldReview(report) {
		slog.Warn("rule needs review",
			"rule_id", event.RuleID,
			"recommendations", advisory.Messages(report.Assessment),
		)
		if err := w.bus.Publish(ctx, domain.TopicImpactReview, payload); err != nil {
			slog.Error("failed to publish review request",
				"rule_id", event.RuleID,
				"error", err,
			)
		}
	}

	slog.Info("rule impact estimated",
		"rule_id", event.RuleID,
		"verdict", report.Assessment.Verdict,
		"controlled", report.Estimate.Declarations.Controlled,
		"cached", report.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop unsubscribes and waits for in-flight estimates.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.cancel()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	// Unsubscribe may wait for a delivery loop that is inside handleMessage.
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("impact worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Concurrency       int      `json:"concurrency"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Concurrency:       cap(w.sem),
		InFlight:          len(w.sem),
	}
}
