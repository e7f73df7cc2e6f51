package rules

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/opencustomruler/ruler/internal/domain"
)

// Catalog is the in-memory working set of rules.
// Rules are copied on the way in and on the way out.
//
// Every mutation takes the next sequence number while it holds the write
// lock. Events are published after the lock is released and may reach
// subscribers out of order; the sequence restores the order of the stored
// states.
type Catalog struct {
	mu    sync.RWMutex
	rules map[string]*domain.Rule // key: rule ID
	seq   uint64
	bus   domain.EventBus
}

var _ domain.RuleStore = (*Catalog)(nil)

// NewCatalog creates an empty catalog. bus may be nil.
func NewCatalog(bus domain.EventBus) *Catalog {
	return &Catalog{
		rules: make(map[string]*domain.Rule),
		bus:   bus,
	}
}

// Put validates and stores a rule, replacing any rule with the same id.
func (c *Catalog) Put(ctx context.Context, rule *domain.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if rule.ID == "" {
		return domain.Validationf("rules.Catalog.Put", "rule id is required")
	}

	stored := rule.Clone()
	c.mu.Lock()
	c.rules[stored.ID] = stored
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.publish(ctx, domain.TopicRuleChanged, domain.RuleEvent{
		RuleID:   stored.ID,
		Rule:     stored.Clone(),
		Editor:   stored.Metadata.ModifiedBy,
		Sequence: seq,
	})
	return nil
}

// Get returns a copy of the rule.
func (c *Catalog) Get(_ context.Context, ruleID string) (*domain.Rule, error) {
	c.mu.RLock()
	r, ok := c.rules[ruleID]
	c.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundf("rules.Catalog.Get", "rule %s not found", ruleID)
	}
	return r.Clone(), nil
}

// List returns copies of matching rules ordered by priority, then name, then id.
func (c *Catalog) List(_ context.Context, filter domain.RuleFilter) ([]*domain.Rule, error) {
	c.mu.RLock()
	out := make([]*domain.Rule, 0, len(c.rules))
	for _, r := range c.rules {
		if filter.Match(r) {
			out = append(out, r.Clone())
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Delete removes a rule.
func (c *Catalog) Delete(ctx context.Context, ruleID string) error {
	c.mu.Lock()
	_, ok := c.rules[ruleID]
	if !ok {
		c.mu.Unlock()
		return domain.NotFoundf("rules.Catalog.Delete", "rule %s not found", ruleID)
	}
	delete(c.rules, ruleID)
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.publish(ctx, domain.TopicRuleRemoved, domain.RuleEvent{RuleID: ruleID, Sequence: seq})
	return nil
}

// Update applies fn to a copy of the rule and stores the result atomically.
// fn must return a new rule value; returning an error leaves the catalog unchanged.
func (c *Catalog) Update(ctx context.Context, ruleID string, fn func(*domain.Rule) (*domain.Rule, error)) (*domain.Rule, error) {
	const op = "rules.Catalog.Update"

	c.mu.Lock()
	current, ok := c.rules[ruleID]
	if !ok {
		c.mu.Unlock()
		return nil, domain.NotFoundf(op, "rule %s not found", ruleID)
	}
	next, err := fn(current.Clone())
	if err == nil {
		err = ValidateRule(next)
	}
	if err == nil && next.ID != ruleID {
		err = domain.Invariantf(op, "rule id cannot change")
	}
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	stored := next.Clone()
	c.rules[ruleID] = stored
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	c.publish(ctx, domain.TopicRuleChanged, domain.RuleEvent{
		RuleID:   ruleID,
		Rule:     stored.Clone(),
		Editor:   stored.Metadata.ModifiedBy,
		Sequence: seq,
	})
	return stored.Clone(), nil
}

// Load stores a batch of rules. It stops at the first invalid rule.
func (c *Catalog) Load(ctx context.Context, rules []*domain.Rule) error {
	for _, r := range rules {
		if err := c.Put(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Sequence is the number of mutations applied so far.
func (c *Catalog) Sequence() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// Len returns the number of rules held.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// publish is best effort; a failed publish never fails the mutation.
func (c *Catalog) publish(ctx context.Context, topic string, evt domain.RuleEvent) {
	if c.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Error("failed to marshal rule event", "rule_id", evt.RuleID, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish rule event", "topic", topic, "rule_id", evt.RuleID, "error", err)
	}
}
