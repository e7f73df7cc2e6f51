package rules

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opencustomruler/ruler/internal/domain"
)

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	topics []string
	events []domain.RuleEvent
	fail   bool
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	if b.fail {
		return errors.New("bus down")
	}
	var evt domain.RuleEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.events = append(b.events, evt)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) Ping(context.Context) error { return nil }
func (b *recordingBus) Close() error               { return nil }

func TestCatalogPutGet(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	bus := &recordingBus{}
	cat := NewCatalog(bus)

	r := sampleRule(t)
	if err := cat.Put(ctx, r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if cat.Len() != 1 {
		t.Errorf("expected 1 rule, got %d", cat.Len())
	}

	got, err := cat.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != r.Name || len(got.Conditions) != 2 {
		t.Errorf("unexpected rule: %+v", got)
	}

	// Copies on the way out.
	got.Conditions[0].Field = domain.FieldIncoterm
	again, _ := cat.Get(ctx, r.ID)
	if again.Conditions[0].Field != domain.FieldCountryOfOrigin {
		t.Error("catalog state leaked through Get")
	}

	// Copies on the way in.
	r.Name = "changed after put"
	again, _ = cat.Get(ctx, r.ID)
	if again.Name == "changed after put" {
		t.Error("catalog state leaked through Put")
	}

	if len(bus.topics) != 1 || bus.topics[0] != domain.TopicRuleChanged {
		t.Fatalf("expected one rule.changed event, got %v", bus.topics)
	}
	if bus.events[0].RuleID != r.ID || bus.events[0].Rule == nil {
		t.Errorf("unexpected event: %+v", bus.events[0])
	}

	if _, err := cat.Get(ctx, "absent"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogPutRejectsInvalidRule(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cat := NewCatalog(nil)

	r := sampleRule(t)
	r.Conditions = nil
	if err := cat.Put(context.Background(), r); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if cat.Len() != 0 {
		t.Error("invalid rule stored")
	}
}

func TestCatalogList(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	cat := NewCatalog(nil)

	mk := func(name string, priority int, status domain.RuleStatus) {
		r, err := CreateRule(RuleSpec{
			Name:       name,
			Priority:   priority,
			Conditions: []domain.Condition{mustCondition(t, domain.FieldWeightKg, domain.OpGreaterThan, domain.Number(500), "")},
			Action:     domain.Action{RiskLevel: domain.RiskYellow},
		})
		if err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
		if status != domain.StatusInactive {
			r, _ = SetStatus(r, status, "")
		}
		if err := cat.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	mk("Zeta", 1, domain.StatusActive)
	mk("Alpha", 2, domain.StatusInactive)
	mk("Beta", 1, domain.StatusActive)
	mk("Gamma", 3, domain.StatusTesting)

	all, err := cat.List(ctx, domain.RuleFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = r.Name
	}
	want := []string{"Beta", "Zeta", "Alpha", "Gamma"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}

	active, _ := cat.List(ctx, domain.RuleFilter{Status: domain.StatusActive})
	if len(active) != 2 {
		t.Errorf("expected 2 active rules, got %d", len(active))
	}

	found, _ := cat.List(ctx, domain.RuleFilter{Search: "alp"})
	if len(found) != 1 || found[0].Name != "Alpha" {
		t.Errorf("search returned %v", found)
	}
}

func TestCatalogUpdate(t *testing.T) {
	advance := fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	bus := &recordingBus{}
	cat := NewCatalog(bus)

	r := sampleRule(t)
	_ = cat.Put(ctx, r)
	advance(time.Minute)

	updated, err := cat.Update(ctx, r.ID, func(cur *domain.Rule) (*domain.Rule, error) {
		return ToggleStatus(cur, "chef"), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != domain.StatusActive {
		t.Errorf("expected active, got %s", updated.Status)
	}
	stored, _ := cat.Get(ctx, r.ID)
	if stored.Status != domain.StatusActive || stored.Metadata.ModifiedBy != "chef" {
		t.Errorf("update not stored: %+v", stored)
	}

	t.Run("invariant error leaves rule unchanged", func(t *testing.T) {
		_, err := cat.Update(ctx, r.ID, func(cur *domain.Rule) (*domain.Rule, error) {
			out, err := RemoveCondition(cur, cur.Conditions[0].ID, "")
			if err != nil {
				return nil, err
			}
			return RemoveCondition(out, out.Conditions[0].ID, "")
		})
		if !errors.Is(err, domain.ErrInvariantViolation) {
			t.Fatalf("expected ErrInvariantViolation, got %v", err)
		}
		stored, _ := cat.Get(ctx, r.ID)
		if len(stored.Conditions) != 2 {
			t.Errorf("expected 2 conditions, got %d", len(stored.Conditions))
		}
	})

	t.Run("id change rejected", func(t *testing.T) {
		_, err := cat.Update(ctx, r.ID, func(cur *domain.Rule) (*domain.Rule, error) {
			return Duplicate(cur, ""), nil
		})
		if !errors.Is(err, domain.ErrInvariantViolation) {
			t.Fatalf("expected ErrInvariantViolation, got %v", err)
		}
	})

	t.Run("unknown rule", func(t *testing.T) {
		_, err := cat.Update(ctx, "absent", func(cur *domain.Rule) (*domain.Rule, error) { return cur, nil })
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	if len(bus.topics) != 2 {
		t.Errorf("expected put + one successful update published, got %v", bus.topics)
	}
}

func TestCatalogDelete(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	bus := &recordingBus{}
	cat := NewCatalog(bus)

	r := sampleRule(t)
	_ = cat.Put(ctx, r)

	if err := cat.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if cat.Len() != 0 {
		t.Error("rule still present")
	}
	if bus.topics[len(bus.topics)-1] != domain.TopicRuleRemoved {
		t.Errorf("expected rule.removed event, got %v", bus.topics)
	}
	if err := cat.Delete(ctx, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogPublishFailureIsNotFatal(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cat := NewCatalog(&recordingBus{fail: true})

	if err := cat.Put(context.Background(), sampleRule(t)); err != nil {
		t.Fatalf("Put should succeed when the bus is down: %v", err)
	}
	if cat.Len() != 1 {
		t.Error("rule not stored")
	}
}

func TestCatalogConcurrentAccess(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	cat := NewCatalog(nil)
	r := sampleRule(t)
	_ = cat.Put(ctx, r)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = cat.Update(ctx, r.ID, func(cur *domain.Rule) (*domain.Rule, error) {
				out := cur.Clone()
				out.Metadata.TriggeredCount++
				return out, nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = cat.List(ctx, domain.RuleFilter{})
		}()
	}
	wg.Wait()

	got, _ := cat.Get(ctx, r.ID)
	if got.Metadata.TriggeredCount != 50 {
		t.Errorf("expected 50 increments, got %d", got.Metadata.TriggeredCount)
	}
}

func TestCatalogEventSequence(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	bus := &recordingBus{}
	cat := NewCatalog(bus)

	r := sampleRule(t)
	_ = cat.Put(ctx, r)

	const writers = 40
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			_, _ = cat.Update(ctx, r.ID, func(cur *domain.Rule) (*domain.Rule, error) {
				cur.Action.ScoreAdjustment = score
				return cur, nil
			})
		}(i)
	}
	wg.Wait()

	// A rejected edit takes no sequence number.
	_, err := cat.Update(ctx, r.ID, func(*domain.Rule) (*domain.Rule, error) {
		return nil, domain.Validationf("test", "rejected")
	})
	if err == nil {
		t.Fatal("expected the edit to be rejected")
	}

	if got := cat.Sequence(); got != writers+1 {
		t.Fatalf("expected sequence %d, got %d", writers+1, got)
	}

	seen := make(map[uint64]bool)
	var latest domain.RuleEvent
	for _, evt := range bus.events {
		if seen[evt.Sequence] {
			t.Fatalf("sequence %d published twice", evt.Sequence)
		}
		seen[evt.Sequence] = true
		if evt.Sequence > latest.Sequence {
			latest = evt
		}
	}
	if len(seen) != writers+1 {
		t.Errorf("expected %d events, got %d", writers+1, len(seen))
	}

	stored, _ := cat.Get(ctx, r.ID)
	if latest.Rule.Action.ScoreAdjustment != stored.Action.ScoreAdjustment {
		t.Errorf("highest sequence carries score %d, catalog holds %d",
			latest.Rule.Action.ScoreAdjustment, stored.Action.ScoreAdjustment)
	}

	_ = cat.Delete(ctx, r.ID)
	if last := bus.events[len(bus.events)-1]; last.Sequence != writers+2 {
		t.Errorf("expected removal sequence %d, got %d", writers+2, last.Sequence)
	}
}
