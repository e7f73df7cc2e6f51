package rules

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opencustomruler/ruler/internal/domain"
)

// fixedClock pins the package clock and id generator for the duration of a test.
func fixedClock(t *testing.T, start time.Time) func(time.Duration) {
	t.Helper()
	current := start
	seq := 0
	prevNow, prevID := now, newID
	now = func() time.Time { return current }
	newID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	t.Cleanup(func() { now, newID = prevNow, prevID })
	return func(d time.Duration) { current = current.Add(d) }
}

func mustCondition(t *testing.T, field string, op domain.Operator, v domain.Value, conn domain.LogicalOperator) domain.Condition {
	t.Helper()
	c, err := CreateCondition(field, op, v, conn)
	if err != nil {
		t.Fatalf("CreateCondition(%s %s %s): %v", field, op, v, err)
	}
	return c
}

func sampleRule(t *testing.T) *domain.Rule {
	t.Helper()
	r, err := CreateRule(RuleSpec{
		Name:     "Textiles Chine haute valeur",
		Priority: 2,
		Conditions: []domain.Condition{
			mustCondition(t, domain.FieldCountryOfOrigin, domain.OpIn, domain.Strings("CN"), domain.LogicalAnd),
			mustCondition(t, domain.FieldDeclaredValue, domain.OpGreaterThan, domain.Number(50000), ""),
		},
		Action: domain.Action{RiskLevel: domain.RiskRed, ScoreAdjustment: 25},
		Author: "analyste",
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return r
}

func TestCreateCondition(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	tests := []struct {
		name    string
		field   string
		op      domain.Operator
		value   domain.Value
		conn    domain.LogicalOperator
		wantErr bool
	}{
		{"scalar equals", domain.FieldHSCode, domain.OpEquals, domain.String("6109"), "", false},
		{"in with list", domain.FieldCountryOfOrigin, domain.OpIn, domain.Strings("CN", "VN"), domain.LogicalOr, false},
		{"not_in with list", domain.FieldIncoterm, domain.OpNotIn, domain.Strings("EXW"), "", false},
		{"numeric string on ordered op", domain.FieldWeightKg, domain.OpGreaterThan, domain.String("500"), "", false},
		{"in with scalar", domain.FieldCountryOfOrigin, domain.OpIn, domain.String("CN"), "", true},
		{"in with empty list", domain.FieldCountryOfOrigin, domain.OpIn, domain.List(), "", true},
		{"not_in with number", domain.FieldDeclaredValue, domain.OpNotIn, domain.Number(3), "", true},
		{"unknown field", "couleur", domain.OpEquals, domain.String("rouge"), "", true},
		{"unknown operator", domain.FieldHSCode, domain.Operator("like"), domain.String("61"), "", true},
		{"unknown connector", domain.FieldHSCode, domain.OpEquals, domain.String("61"), domain.LogicalOperator("XOR"), true},
		{"missing value", domain.FieldHSCode, domain.OpEquals, domain.Value{}, "", true},
		{"list on scalar op", domain.FieldHSCode, domain.OpEquals, domain.Strings("61"), "", true},
		{"text on numeric ordered op", domain.FieldDeclaredValue, domain.OpLessThan, domain.String("cheap"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := CreateCondition(tt.field, tt.op, tt.value, tt.conn)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.ID == "" {
				t.Error("expected a condition id")
			}
			if c.Field != tt.field || c.Operator != tt.op || c.LogicalOperator != tt.conn {
				t.Errorf("condition fields not preserved: %+v", c)
			}
		})
	}
}

func TestCreateRule(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	fixedClock(t, start)

	r := sampleRule(t)

	if r.Status != domain.StatusInactive {
		t.Errorf("expected status inactive, got %s", r.Status)
	}
	if r.Metadata.TriggeredCount != 0 {
		t.Errorf("expected triggeredCount 0, got %d", r.Metadata.TriggeredCount)
	}
	if !r.Metadata.CreatedAt.Equal(start) || !r.Metadata.ModifiedAt.Equal(start) {
		t.Errorf("expected timestamps = %v, got created %v modified %v", start, r.Metadata.CreatedAt, r.Metadata.ModifiedAt)
	}
	if r.Metadata.CreatedBy != "analyste" || r.Metadata.ModifiedBy != "analyste" {
		t.Errorf("expected author recorded, got %+v", r.Metadata)
	}
	if len(r.Conditions) != 2 || r.Conditions[0].Field != domain.FieldCountryOfOrigin {
		t.Errorf("condition order not preserved: %+v", r.Conditions)
	}

	t.Run("empty conditions", func(t *testing.T) {
		_, err := CreateRule(RuleSpec{Name: "vide", Action: domain.Action{RiskLevel: domain.RiskYellow}})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("testing status allowed", func(t *testing.T) {
		r, err := CreateRule(RuleSpec{
			Name:       "essai",
			Status:     domain.StatusTesting,
			Conditions: []domain.Condition{mustCondition(t, domain.FieldWeightKg, domain.OpGreaterThan, domain.Number(500), "")},
			Action:     domain.Action{RiskLevel: domain.RiskYellow},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Status != domain.StatusTesting {
			t.Errorf("expected testing, got %s", r.Status)
		}
		if r.Priority != 1 {
			t.Errorf("expected default priority 1, got %d", r.Priority)
		}
	})

	t.Run("active status rejected", func(t *testing.T) {
		_, err := CreateRule(RuleSpec{
			Name:       "direct",
			Status:     domain.StatusActive,
			Conditions: []domain.Condition{mustCondition(t, domain.FieldWeightKg, domain.OpGreaterThan, domain.Number(500), "")},
			Action:     domain.Action{RiskLevel: domain.RiskYellow},
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("missing risk level", func(t *testing.T) {
		_, err := CreateRule(RuleSpec{
			Name:       "sans action",
			Conditions: []domain.Condition{mustCondition(t, domain.FieldWeightKg, domain.OpGreaterThan, domain.Number(500), "")},
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("negative priority", func(t *testing.T) {
		_, err := CreateRule(RuleSpec{
			Name:       "prio",
			Priority:   -1,
			Conditions: []domain.Condition{mustCondition(t, domain.FieldWeightKg, domain.OpGreaterThan, domain.Number(500), "")},
			Action:     domain.Action{RiskLevel: domain.RiskGreen},
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestAddCondition(t *testing.T) {
	advance := fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r := sampleRule(t)
	advance(time.Hour)

	c := mustCondition(t, domain.FieldHSCode, domain.OpEquals, domain.String("6109"), "")
	out, err := AddCondition(r, c, "superviseur")
	if err != nil {
		t.Fatalf("AddCondition: %v", err)
	}

	if len(r.Conditions) != 2 {
		t.Errorf("input rule mutated: %d conditions", len(r.Conditions))
	}
	if len(out.Conditions) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(out.Conditions))
	}
	if out.Conditions[2].ID != c.ID {
		t.Errorf("expected appended condition last")
	}
	if out.Conditions[1].LogicalOperator != "" {
		t.Errorf("previous last condition gained a connector: %q", out.Conditions[1].LogicalOperator)
	}
	if out.Conditions[2].LogicalOperator != "" {
		t.Errorf("new last condition gained a connector: %q", out.Conditions[2].LogicalOperator)
	}
	if !out.Metadata.ModifiedAt.After(r.Metadata.ModifiedAt) {
		t.Error("expected modifiedAt refreshed")
	}
	if out.Metadata.ModifiedBy != "superviseur" {
		t.Errorf("expected modifiedBy superviseur, got %s", out.Metadata.ModifiedBy)
	}

	if _, err := AddCondition(out, c, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected duplicate id rejected, got %v", err)
	}
}

func TestRemoveCondition(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r := sampleRule(t)

	out, err := RemoveCondition(r, r.Conditions[0].ID, "")
	if err != nil {
		t.Fatalf("RemoveCondition: %v", err)
	}
	if len(out.Conditions) != 1 || out.Conditions[0].Field != domain.FieldDeclaredValue {
		t.Fatalf("unexpected conditions after removal: %+v", out.Conditions)
	}
	if len(r.Conditions) != 2 || r.Conditions[0].Field != domain.FieldCountryOfOrigin {
		t.Error("input rule mutated")
	}

	_, err = RemoveCondition(out, out.Conditions[0].ID, "")
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation removing last condition, got %v", err)
	}

	_, err = RemoveCondition(r, "absent", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateCondition(t *testing.T) {
	advance := fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r := sampleRule(t)
	advance(time.Minute)

	target := r.Conditions[0].ID
	value := domain.Strings("CN", "HK", "VN")
	out, err := UpdateCondition(r, target, ConditionPatch{Value: &value}, "")
	if err != nil {
		t.Fatalf("UpdateCondition: %v", err)
	}

	got := out.Conditions[0]
	if got.ID != target || got.Field != domain.FieldCountryOfOrigin || got.Operator != domain.OpIn {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.LogicalOperator != domain.LogicalAnd {
		t.Errorf("connector lost: %q", got.LogicalOperator)
	}
	if got.Value.Len() != 3 {
		t.Errorf("expected 3 countries, got %d", got.Value.Len())
	}
	if r.Conditions[0].Value.Len() != 1 {
		t.Error("input rule mutated")
	}
	if !out.Metadata.ModifiedAt.After(r.Metadata.ModifiedAt) {
		t.Error("expected modifiedAt refreshed")
	}
	if out.Metadata.ModifiedBy != r.Metadata.ModifiedBy {
		t.Errorf("modifiedBy changed without editor: %s", out.Metadata.ModifiedBy)
	}

	t.Run("shape re-validated", func(t *testing.T) {
		op := domain.OpIn
		_, err := UpdateCondition(r, r.Conditions[1].ID, ConditionPatch{Operator: &op}, "")
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation switching to in with a scalar, got %v", err)
		}
	})

	t.Run("unknown condition", func(t *testing.T) {
		_, err := UpdateCondition(r, "absent", ConditionPatch{}, "")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUpdateAction(t *testing.T) {
	advance := fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r := sampleRule(t)
	advance(time.Minute)

	force := true
	out, err := UpdateAction(r, ActionPatch{ForceControl: &force}, "chef")
	if err != nil {
		t.Fatalf("UpdateAction: %v", err)
	}
	if out.Action.RiskLevel != domain.RiskRed || out.Action.ScoreAdjustment != 25 || !out.Action.ForceControl {
		t.Errorf("unexpected action: %+v", out.Action)
	}
	if r.Action.ForceControl {
		t.Error("input rule mutated")
	}
	if !out.Metadata.ModifiedAt.After(r.Metadata.ModifiedAt) || out.Metadata.ModifiedBy != "chef" {
		t.Errorf("expected modification recorded: %+v", out.Metadata)
	}

	bad := domain.RiskLevel("O")
	if _, err := UpdateAction(r, ActionPatch{RiskLevel: &bad}, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for unknown risk level, got %v", err)
	}
}

func TestToggleAndSetStatus(t *testing.T) {
	fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r := sampleRule(t)

	on := ToggleStatus(r, "")
	if on.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", on.Status)
	}
	off := ToggleStatus(on, "")
	if off.Status != domain.StatusInactive {
		t.Fatalf("expected inactive, got %s", off.Status)
	}
	if r.Status != domain.StatusInactive {
		t.Error("input rule mutated")
	}

	trial, err := SetStatus(r, domain.StatusTesting, "")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if ToggleStatus(trial, "").Status != domain.StatusActive {
		t.Error("expected testing to toggle to active")
	}

	if _, err := SetStatus(r, "archived", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestDuplicate(t *testing.T) {
	advance := fixedClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r := ToggleStatus(sampleRule(t), "")
	r.Metadata.TriggeredCount = 340
	r.Metadata.DetectionRate = 0.82
	r.Metadata.FalsePositiveRate = 0.12
	r.Metadata.AvgProcessingTime = 3.5
	last := time.Date(2024, 2, 28, 17, 0, 0, 0, time.UTC)
	r.Metadata.LastTriggered = &last
	r.Performance = &domain.RulePerformance{Trend: domain.TrendImproving, Efficiency: 0.8}
	advance(24 * time.Hour)

	d := Duplicate(r, "")

	if d.ID == r.ID {
		t.Error("expected a new id")
	}
	if d.Name != r.Name+" (Copie)" {
		t.Errorf("unexpected name %q", d.Name)
	}
	if d.Status != domain.StatusInactive {
		t.Errorf("expected inactive copy, got %s", d.Status)
	}
	if d.Metadata.TriggeredCount != 0 || d.Metadata.LastTriggered != nil {
		t.Errorf("expected trigger history reset: %+v", d.Metadata)
	}
	if d.Metadata.DetectionRate != 0.82 || d.Metadata.FalsePositiveRate != 0.12 || d.Metadata.AvgProcessingTime != 3.5 {
		t.Errorf("expected measured rates to carry over: %+v", d.Metadata)
	}
	if d.Performance == nil || d.Performance.Efficiency != 0.8 {
		t.Errorf("expected performance to carry over, got %+v", d.Performance)
	}
	if d.Performance == r.Performance {
		t.Error("duplicate shares the performance pointer")
	}
	if !d.Metadata.CreatedAt.After(r.Metadata.CreatedAt) {
		t.Error("expected fresh timestamps")
	}
	for i := range d.Conditions {
		if d.Conditions[i].ID == r.Conditions[i].ID {
			t.Errorf("condition %d kept its id", i)
		}
		if d.Conditions[i].Field != r.Conditions[i].Field {
			t.Errorf("condition %d changed field", i)
		}
	}
	if Fingerprint(d) != Fingerprint(r) {
		t.Error("duplicate should share the estimator fingerprint")
	}
}
