// Package rules builds, edits, validates and dry-runs customs control rules.
//
// Every helper returns a new value. Inputs are never mutated, so a rule
// handed to the impact estimator or the catalog stays stable.
package rules

import (
	"time"

	"github.com/google/uuid"
	"github.com/opencustomruler/ruler/internal/domain"
)

// DuplicateSuffix is appended to the name of a duplicated rule.
const DuplicateSuffix = " (Copie)"

// Overridable in tests.
var (
	now   = func() time.Time { return time.Now().UTC() }
	newID = uuid.NewString
)

// CreateCondition builds a validated condition with a fresh id.
func CreateCondition(field string, operator domain.Operator, value domain.Value, connector domain.LogicalOperator) (domain.Condition, error) {
	if err := checkCondition(field, operator, value, connector); err != nil {
		return domain.Condition{}, err
	}
	return domain.Condition{
		ID:              newID(),
		Field:           field,
		Operator:        operator,
		Value:           value,
		LogicalOperator: connector,
	}, nil
}

// RuleSpec carries the caller-supplied parts of a new rule.
type RuleSpec struct {
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Priority       int                `json:"priority"`
	Status         domain.RuleStatus  `json:"status,omitempty"` // inactive (default) or testing
	Conditions     []domain.Condition `json:"conditions"`
	Action         domain.Action      `json:"action"`
	Author         string             `json:"author,omitempty"`
	ExpirationDate *time.Time         `json:"expirationDate,omitempty"`
}

// CreateRule builds a new inactive rule. Conditions keep their order;
// conditions without an id get one.
func CreateRule(spec RuleSpec) (*domain.Rule, error) {
	const op = "rules.CreateRule"

	if len(spec.Conditions) == 0 {
		return nil, domain.Validationf(op, "a rule needs at least one condition")
	}

	status := spec.Status
	switch status {
	case "":
		status = domain.StatusInactive
	case domain.StatusInactive, domain.StatusTesting:
	case domain.StatusActive:
		return nil, domain.Validationf(op, "new rules start inactive or testing; activate with a toggle")
	default:
		return nil, domain.Validationf(op, "unknown status %q", spec.Status)
	}

	priority := spec.Priority
	if priority == 0 {
		priority = 1
	}

	conds := make([]domain.Condition, len(spec.Conditions))
	copy(conds, spec.Conditions)
	for i := range conds {
		if conds[i].ID == "" {
			conds[i].ID = newID()
		}
	}

	ts := now()
	r := &domain.Rule{
		ID:          newID(),
		Name:        spec.Name,
		Description: spec.Description,
		Priority:    priority,
		Status:      status,
		Conditions:  conds,
		Action:      spec.Action,
		Metadata: domain.RuleMetadata{
			CreatedBy:      spec.Author,
			CreatedAt:      ts,
			ModifiedBy:     spec.Author,
			ModifiedAt:     ts,
			TriggeredCount: 0,
		},
	}
	if spec.ExpirationDate != nil {
		t := *spec.ExpirationDate
		r.Metadata.ExpirationDate = &t
	}

	if err := ValidateRule(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddCondition appends c. No connector is implied on either side.
func AddCondition(r *domain.Rule, c domain.Condition, editor string) (*domain.Rule, error) {
	const op = "rules.AddCondition"

	if err := checkCondition(c.Field, c.Operator, c.Value, c.LogicalOperator); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if indexOf(r, c.ID) >= 0 {
		return nil, domain.Validationf(op, "condition %s already exists", c.ID)
	}

	out := r.Clone()
	out.Conditions = append(out.Conditions, c)
	touch(out, editor)
	return out, nil
}

// RemoveCondition drops the condition with the given id.
// A rule always keeps at least one condition.
func RemoveCondition(r *domain.Rule, conditionID, editor string) (*domain.Rule, error) {
	const op = "rules.RemoveCondition"

	idx := indexOf(r, conditionID)
	if idx < 0 {
		return nil, domain.NotFoundf(op, "condition %s not found", conditionID)
	}
	if len(r.Conditions) == 1 {
		return nil, domain.Invariantf(op, "cannot remove the last condition of rule %s", r.ID)
	}

	out := r.Clone()
	out.Conditions = append(out.Conditions[:idx:idx], r.Conditions[idx+1:]...)
	touch(out, editor)
	return out, nil
}

// ConditionPatch is a partial condition update. Nil fields are kept.
type ConditionPatch struct {
	Field           *string                 `json:"field,omitempty"`
	Operator        *domain.Operator        `json:"operator,omitempty"`
	Value           *domain.Value           `json:"value,omitempty"`
	LogicalOperator *domain.LogicalOperator `json:"logicalOperator,omitempty"`
}

// UpdateCondition applies patch to one condition, keeping its position.
func UpdateCondition(r *domain.Rule, conditionID string, patch ConditionPatch, editor string) (*domain.Rule, error) {
	const op = "rules.UpdateCondition"

	idx := indexOf(r, conditionID)
	if idx < 0 {
		return nil, domain.NotFoundf(op, "condition %s not found", conditionID)
	}

	c := r.Conditions[idx]
	if patch.Field != nil {
		c.Field = *patch.Field
	}
	if patch.Operator != nil {
		c.Operator = *patch.Operator
	}
	if patch.Value != nil {
		c.Value = *patch.Value
	}
	if patch.LogicalOperator != nil {
		c.LogicalOperator = *patch.LogicalOperator
	}
	if err := checkCondition(c.Field, c.Operator, c.Value, c.LogicalOperator); err != nil {
		return nil, err
	}

	out := r.Clone()
	out.Conditions[idx] = c
	touch(out, editor)
	return out, nil
}

// ActionPatch is a partial action update. Nil fields are kept.
type ActionPatch struct {
	RiskLevel       *domain.RiskLevel `json:"riskLevel,omitempty"`
	ScoreAdjustment *int              `json:"scoreAdjustment,omitempty"`
	ForceControl    *bool             `json:"forceControl,omitempty"`
}

// UpdateAction applies patch to the rule's action.
func UpdateAction(r *domain.Rule, patch ActionPatch, editor string) (*domain.Rule, error) {
	const op = "rules.UpdateAction"

	a := r.Action
	if patch.RiskLevel != nil {
		if !patch.RiskLevel.Valid() {
			return nil, domain.Validationf(op, "unknown risk level %q", *patch.RiskLevel)
		}
		a.RiskLevel = *patch.RiskLevel
	}
	if patch.ScoreAdjustment != nil {
		a.ScoreAdjustment = *patch.ScoreAdjustment
	}
	if patch.ForceControl != nil {
		a.ForceControl = *patch.ForceControl
	}

	out := r.Clone()
	out.Action = a
	touch(out, editor)
	return out, nil
}

// ToggleStatus flips an active rule to inactive and anything else to active.
func ToggleStatus(r *domain.Rule, editor string) *domain.Rule {
	out := r.Clone()
	if r.Status == domain.StatusActive {
		out.Status = domain.StatusInactive
	} else {
		out.Status = domain.StatusActive
	}
	touch(out, editor)
	return out
}

// SetStatus moves the rule to status.
func SetStatus(r *domain.Rule, status domain.RuleStatus, editor string) (*domain.Rule, error) {
	if !status.Valid() {
		return nil, domain.Validationf("rules.SetStatus", "unknown status %q", status)
	}
	out := r.Clone()
	out.Status = status
	touch(out, editor)
	return out, nil
}

// Duplicate copies r under a new id. The copy is inactive with fresh
// timestamps and a zero trigger count; the measured rates and the
// performance summary carry over.
func Duplicate(r *domain.Rule, editor string) *domain.Rule {
	out := r.Clone()
	out.ID = newID()
	out.Name = r.Name + DuplicateSuffix
	out.Status = domain.StatusInactive
	for i := range out.Conditions {
		out.Conditions[i].ID = newID()
	}

	author := editor
	if author == "" {
		author = r.Metadata.CreatedBy
	}
	ts := now()
	out.Metadata.CreatedBy, out.Metadata.ModifiedBy = author, author
	out.Metadata.CreatedAt, out.Metadata.ModifiedAt = ts, ts
	out.Metadata.TriggeredCount = 0
	out.Metadata.LastTriggered = nil
	return out
}

func indexOf(r *domain.Rule, conditionID string) int {
	for i := range r.Conditions {
		if r.Conditions[i].ID == conditionID {
			return i
		}
	}
	return -1
}

// touch records a modification.
func touch(r *domain.Rule, editor string) {
	r.Metadata.ModifiedAt = now()
	if editor != "" {
		r.Metadata.ModifiedBy = editor
	}
}
