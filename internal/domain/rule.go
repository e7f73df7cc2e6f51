package domain

import (
	"time"
)

// Rule is a named conditional expression: IF conditions THEN action.
// Rules flag customs declarations for manual control.
type Rule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description"`
	Priority    int        `json:"priority" validate:"gte=1"` // lower = higher precedence
	Status      RuleStatus `json:"status" validate:"oneof=active inactive testing"`

	// Conditions are evaluated in sequence order. Order is never changed once set.
	Conditions []Condition `json:"conditions" validate:"min=1,dive"`

	Action   Action       `json:"action"`
	Metadata RuleMetadata `json:"metadata"`

	// Performance is only populated for rules with usage history.
	Performance *RulePerformance `json:"performance,omitempty"`
}

// Condition is one atomic test in a rule.
type Condition struct {
	ID       string   `json:"id"`
	Field    string   `json:"field" validate:"required,rulefield"`
	Operator Operator `json:"operator" validate:"required,ruleop"`
	Value    Value    `json:"value"`

	// LogicalOperator connects this condition to the next one.
	// It is meaningless on the last condition.
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty" validate:"omitempty,oneof=AND OR"`
}

// Action is what a rule does when it fires.
type Action struct {
	RiskLevel       RiskLevel `json:"riskLevel" validate:"oneof=V J R"`
	ScoreAdjustment int       `json:"scoreAdjustment"`
	ForceControl    bool      `json:"forceControl"`
}

// RuleMetadata holds audit and usage facts.
type RuleMetadata struct {
	CreatedBy         string     `json:"createdBy"`
	CreatedAt         time.Time  `json:"createdAt"`
	ModifiedBy        string     `json:"modifiedBy"`
	ModifiedAt        time.Time  `json:"modifiedAt"`
	TriggeredCount    int        `json:"triggeredCount" validate:"gte=0"`
	DetectionRate     float64    `json:"detectionRate" validate:"gte=0,lte=1"`
	FalsePositiveRate float64    `json:"falsePositiveRate" validate:"gte=0,lte=1"`
	AvgProcessingTime float64    `json:"avgProcessingTime" validate:"gte=0"` // ms
	LastTriggered     *time.Time `json:"lastTriggered,omitempty"`
	ExpirationDate    *time.Time `json:"expirationDate,omitempty"`
}

// RulePerformance summarises how a rule has behaved in production.
type RulePerformance struct {
	Trend      Trend   `json:"trend" validate:"oneof=improving stable declining"`
	Efficiency float64 `json:"efficiency" validate:"gte=0,lte=1"`
	Coverage   float64 `json:"coverage" validate:"gte=0,lte=1"`
	Accuracy   float64 `json:"accuracy" validate:"gte=0,lte=1"`
}

// Operator is the comparison applied by a condition.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpContains       Operator = "contains"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpContains, OpIn, OpNotIn:
		return true
	}
	return false
}

// RequiresList reports whether the operator takes a list value.
func (o Operator) RequiresList() bool {
	return o == OpIn || o == OpNotIn
}

// Ordered reports whether the operator compares magnitudes.
func (o Operator) Ordered() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return true
	}
	return false
}

// LogicalOperator joins a condition to the next one.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Valid reports whether l is empty or a known connector.
func (l LogicalOperator) Valid() bool {
	return l == "" || l == LogicalAnd || l == LogicalOr
}

// RiskLevel is the control circuit a rule routes to.
type RiskLevel string

const (
	RiskGreen  RiskLevel = "V" // vert
	RiskYellow RiskLevel = "J" // jaune
	RiskRed    RiskLevel = "R" // rouge
)

// Valid reports whether r is a known circuit.
func (r RiskLevel) Valid() bool {
	return r == RiskGreen || r == RiskYellow || r == RiskRed
}

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	StatusActive   RuleStatus = "active"
	StatusInactive RuleStatus = "inactive"
	StatusTesting  RuleStatus = "testing"
)

// Valid reports whether s is a known status.
func (s RuleStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive || s == StatusTesting
}

// Trend describes the direction of a rule's recent performance.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Clone returns a deep copy of r. Condition values are immutable and shared.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	out.Conditions = make([]Condition, len(r.Conditions))
	copy(out.Conditions, r.Conditions)
	if r.Performance != nil {
		p := *r.Performance
		out.Performance = &p
	}
	if r.Metadata.LastTriggered != nil {
		t := *r.Metadata.LastTriggered
		out.Metadata.LastTriggered = &t
	}
	if r.Metadata.ExpirationDate != nil {
		t := *r.Metadata.ExpirationDate
		out.Metadata.ExpirationDate = &t
	}
	return &out
}
