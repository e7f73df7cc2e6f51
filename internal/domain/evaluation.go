package domain

// DryRunResult is the outcome of evaluating one rule against one declaration.
type DryRunResult struct {
	RuleID     string             `json:"ruleId"`
	RuleName   string             `json:"ruleName,omitempty"`
	Priority   int                `json:"priority,omitempty"`
	Expression string             `json:"expression"`
	Fired      bool               `json:"fired"`
	Conditions []ConditionOutcome `json:"conditions"`
	Action     *Action            `json:"action,omitempty"` // set when Fired
	Error      string             `json:"error,omitempty"`
	ProcessMs  int64              `json:"processMs"`
}

// ConditionOutcome reports a single condition's truth on the declaration.
type ConditionOutcome struct {
	ConditionID string `json:"conditionId"`
	Field       string `json:"field"`
	Matched     bool   `json:"matched"`
	Present     bool   `json:"present"` // the declaration carries the field
}

// SweepResult is the outcome of running every active rule against a declaration.
type SweepResult struct {
	DeclarationID string         `json:"declarationId"`
	Matches       []DryRunResult `json:"matches"`

	// Decision is the action of the highest-precedence fired rule, if any.
	Decision     *Action       `json:"decision,omitempty"`
	DecidingRule string        `json:"decidingRule,omitempty"`
	Metadata     SweepMetadata `json:"metadata"`
}

// SweepMetadata contains processing information.
type SweepMetadata struct {
	TraceID        string `json:"traceId"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	TotalMs        int64  `json:"totalMs"`
}
