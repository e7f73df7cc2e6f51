package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opencustomruler/ruler/internal/domain"
)

// maxCompiled bounds the compiled program cache.
const maxCompiled = 4096

// Engine dry-runs rules against sample declarations with CEL.
// The impact estimator never goes through it.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledRule // key: condition fingerprint
	maxWorkers int
}

// CompiledRule holds the CEL programs for one rule shape.
type CompiledRule struct {
	Expression string
	Program    cel.Program

	// Conditions holds one program per condition, in rule order.
	Conditions []cel.Program
}

// NewEngine creates a dry-run engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("decl", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// Expression translates a rule's conditions into a CEL boolean expression.
// Connectors fold left to right in sequence order; a missing connector reads as AND.
func Expression(r *domain.Rule) (string, error) {
	if len(r.Conditions) == 0 {
		return "", domain.Validationf("rules.Expression", "a rule needs at least one condition")
	}

	expr := ""
	for i, c := range r.Conditions {
		ce, err := conditionExpression(c)
		if err != nil {
			return "", fmt.Errorf("condition %d: %w", i+1, err)
		}
		if i == 0 {
			expr = ce
			continue
		}
		join := "&&"
		if r.Conditions[i-1].LogicalOperator == domain.LogicalOr {
			join = "||"
		}
		expr = "(" + expr + " " + join + " " + ce + ")"
	}
	return expr, nil
}

// conditionExpression is false when the declaration lacks the field.
func conditionExpression(c domain.Condition) (string, error) {
	const op = "rules.Expression"

	spec, ok := domain.LookupField(c.Field)
	if !ok {
		return "", domain.Validationf(op, "unknown field %q", c.Field)
	}
	numeric := spec.Kind == domain.FieldKindNumber

	sel := "decl." + c.Field
	operand := "string(" + sel + ")"
	if numeric {
		operand = "double(" + sel + ")"
	}

	var test string
	switch c.Operator {
	case domain.OpEquals, domain.OpNotEquals, domain.OpGreaterThan, domain.OpLessThan,
		domain.OpGreaterOrEqual, domain.OpLessOrEqual:
		lit, err := literal(c.Value, numeric)
		if err != nil {
			return "", err
		}
		test = operand + " " + celComparators[c.Operator] + " " + lit
	case domain.OpContains:
		test = "string(" + sel + ").contains(" + strconv.Quote(c.Value.Text()) + ")"
	case domain.OpIn, domain.OpNotIn:
		items := c.Value.Items()
		lits := make([]string, len(items))
		for i, it := range items {
			lit, err := literal(it, numeric)
			if err != nil {
				return "", err
			}
			lits[i] = lit
		}
		test = operand + " in [" + strings.Join(lits, ", ") + "]"
		if c.Operator == domain.OpNotIn {
			test = "!(" + test + ")"
		}
	default:
		return "", domain.Validationf(op, "unknown operator %q", c.Operator)
	}

	return "(has(" + sel + ") && " + test + ")", nil
}

var celComparators = map[domain.Operator]string{
	domain.OpEquals:         "==",
	domain.OpNotEquals:      "!=",
	domain.OpGreaterThan:    ">",
	domain.OpLessThan:       "<",
	domain.OpGreaterOrEqual: ">=",
	domain.OpLessOrEqual:    "<=",
}

// literal renders a scalar as a CEL literal of the field's kind.
func literal(v domain.Value, numeric bool) (string, error) {
	if !numeric {
		return strconv.Quote(v.Text()), nil
	}
	f, ok := v.Float()
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", domain.Validationf("rules.Expression", "expected a number, got %s", v)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

// Compile returns the compiled programs for r, reusing a cached build when
// another rule with the same conditions was compiled before.
func (e *Engine) Compile(r *domain.Rule) (*CompiledRule, error) {
	key := conditionKey(r)

	e.mu.RLock()
	cr, ok := e.compiled[key]
	e.mu.RUnlock()
	if ok {
		return cr, nil
	}

	expr, err := Expression(r)
	if err != nil {
		return nil, err
	}
	prg, err := e.program(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, err)
	}

	cr = &CompiledRule{
		Expression: expr,
		Program:    prg,
		Conditions: make([]cel.Program, len(r.Conditions)),
	}
	for i, c := range r.Conditions {
		ce, _ := conditionExpression(c) // already validated by Expression
		if cr.Conditions[i], err = e.program(ce); err != nil {
			return nil, fmt.Errorf("failed to compile condition %s: %w", c.ID, err)
		}
	}

	e.mu.Lock()
	if len(e.compiled) >= maxCompiled {
		e.compiled = make(map[string]*CompiledRule)
	}
	e.compiled[key] = cr
	e.mu.Unlock()

	return cr, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}
	return e.env.Program(ast)
}

// conditionKey is the fingerprint of the conditions alone.
func conditionKey(r *domain.Rule) string {
	shape := domain.Rule{Conditions: r.Conditions}
	return FingerprintHex(&shape)
}

// DryRun evaluates r against decl. Evaluation errors, such as a declared
// value that is not a number, are reported in the result rather than returned.
func (e *Engine) DryRun(ctx context.Context, r *domain.Rule, decl *domain.Declaration) (*domain.DryRunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	cr, err := e.Compile(r)
	if err != nil {
		return nil, err
	}

	activation := map[string]any{"decl": decl.Attributes}

	result := &domain.DryRunResult{
		RuleID:     r.ID,
		RuleName:   r.Name,
		Priority:   r.Priority,
		Expression: cr.Expression,
		Conditions: make([]domain.ConditionOutcome, len(r.Conditions)),
	}

	for i, c := range r.Conditions {
		_, present := decl.Attributes[c.Field]
		out, _, evalErr := cr.Conditions[i].Eval(activation)
		result.Conditions[i] = domain.ConditionOutcome{
			ConditionID: c.ID,
			Field:       c.Field,
			Present:     present,
			Matched:     evalErr == nil && out == types.True,
		}
	}

	out, _, evalErr := cr.Program.Eval(activation)
	if evalErr != nil {
		result.Error = fmt.Sprintf("evaluation error: %v", evalErr)
	} else if out == types.True {
		result.Fired = true
		action := r.Action
		result.Action = &action
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result, nil
}

// Sweep dry-runs every rule in parallel and picks the highest-precedence
// fired rule (lowest priority, then name) as the decision.
func (e *Engine) Sweep(ctx context.Context, rules []*domain.Rule, decl *domain.Declaration) (*domain.SweepResult, error) {
	start := time.Now()

	results := make([]*domain.DryRunResult, len(rules))
	errs := make([]error, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *domain.Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx], errs[idx] = e.DryRun(ctx, r, decl)
		}(i, rule)
	}

	wg.Wait()

	sweep := &domain.SweepResult{
		DeclarationID: decl.ID,
		Matches:       []domain.DryRunResult{},
	}
	for i, res := range results {
		if errs[i] != nil {
			return nil, errs[i]
		}
		if res.Fired {
			sweep.Matches = append(sweep.Matches, *res)
		}
	}

	sort.SliceStable(sweep.Matches, func(i, j int) bool {
		a, b := sweep.Matches[i], sweep.Matches[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.RuleName < b.RuleName
	})
	if len(sweep.Matches) > 0 {
		sweep.Decision = sweep.Matches[0].Action
		sweep.DecidingRule = sweep.Matches[0].RuleID
	}

	sweep.Metadata.RulesEvaluated = len(rules)
	sweep.Metadata.TotalMs = time.Since(start).Milliseconds()
	return sweep, nil
}

// CompiledCount returns the number of cached rule shapes.
func (e *Engine) CompiledCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}
