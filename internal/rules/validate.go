package rules

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opencustomruler/ruler/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names in messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("rulefield", func(fl validator.FieldLevel) bool {
		_, ok := domain.LookupField(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("ruleop", func(fl validator.FieldLevel) bool {
		return domain.Operator(fl.Field().String()).Valid()
	})

	return v
}

// ValidateRule checks the full structural contract of a rule.
func ValidateRule(r *domain.Rule) error {
	const op = "rules.ValidateRule"
	if r == nil {
		return domain.Validationf(op, "rule is required")
	}
	if len(r.Conditions) == 0 {
		return domain.Validationf(op, "a rule needs at least one condition")
	}
	if err := validate.Struct(r); err != nil {
		return translate(op, err)
	}
	return ValidateConditions(r.Conditions)
}

// ValidateConditions checks the shape of an ordered condition list.
// It is all the impact estimator needs from a rule.
func ValidateConditions(conds []domain.Condition) error {
	const op = "rules.ValidateConditions"
	if len(conds) == 0 {
		return domain.Validationf(op, "a rule needs at least one condition")
	}
	seen := make(map[string]struct{}, len(conds))
	for i := range conds {
		c := &conds[i]
		if err := checkCondition(c.Field, c.Operator, c.Value, c.LogicalOperator); err != nil {
			return fmt.Errorf("condition %d: %w", i+1, err)
		}
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			return domain.Validationf(op, "duplicate condition id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// checkCondition enforces field, operator, connector and value shape.
func checkCondition(field string, operator domain.Operator, value domain.Value, connector domain.LogicalOperator) error {
	const op = "rules.CreateCondition"

	spec, ok := domain.LookupField(field)
	if !ok {
		return domain.Validationf(op, "unknown field %q", field)
	}
	if !operator.Valid() {
		return domain.Validationf(op, "unknown operator %q", operator)
	}
	if !connector.Valid() {
		return domain.Validationf(op, "unknown logical operator %q", connector)
	}

	if operator.RequiresList() {
		if !value.IsList() || value.Len() == 0 {
			return domain.Validationf(op, "operator %s requires a non-empty list, got %s", operator, value.Kind())
		}
		return nil
	}

	switch {
	case value.IsZero():
		return domain.Validationf(op, "operator %s requires a value", operator)
	case value.IsList():
		return domain.Validationf(op, "operator %s takes a single value, got a list", operator)
	}

	if operator.Ordered() && spec.Kind == domain.FieldKindNumber {
		if _, ok := value.Float(); !ok {
			return domain.Validationf(op, "field %s compares numbers, got %s", field, value)
		}
	}
	return nil
}

// translate converts validator errors into a single validation error.
func translate(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Validationf(op, "%v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, describeFieldError(fe))
	}
	return domain.Validationf(op, "%s", strings.Join(parts, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Rule.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "rulefield":
		return fmt.Sprintf("%s: unknown field %q", field, fe.Value())
	case "ruleop":
		return fmt.Sprintf("%s: unknown operator %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s item(s)", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", field, fe.Tag())
}
