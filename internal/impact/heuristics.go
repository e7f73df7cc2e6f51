package impact

import (
	"github.com/opencustomruler/ruler/internal/domain"
)

// Heuristic is one row of the scoring table: when Match holds for a
// condition, Adjustment is added to the running estimates.
type Heuristic struct {
	Name       string
	Match      func(c domain.Condition) bool
	Adjustment domain.Adjustment

	// Multiplier scales the impact delta. Nil means 1.
	Multiplier func(c domain.Condition) float64
}

// Running holds the three running estimates.
type Running struct {
	ImpactRate float64
	Precision  float64
	Recall     float64
}

// Apply adds h's contribution for c.
func (h Heuristic) Apply(c domain.Condition, r *Running) {
	m := 1.0
	if h.Multiplier != nil {
		m = h.Multiplier(c)
	}
	r.ImpactRate += h.Adjustment.Impact * m
	r.Precision += h.Adjustment.Precision
	r.Recall += h.Adjustment.Recall
}

// Table builds the ordered heuristic table from a calibration.
// Fields outside the table contribute nothing.
func Table(cal domain.Calibration) []Heuristic {
	adj := cal.Adjustments
	return []Heuristic{
		{
			Name:       "country_of_origin",
			Match:      onField(domain.FieldCountryOfOrigin),
			Adjustment: adj.CountryOfOrigin,
			Multiplier: listLength,
		},
		{
			Name:       "high_declared_value",
			Match:      valueBeyond(domain.OpGreaterThan, adj.HighValue.Threshold),
			Adjustment: adj.HighValue,
		},
		{
			Name:       "low_declared_value",
			Match:      valueBeyond(domain.OpLessThan, adj.LowValue.Threshold),
			Adjustment: adj.LowValue,
		},
		{
			Name:       "operator_age",
			Match:      onField(domain.FieldOperatorAgeMonths),
			Adjustment: adj.OperatorAge,
		},
		{
			Name:       "weight",
			Match:      onField(domain.FieldWeightKg),
			Adjustment: adj.Weight,
		},
		{
			Name:       "hs_code",
			Match:      onField(domain.FieldHSCode),
			Adjustment: adj.HSCode,
		},
	}
}

func onField(field string) func(domain.Condition) bool {
	return func(c domain.Condition) bool { return c.Field == field }
}

// valueBeyond matches a declared-value condition whose numeric bound lies
// strictly past threshold in the operator's direction.
func valueBeyond(op domain.Operator, threshold float64) func(domain.Condition) bool {
	return func(c domain.Condition) bool {
		if c.Field != domain.FieldDeclaredValue || c.Operator != op || c.Value.IsList() {
			return false
		}
		v, ok := c.Value.Float()
		if !ok {
			return false
		}
		if op == domain.OpGreaterThan {
			return v > threshold
		}
		return v < threshold
	}
}

// listLength counts list items, at least one.
func listLength(c domain.Condition) float64 {
	if c.Value.IsList() && c.Value.Len() > 1 {
		return float64(c.Value.Len())
	}
	return 1
}
