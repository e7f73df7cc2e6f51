package rules

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/opencustomruler/ruler/internal/domain"
)

var operatorSymbols = map[domain.Operator]string{
	domain.OpEquals:         "=",
	domain.OpNotEquals:      "!=",
	domain.OpGreaterThan:    ">",
	domain.OpLessThan:       "<",
	domain.OpGreaterOrEqual: ">=",
	domain.OpLessOrEqual:    "<=",
	domain.OpContains:       "contains",
	domain.OpIn:             "in",
	domain.OpNotIn:          "not in",
}

// Describe renders a rule as "IF c1 AND c2 OR c3 THEN R (+25)".
// The connector of the last condition is never shown.
func Describe(r *domain.Rule) string {
	var b strings.Builder
	b.WriteString("IF ")
	for i, c := range r.Conditions {
		if i > 0 {
			conn := r.Conditions[i-1].LogicalOperator
			if conn == "" {
				conn = domain.LogicalAnd
			}
			b.WriteByte(' ')
			b.WriteString(string(conn))
			b.WriteByte(' ')
		}
		b.WriteString(DescribeCondition(c))
	}

	b.WriteString(" THEN ")
	b.WriteString(string(r.Action.RiskLevel))
	b.WriteString(" (")
	if r.Action.ScoreAdjustment >= 0 {
		b.WriteByte('+')
	}
	b.WriteString(strconv.Itoa(r.Action.ScoreAdjustment))
	if r.Action.ForceControl {
		b.WriteString(", forced control")
	}
	b.WriteByte(')')
	return b.String()
}

// DescribeCondition renders one condition, e.g. `valeur_declaree > 50000`.
func DescribeCondition(c domain.Condition) string {
	sym, ok := operatorSymbols[c.Operator]
	if !ok {
		sym = string(c.Operator)
	}
	return c.Field + " " + sym + " " + c.Value.String()
}

// Fingerprint hashes the parts of a rule the estimator reads: the ordered
// conditions and the action. Ids, names and metadata do not contribute.
func Fingerprint(r *domain.Rule) uint64 {
	d := xxhash.New()
	for _, c := range r.Conditions {
		_, _ = d.WriteString(c.Field)
		_, _ = d.WriteString("\x1f")
		_, _ = d.WriteString(string(c.Operator))
		_, _ = d.WriteString("\x1f")
		_, _ = d.WriteString(c.Value.String())
		_, _ = d.WriteString("\x1f")
		_, _ = d.WriteString(string(c.LogicalOperator))
		_, _ = d.WriteString("\x1e")
	}
	_, _ = d.WriteString(string(r.Action.RiskLevel))
	_, _ = d.WriteString("\x1f")
	_, _ = d.WriteString(strconv.Itoa(r.Action.ScoreAdjustment))
	_, _ = d.WriteString("\x1f")
	_, _ = d.WriteString(strconv.FormatBool(r.Action.ForceControl))
	return d.Sum64()
}

// FingerprintHex is Fingerprint as a fixed-width hex string.
func FingerprintHex(r *domain.Rule) string {
	s := strconv.FormatUint(Fingerprint(r), 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}
