// Package advisory turns an impact estimate into an approval verdict and
// a list of recommendations for the reviewer.
package advisory

import (
	"fmt"
	"strings"

	"github.com/opencustomruler/ruler/internal/domain"
)

// Recommendation codes.
const (
	CodeHighFalsePositives = "high_false_positives"
	CodeLowROI             = "low_roi"
	CodeOfficeOverload     = "office_overload"
	CodeActivate           = "activation_recommended"
	CodeSingleCondition    = "single_condition"
)

// Severities.
const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
	SeveritySuccess = "success"
)

// Processor assesses estimates against advisory thresholds.
type Processor struct {
	Thresholds domain.AdvisoryThresholds
}

// NewProcessor creates a processor. Zero thresholds fall back to the
// defaults.
func NewProcessor(th domain.AdvisoryThresholds) *Processor {
	if th == (domain.AdvisoryThresholds{}) {
		th = domain.DefaultAdvisoryThresholds()
	}
	return &Processor{Thresholds: th}
}

// Assess reads an estimate for rule. Review outranks recommend.
func (p *Processor) Assess(rule *domain.Rule, est *domain.ImpactEstimate) domain.Assessment {
	th := p.Thresholds
	perf := est.Performance

	overloaded := overloadedOffices(est)
	needsReview := perf.RiskOfFalsePositives > th.MaxFalsePositiveRisk || est.AnyOfficeOverloaded()
	positive := est.Costs.NetBenefit > 0 && perf.EstimatedPrecision > th.PositivePrecision

	a := domain.Assessment{
		NeedsReview:     needsReview,
		PositiveImpact:  positive,
		Recommendations: []domain.Recommendation{},
	}
	switch {
	case needsReview:
		a.Verdict = domain.VerdictReview
	case positive:
		a.Verdict = domain.VerdictRecommend
	default:
		a.Verdict = domain.VerdictNeutral
	}

	if perf.RiskOfFalsePositives > th.MaxFalsePositiveRisk {
		a.Recommendations = append(a.Recommendations, domain.Recommendation{
			Code:     CodeHighFalsePositives,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("False positive risk is %.0f%%. Add more restrictive conditions to improve precision.",
				perf.RiskOfFalsePositives*100),
		})
	}
	if est.Revenue.ROI < th.MinROI {
		a.Recommendations = append(a.Recommendations, domain.Recommendation{
			Code:     CodeLowROI,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("ROI is %.0f%%, below %.0f%%. Refine the conditions to target higher-risk declarations.",
				est.Revenue.ROI, th.MinROI),
		})
	}
	if len(overloaded) > 0 {
		a.Recommendations = append(a.Recommendations, domain.Recommendation{
			Code:     CodeOfficeOverload,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Offices over capacity: %s. Consider a short expiration date or a gradual rollout.",
				strings.Join(overloaded, ", ")),
		})
	}
	if positive && perf.EstimatedPrecision > th.StrongPrecision {
		a.Recommendations = append(a.Recommendations, domain.Recommendation{
			Code:     CodeActivate,
			Severity: SeveritySuccess,
			Message:  "The rule balances precision and impact well. Activation is recommended.",
		})
	}
	if rule != nil && len(rule.Conditions) == 1 {
		a.Recommendations = append(a.Recommendations, domain.Recommendation{
			Code:     CodeSingleCondition,
			Severity: SeverityInfo,
			Message:  "Single-condition rules can be too broad. Add conditions to improve targeting.",
		})
	}

	return a
}

// ShouldReview reports whether a report must go to a human reviewer.
func ShouldReview(report *domain.ImpactReport) bool {
	return report.Assessment.Verdict == domain.VerdictReview
}

// Messages extracts the recommendation texts.
func Messages(a domain.Assessment) []string {
	var out []string
	for _, r := range a.Recommendations {
		if r.Message != "" {
			out = append(out, r.Message)
		}
	}
	return out
}

func overloadedOffices(est *domain.ImpactEstimate) []string {
	var names []string
	for _, o := range est.Offices.MostImpacted {
		if o.Overloaded {
			names = append(names, o.Name)
		}
	}
	return names
}
