package advisory

import (
	"strings"
	"testing"

	"github.com/opencustomruler/ruler/internal/domain"
)

func twoConditions() *domain.Rule {
	return &domain.Rule{
		ID: "rule-1",
		Conditions: []domain.Condition{
			{ID: "c1", Field: domain.FieldCountryOfOrigin, Operator: domain.OpIn, Value: domain.Strings("CN")},
			{ID: "c2", Field: domain.FieldDeclaredValue, Operator: domain.OpGreaterThan, Value: domain.Number(50000)},
		},
	}
}

func estimate(precision, roi, net float64, overloaded ...bool) *domain.ImpactEstimate {
	est := &domain.ImpactEstimate{
		Revenue: domain.RevenueImpact{ROI: roi},
		Performance: domain.PerformanceImpact{
			EstimatedPrecision:   precision,
			RiskOfFalsePositives: 1 - precision,
		},
		Costs: domain.CostImpact{NetBenefit: net},
	}
	for i, o := range overloaded {
		est.Offices.MostImpacted = append(est.Offices.MostImpacted, domain.OfficeLoad{
			Name:       []string{"Roissy CDG", "Marseille-Fos", "Le Havre"}[i],
			Overloaded: o,
		})
	}
	return est
}

func codes(a domain.Assessment) map[string]bool {
	out := make(map[string]bool, len(a.Recommendations))
	for _, r := range a.Recommendations {
		out[r.Code] = true
	}
	return out
}

func TestProcessor(t *testing.T) {
	proc := NewProcessor(domain.DefaultAdvisoryThresholds())

	t.Run("StrongRule", func(t *testing.T) {
		a := proc.Assess(twoConditions(), estimate(0.85, 5000, 7.8e6, false, false))

		if a.Verdict != domain.VerdictRecommend {
			t.Errorf("expected recommend, got %s", a.Verdict)
		}
		if a.NeedsReview {
			t.Error("strong rule should not need review")
		}
		if !a.PositiveImpact {
			t.Error("expected positive impact")
		}
		got := codes(a)
		if !got[CodeActivate] {
			t.Errorf("expected %s, got %v", CodeActivate, got)
		}
		if len(got) != 1 {
			t.Errorf("expected a single recommendation, got %v", got)
		}
	})

	t.Run("Overload", func(t *testing.T) {
		a := proc.Assess(twoConditions(), estimate(0.85, 5000, 7.8e6, true, false, true))

		if a.Verdict != domain.VerdictReview {
			t.Errorf("overloaded office should force review, got %s", a.Verdict)
		}
		if !a.PositiveImpact {
			t.Error("overload does not cancel positive impact")
		}
		var msg string
		for _, r := range a.Recommendations {
			if r.Code == CodeOfficeOverload {
				msg = r.Message
			}
		}
		if msg == "" {
			t.Fatal("expected an office overload recommendation")
		}
		if want := "Roissy CDG, Le Havre"; !strings.Contains(msg, want) {
			t.Errorf("expected message to name %q, got %q", want, msg)
		}
	})

	t.Run("HighFalsePositives", func(t *testing.T) {
		a := proc.Assess(twoConditions(), estimate(0.45, 150, 1000))

		if a.Verdict != domain.VerdictReview {
			t.Errorf("expected review, got %s", a.Verdict)
		}
		if !codes(a)[CodeHighFalsePositives] {
			t.Error("expected a false positive warning")
		}
	})

	t.Run("Neutral", func(t *testing.T) {
		a := proc.Assess(twoConditions(), estimate(0.65, 50, -200))

		if a.Verdict != domain.VerdictNeutral {
			t.Errorf("expected neutral, got %s", a.Verdict)
		}
		got := codes(a)
		if !got[CodeLowROI] {
			t.Error("expected a low ROI warning")
		}
		if got[CodeActivate] {
			t.Error("negative net benefit must not recommend activation")
		}
	})

	t.Run("PositiveButNotStrong", func(t *testing.T) {
		a := proc.Assess(twoConditions(), estimate(0.70, 400, 5000))

		if a.Verdict != domain.VerdictRecommend {
			t.Errorf("expected recommend, got %s", a.Verdict)
		}
		if codes(a)[CodeActivate] {
			t.Error("activation needs precision above the strong threshold")
		}
	})

	t.Run("SingleCondition", func(t *testing.T) {
		r := twoConditions()
		r.Conditions = r.Conditions[:1]

		a := proc.Assess(r, estimate(0.70, 400, 5000))

		recs := a.Recommendations
		last := recs[len(recs)-1]
		if last.Code != CodeSingleCondition || last.Severity != SeverityInfo {
			t.Errorf("expected trailing single condition info, got %+v", last)
		}
	})

	t.Run("CustomThresholds", func(t *testing.T) {
		strict := &Processor{Thresholds: domain.AdvisoryThresholds{
			MaxFalsePositiveRisk: 0.10,
			MinROI:               100,
			PositivePrecision:    0.5,
			StrongPrecision:      0.9,
		}}

		a := strict.Assess(twoConditions(), estimate(0.85, 5000, 7.8e6))
		if a.Verdict != domain.VerdictReview {
			t.Errorf("expected review under strict thresholds, got %s", a.Verdict)
		}
	})
}

func TestShouldReview(t *testing.T) {
	review := &domain.ImpactReport{Assessment: domain.Assessment{Verdict: domain.VerdictReview}}
	if !ShouldReview(review) {
		t.Error("expected review")
	}
	ok := &domain.ImpactReport{Assessment: domain.Assessment{Verdict: domain.VerdictRecommend}}
	if ShouldReview(ok) {
		t.Error("recommend should not go to review")
	}
}

func TestMessages(t *testing.T) {
	a := NewProcessor(domain.DefaultAdvisoryThresholds()).Assess(twoConditions(), estimate(0.45, 50, -10))
	msgs := Messages(a)
	if len(msgs) != len(a.Recommendations) {
		t.Errorf("expected %d messages, got %d", len(a.Recommendations), len(msgs))
	}
	if len(Messages(domain.Assessment{})) != 0 {
		t.Error("expected no messages for an empty assessment")
	}
}

func TestNewProcessorDefaults(t *testing.T) {
	if got := NewProcessor(domain.AdvisoryThresholds{}).Thresholds; got != domain.DefaultAdvisoryThresholds() {
		t.Errorf("expected default thresholds, got %+v", got)
	}
	custom := domain.AdvisoryThresholds{MaxFalsePositiveRisk: 0.3, MinROI: 200, PositivePrecision: 0.6, StrongPrecision: 0.8}
	if got := NewProcessor(custom).Thresholds; got != custom {
		t.Errorf("expected custom thresholds, got %+v", got)
	}
}
