// Package impact projects the operational and financial effect of
// activating a rule against a reference dataset profile.
package impact

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/rules"
)

// floorEpsilon absorbs binary rounding in products like 12400*0.11.
const floorEpsilon = 1e-9

// Estimator runs the heuristic scoring table. It holds no mutable state
// and is safe for concurrent use.
type Estimator struct {
	cal   domain.Calibration
	table []Heuristic
}

// NewEstimator creates an estimator for a calibration.
func NewEstimator(cal domain.Calibration) *Estimator {
	return &Estimator{cal: cal, table: Table(cal)}
}

// Calibration returns the constants in use.
func (e *Estimator) Calibration() domain.Calibration {
	return e.cal
}

// EstimateImpact estimates with the default calibration.
func EstimateImpact(rule *domain.Rule, profile domain.ReferenceProfile, noise NoiseSource) (*domain.ImpactEstimate, error) {
	return NewEstimator(domain.DefaultCalibration()).Estimate(rule, profile, noise)
}

// Estimate projects rule onto profile. The rule is never modified.
// A nil noise source means no noise.
func (e *Estimator) Estimate(rule *domain.Rule, profile domain.ReferenceProfile, noise NoiseSource) (*domain.ImpactEstimate, error) {
	const op = "impact.Estimate"

	if rule == nil {
		return nil, domain.Validationf(op, "rule is required")
	}
	if err := rules.ValidateConditions(rule.Conditions); err != nil {
		return nil, err
	}
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}
	if noise == nil {
		noise = ZeroNoise{}
	}

	run := e.score(rule.Conditions)

	total := profile.TotalDeclarations
	controlled := floorCount(float64(total) * run.ImpactRate)
	previously := floorCount(float64(total) * profile.CurrentlyControlledRate)
	if previously == 0 {
		return nil, domain.Profilef(op, "no declarations are currently controlled (%d x %g floors to 0)",
			total, profile.CurrentlyControlledRate)
	}

	est := &domain.ImpactEstimate{}

	est.Declarations = domain.DeclarationImpact{
		Total:              total,
		Controlled:         controlled,
		PercentageIncrease: (float64(controlled)/float64(previously) - 1) * 100,
	}

	truePositives := float64(controlled) * run.Precision
	expectedRevenue := truePositives * profile.AvgDeclarationValue * profile.AvgRecoveryRate
	controlCost := float64(controlled) * profile.ControlCostPerDeclaration
	netBenefit := expectedRevenue - controlCost

	roi := 0.0
	if controlCost > 0 {
		roi = netBenefit / controlCost * 100
	}

	est.Revenue = domain.RevenueImpact{
		Expected:   expectedRevenue,
		Confidence: e.confidence(len(rule.Conditions)),
		ROI:        roi,
	}

	offices, err := e.distribute(controlled, profile.Offices, noise)
	if err != nil {
		return nil, err
	}
	est.Offices = offices

	est.Performance = domain.PerformanceImpact{
		EstimatedPrecision:   run.Precision,
		EstimatedRecall:      run.Recall,
		RiskOfFalsePositives: 1 - run.Precision,
	}

	est.Costs = domain.CostImpact{
		ControlCost: controlCost,
		StaffHours:  float64(controlled) * e.cal.StaffHoursPerDeclaration,
		NetBenefit:  netBenefit,
	}

	return est, nil
}

// score folds every condition through the table, in condition order, then clamps.
func (e *Estimator) score(conds []domain.Condition) Running {
	run := Running{
		ImpactRate: e.cal.BaseImpactRate,
		Precision:  e.cal.BasePrecision,
		Recall:     e.cal.BaseRecall,
	}
	for _, c := range conds {
		for _, h := range e.table {
			if h.Match(c) {
				h.Apply(c, &run)
			}
		}
	}

	run.ImpactRate = clamp(run.ImpactRate, 0, e.cal.MaxImpactRate)
	run.Precision = clamp(run.Precision, e.cal.MinPrecision, e.cal.MaxPrecision)
	run.Recall = clamp(run.Recall, e.cal.MinRecall, e.cal.MaxRecall)
	return run
}

func (e *Estimator) confidence(conditions int) domain.Confidence {
	switch {
	case conditions >= e.cal.HighConfidenceConditions:
		return domain.ConfidenceHigh
	case conditions >= e.cal.MediumConfidenceConditions:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// distribute spreads the controlled declarations evenly across offices,
// perturbs each share, and sorts offices by load, highest first.
// Ties keep the configured office order.
func (e *Estimator) distribute(controlled int, baselines []domain.OfficeBaseline, noise NoiseSource) (domain.OfficeImpact, error) {
	perOffice := float64(controlled) / float64(len(baselines))

	loads := make([]domain.OfficeLoad, len(baselines))
	samples := make(stats.Float64Data, len(baselines))
	for i, b := range baselines {
		load := floorCount(perOffice + noise.Perturb(e.cal.OfficeNoiseBound))
		if load < 0 {
			load = 0
		}
		projected := b.CurrentCapacity
		if e.cal.OfficeLoadDivisor > 0 {
			projected += float64(load) / e.cal.OfficeLoadDivisor
		}
		loads[i] = domain.OfficeLoad{
			Name:              b.Name,
			AdditionalLoad:    load,
			CurrentCapacity:   b.CurrentCapacity,
			ProjectedCapacity: projected,
			Overloaded:        projected > e.cal.OverloadThreshold,
		}
		samples[i] = float64(load)
	}

	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].AdditionalLoad > loads[j].AdditionalLoad
	})

	summary, err := summarize(samples)
	if err != nil {
		return domain.OfficeImpact{}, fmt.Errorf("summarize office load: %w", err)
	}

	return domain.OfficeImpact{
		MostImpacted:        loads,
		TotalAdditionalLoad: controlled,
		LoadSummary:         summary,
	}, nil
}

func summarize(data stats.Float64Data) (domain.LoadSummary, error) {
	mean, err := stats.Mean(data)
	if err != nil {
		return domain.LoadSummary{}, err
	}
	stdDev, err := stats.StandardDeviation(data)
	if err != nil {
		return domain.LoadSummary{}, err
	}
	minLoad, err := stats.Min(data)
	if err != nil {
		return domain.LoadSummary{}, err
	}
	maxLoad, err := stats.Max(data)
	if err != nil {
		return domain.LoadSummary{}, err
	}
	return domain.LoadSummary{Mean: mean, StdDev: stdDev, Min: minLoad, Max: maxLoad}, nil
}

// ValidateProfile rejects profiles whose arithmetic is undefined or meaningless.
func ValidateProfile(p domain.ReferenceProfile) error {
	const op = "impact.ValidateProfile"

	if p.TotalDeclarations <= 0 {
		return domain.Profilef(op, "totalDeclarations must be positive, got %d", p.TotalDeclarations)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"avgDeclarationValue", p.AvgDeclarationValue},
		{"controlCostPerDeclaration", p.ControlCostPerDeclaration},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return domain.Profilef(op, "%s must be a non-negative number, got %g", f.name, f.v)
		}
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"avgRecoveryRate", p.AvgRecoveryRate},
		{"currentlyControlledRate", p.CurrentlyControlledRate},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return domain.Profilef(op, "%s must be in [0,1], got %g", f.name, f.v)
		}
	}
	if len(p.Offices) == 0 {
		return domain.Profilef(op, "at least one customs office is required")
	}
	for _, o := range p.Offices {
		if math.IsNaN(o.CurrentCapacity) || math.IsInf(o.CurrentCapacity, 0) || o.CurrentCapacity < 0 {
			return domain.Profilef(op, "office %q has an invalid capacity %g", o.Name, o.CurrentCapacity)
		}
	}
	return nil
}

func floorCount(x float64) int {
	return int(math.Floor(x + floorEpsilon))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
