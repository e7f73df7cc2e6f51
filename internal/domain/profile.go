package domain

// ReferenceProfile is the reference dataset the estimator projects against.
// Values are configuration, never computed.
type ReferenceProfile struct {
	TotalDeclarations         int              `json:"totalDeclarations" yaml:"total_declarations"`
	AvgDeclarationValue       float64          `json:"avgDeclarationValue" yaml:"avg_declaration_value"`
	ControlCostPerDeclaration float64          `json:"controlCostPerDeclaration" yaml:"control_cost_per_declaration"`
	AvgRecoveryRate           float64          `json:"avgRecoveryRate" yaml:"avg_recovery_rate"`
	CurrentlyControlledRate   float64          `json:"currentlyControlledRate" yaml:"currently_controlled_rate"`
	Offices                   []OfficeBaseline `json:"offices" yaml:"offices"`
}

// OfficeBaseline is a customs office and its current utilisation ratio.
type OfficeBaseline struct {
	Name            string  `json:"name" yaml:"name"`
	CurrentCapacity float64 `json:"currentCapacity" yaml:"current_capacity"`
}

// DefaultProfile returns the reference profile the dashboard was calibrated on.
func DefaultProfile() ReferenceProfile {
	return ReferenceProfile{
		TotalDeclarations:         12400,
		AvgDeclarationValue:       15000,
		ControlCostPerDeclaration: 45,
		AvgRecoveryRate:           0.18,
		CurrentlyControlledRate:   0.28,
		Offices: []OfficeBaseline{
			{Name: "Roissy CDG", CurrentCapacity: 0.93},
			{Name: "Marseille-Fos", CurrentCapacity: 1.07},
			{Name: "Le Havre", CurrentCapacity: 0.80},
			{Name: "Lyon", CurrentCapacity: 0.95},
		},
	}
}

// Clone returns a deep copy.
func (p ReferenceProfile) Clone() ReferenceProfile {
	out := p
	out.Offices = make([]OfficeBaseline, len(p.Offices))
	copy(out.Offices, p.Offices)
	return out
}

// Calibration holds the heuristic constants of the impact estimator.
// Defaults reproduce the original dashboard; a YAML file can override any of them.
type Calibration struct {
	BaseImpactRate float64 `json:"baseImpactRate" yaml:"base_impact_rate"`
	BasePrecision  float64 `json:"basePrecision" yaml:"base_precision"`
	BaseRecall     float64 `json:"baseRecall" yaml:"base_recall"`

	MaxImpactRate float64 `json:"maxImpactRate" yaml:"max_impact_rate"`
	MinPrecision  float64 `json:"minPrecision" yaml:"min_precision"`
	MaxPrecision  float64 `json:"maxPrecision" yaml:"max_precision"`
	MinRecall     float64 `json:"minRecall" yaml:"min_recall"`
	MaxRecall     float64 `json:"maxRecall" yaml:"max_recall"`

	Adjustments Adjustments `json:"adjustments" yaml:"adjustments"`

	HighConfidenceConditions   int `json:"highConfidenceConditions" yaml:"high_confidence_conditions"`
	MediumConfidenceConditions int `json:"mediumConfidenceConditions" yaml:"medium_confidence_conditions"`

	StaffHoursPerDeclaration float64 `json:"staffHoursPerDeclaration" yaml:"staff_hours_per_declaration"`

	// Office load distribution.
	OfficeNoiseBound  float64 `json:"officeNoiseBound" yaml:"office_noise_bound"`
	OfficeLoadDivisor float64 `json:"officeLoadDivisor" yaml:"office_load_divisor"`
	OverloadThreshold float64 `json:"overloadThreshold" yaml:"overload_threshold"`
}

// Adjustments are the per-field additive deltas.
type Adjustments struct {
	CountryOfOrigin Adjustment `json:"countryOfOrigin" yaml:"country_of_origin"` // impact is per listed country
	HighValue       Adjustment `json:"highValue" yaml:"high_value"`              // greater_than above threshold
	LowValue        Adjustment `json:"lowValue" yaml:"low_value"`                // less_than below threshold
	OperatorAge     Adjustment `json:"operatorAge" yaml:"operator_age"`
	Weight          Adjustment `json:"weight" yaml:"weight"`
	HSCode          Adjustment `json:"hsCode" yaml:"hs_code"`
}

// Adjustment is an additive delta on the three running estimates.
type Adjustment struct {
	Impact    float64 `json:"impact" yaml:"impact"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// DefaultCalibration returns the constants used by the original estimator.
func DefaultCalibration() Calibration {
	return Calibration{
		BaseImpactRate: 0.05,
		BasePrecision:  0.65,
		BaseRecall:     0.50,
		MaxImpactRate:  0.45,
		MinPrecision:   0.15,
		MaxPrecision:   0.95,
		MinRecall:      0.20,
		MaxRecall:      0.90,
		Adjustments: Adjustments{
			CountryOfOrigin: Adjustment{Impact: 0.08, Precision: 0.05},
			HighValue:       Adjustment{Impact: 0.15, Precision: 0.15, Recall: -0.10, Threshold: 20000},
			LowValue:        Adjustment{Impact: 0.25, Precision: -0.10, Recall: 0.15, Threshold: 5000},
			OperatorAge:     Adjustment{Impact: 0.12, Precision: 0.08},
			Weight:          Adjustment{Impact: 0.06},
			HSCode:          Adjustment{Impact: 0.10, Precision: 0.10},
		},
		HighConfidenceConditions:   3,
		MediumConfidenceConditions: 2,
		StaffHoursPerDeclaration:   0.75, // 45 minutes
		OfficeNoiseBound:           20,
		OfficeLoadDivisor:          500,
		OverloadThreshold:          1.15,
	}
}

// AdvisoryThresholds drive the review/recommend verdict on an estimate.
type AdvisoryThresholds struct {
	MaxFalsePositiveRisk float64 `json:"maxFalsePositiveRisk" yaml:"max_false_positive_risk"`
	MinROI               float64 `json:"minRoi" yaml:"min_roi"`
	PositivePrecision    float64 `json:"positivePrecision" yaml:"positive_precision"`
	StrongPrecision      float64 `json:"strongPrecision" yaml:"strong_precision"`
}

// DefaultAdvisoryThresholds mirrors the recommendation panel of the dashboard.
func DefaultAdvisoryThresholds() AdvisoryThresholds {
	return AdvisoryThresholds{
		MaxFalsePositiveRisk: 0.40,
		MinROI:               100,
		PositivePrecision:    0.50,
		StrongPrecision:      0.75,
	}
}
