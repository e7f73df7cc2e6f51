package domain

// Confidence of an impact estimate, derived from the number of conditions.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ImpactEstimate is the projected operational and financial effect of activating a rule.
// It is a pure function result and is never persisted.
type ImpactEstimate struct {
	Declarations DeclarationImpact `json:"declarations"`
	Revenue      RevenueImpact     `json:"revenue"`
	Offices      OfficeImpact      `json:"offices"`
	Performance  PerformanceImpact `json:"performance"`
	Costs        CostImpact        `json:"costs"`
}

// DeclarationImpact is the projected control volume.
type DeclarationImpact struct {
	Total              int     `json:"total"`
	Controlled         int     `json:"controlled"`
	PercentageIncrease float64 `json:"percentageIncrease"`
}

// RevenueImpact is the projected recovered revenue.
type RevenueImpact struct {
	Expected   float64    `json:"expected"`
	Confidence Confidence `json:"confidence"`
	ROI        float64    `json:"roi"`
}

// OfficeImpact is the projected extra load per customs office.
type OfficeImpact struct {
	MostImpacted        []OfficeLoad `json:"mostImpacted"`
	TotalAdditionalLoad int          `json:"totalAdditionalLoad"`
	LoadSummary         LoadSummary  `json:"loadSummary"`
}

// OfficeLoad is one office's projected load. Offices are sorted by AdditionalLoad, descending.
type OfficeLoad struct {
	Name              string  `json:"name"`
	AdditionalLoad    int     `json:"additionalLoad"`
	CurrentCapacity   float64 `json:"currentCapacity"`
	ProjectedCapacity float64 `json:"projectedCapacity"`
	Overloaded        bool    `json:"overloaded"`
}

// LoadSummary describes the spread of additional load across offices.
type LoadSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// PerformanceImpact is the projected detection quality.
type PerformanceImpact struct {
	EstimatedPrecision   float64 `json:"estimatedPrecision"`
	EstimatedRecall      float64 `json:"estimatedRecall"`
	RiskOfFalsePositives float64 `json:"riskOfFalsePositives"`
}

// CostImpact is the projected cost side.
type CostImpact struct {
	ControlCost float64 `json:"controlCost"`
	StaffHours  float64 `json:"staffHours"`
	NetBenefit  float64 `json:"netBenefit"`
}

// AnyOfficeOverloaded reports whether any office exceeds its overload threshold.
func (e *ImpactEstimate) AnyOfficeOverloaded() bool {
	for _, o := range e.Offices.MostImpacted {
		if o.Overloaded {
			return true
		}
	}
	return false
}

// Verdict is the advisory outcome for a candidate rule.
type Verdict string

const (
	VerdictRecommend Verdict = "recommend"
	VerdictReview    Verdict = "review"
	VerdictNeutral   Verdict = "neutral"
)

// Assessment is the advisory read of an estimate.
type Assessment struct {
	Verdict         Verdict          `json:"verdict"`
	NeedsReview     bool             `json:"needsReview"`
	PositiveImpact  bool             `json:"positiveImpact"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Recommendation is one advisory line.
type Recommendation struct {
	Code     string `json:"code"`
	Severity string `json:"severity"` // "warning", "info", "success"
	Message  string `json:"message"`
}

// ImpactReport bundles a rule's estimate with its assessment.
type ImpactReport struct {
	RuleID      string         `json:"ruleId"`
	Fingerprint string         `json:"fingerprint"`
	Seed        uint64         `json:"seed"`
	Estimate    ImpactEstimate `json:"estimate"`
	Assessment  Assessment     `json:"assessment"`
	Cached      bool           `json:"cached"`
}
