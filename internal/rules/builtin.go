package rules

import (
	"time"

	"github.com/opencustomruler/ruler/internal/domain"
)

// SampleRules returns the demonstration rule set: two active rules and one
// in testing. Each call returns fresh values.
func SampleRules() []*domain.Rule {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	return []*domain.Rule{
		{
			ID:          "sample-high-risk-country",
			Name:        "Pays à Haut Risque - Valeur Élevée",
			Description: "Déclarations en provenance de pays à risque avec valeur > 50k€",
			Priority:    1,
			Status:      domain.StatusActive,
			Conditions: []domain.Condition{
				{ID: "c1", Field: domain.FieldCountryOfOrigin, Operator: domain.OpIn, Value: domain.Strings("CN", "AE", "TR"), LogicalOperator: domain.LogicalAnd},
				{ID: "c2", Field: domain.FieldDeclaredValue, Operator: domain.OpGreaterThan, Value: domain.Number(50000)},
			},
			Action: domain.Action{RiskLevel: domain.RiskRed, ScoreAdjustment: 30},
			Metadata: domain.RuleMetadata{
				CreatedBy:      "M. Dupont",
				CreatedAt:      date(2024, time.January, 15),
				ModifiedBy:     "M. Dupont",
				ModifiedAt:     date(2024, time.February, 20),
				TriggeredCount: 847,
				DetectionRate:  0.23,
			},
		},
		{
			ID:          "sample-new-operator",
			Name:        "Opérateur Nouveau Sans Garantie",
			Description: "Opérateurs créés depuis moins de 6 mois sans caution bancaire",
			Priority:    2,
			Status:      domain.StatusActive,
			Conditions: []domain.Condition{
				{ID: "c3", Field: domain.FieldOperatorAgeMonths, Operator: domain.OpLessThan, Value: domain.Number(6), LogicalOperator: domain.LogicalAnd},
				{ID: "c4", Field: domain.FieldBankGuarantee, Operator: domain.OpEquals, Value: domain.String("non"), LogicalOperator: domain.LogicalOr},
				{ID: "c5", Field: domain.FieldIncidentHistory, Operator: domain.OpGreaterThan, Value: domain.Number(0)},
			},
			Action: domain.Action{RiskLevel: domain.RiskYellow, ScoreAdjustment: 15},
			Metadata: domain.RuleMetadata{
				CreatedBy:      "Mme Martin",
				CreatedAt:      date(2024, time.March, 1),
				ModifiedBy:     "Mme Martin",
				ModifiedAt:     date(2024, time.March, 1),
				TriggeredCount: 234,
				DetectionRate:  0.18,
			},
		},
		{
			ID:          "sample-electronics",
			Name:        "Marchandises Sensibles - Électronique",
			Description: "Produits électroniques à risque de contrefaçon",
			Priority:    3,
			Status:      domain.StatusTesting,
			Conditions: []domain.Condition{
				{ID: "c6", Field: domain.FieldHSCode, Operator: domain.OpContains, Value: domain.String("8517"), LogicalOperator: domain.LogicalAnd},
				{ID: "c7", Field: domain.FieldKnownBrand, Operator: domain.OpEquals, Value: domain.String("oui"), LogicalOperator: domain.LogicalAnd},
				{ID: "c8", Field: domain.FieldUnitPrice, Operator: domain.OpLessThan, Value: domain.Number(100)},
			},
			Action: domain.Action{RiskLevel: domain.RiskYellow, ScoreAdjustment: 20},
			Metadata: domain.RuleMetadata{
				CreatedBy:      "M. Bernard",
				CreatedAt:      date(2025, time.January, 5),
				ModifiedBy:     "M. Bernard",
				ModifiedAt:     date(2025, time.January, 5),
				TriggeredCount: 89,
				DetectionRate:  0.31,
			},
		},
	}
}
