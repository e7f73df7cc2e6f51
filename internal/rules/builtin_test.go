package rules

import (
	"context"
	"testing"

	"github.com/opencustomruler/ruler/internal/domain"
)

func TestSampleRules(t *testing.T) {
	samples := SampleRules()
	if len(samples) != 3 {
		t.Fatalf("expected 3 sample rules, got %d", len(samples))
	}

	ids := make(map[string]bool)
	for _, r := range samples {
		if err := ValidateRule(r); err != nil {
			t.Errorf("%s: %v", r.Name, err)
		}
		if ids[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		ids[r.ID] = true
	}

	// Callers get their own copies.
	samples[0].Name = "changed"
	if SampleRules()[0].Name == "changed" {
		t.Error("SampleRules must return fresh values")
	}
}

func TestSampleRulesSweep(t *testing.T) {
	ctx := context.Background()
	cat := NewCatalog(nil)
	if err := cat.Load(ctx, SampleRules()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	active, err := cat.List(ctx, domain.RuleFilter{Status: domain.StatusActive})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active sample rules, got %d", len(active))
	}

	engine, err := NewEngine(2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	// (age < 6 AND guarantee = non) OR incidents > 0 folds to true on incidents alone.
	decl := &domain.Declaration{ID: "DEC-TR", Attributes: map[string]any{
		"pays_origine":              "TR",
		"valeur_declaree":           60000.0,
		"operateur_anciennete_mois": 3.0,
		"garantie_bancaire":         "oui",
		"historique_incidents":      1.0,
	}}

	res, err := engine.Sweep(ctx, active, decl)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected both active rules to fire, got %d", len(res.Matches))
	}
	if res.DecidingRule != "sample-high-risk-country" {
		t.Errorf("expected the priority-1 rule to decide, got %s", res.DecidingRule)
	}
	if res.Decision == nil || res.Decision.RiskLevel != domain.RiskRed {
		t.Errorf("unexpected decision %+v", res.Decision)
	}
}
