package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencustomruler/ruler/internal/domain"
)

// ReadRulesFile reads a list of rules from path: YAML when the extension is
// .yaml or .yml, JSON otherwise.
func ReadRulesFile(path string) ([]*domain.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	decode := DecodeRules
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decode = DecodeRulesYAML
	}
	list, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// DecodeRules reads a JSON array of rules. Missing ids are generated,
// priority 0 becomes 1 and an empty status becomes inactive. Every rule
// is validated.
func DecodeRules(r io.Reader) ([]*domain.Rule, error) {
	var list []*domain.Rule
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, domain.Validationf("rules.DecodeRules", "invalid rules JSON: %v", err)
	}
	return prepare(list)
}

// DecodeRulesYAML reads a YAML sequence of rules. Keys are the JSON field
// names (logicalOperator, riskLevel, ...); defaults and validation are those
// of DecodeRules.
func DecodeRulesYAML(r io.Reader) ([]*domain.Rule, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.Validationf("rules.DecodeRulesYAML", "invalid rules YAML: %v", err)
	}
	if doc == nil {
		return nil, domain.Validationf("rules.DecodeRulesYAML", "rules YAML is empty")
	}
	if _, ok := doc.([]any); !ok {
		return nil, domain.Validationf("rules.DecodeRulesYAML", "rules YAML must be a sequence, got %T", doc)
	}

	// Values keep their YAML types (numbers stay numbers), so the JSON codec
	// of domain.Value applies unchanged.
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, domain.Validationf("rules.DecodeRulesYAML", "invalid rules YAML: %v", err)
	}
	return DecodeRules(bytes.NewReader(data))
}

// prepare fills defaults and validates every rule.
func prepare(list []*domain.Rule) ([]*domain.Rule, error) {
	seen := make(map[string]struct{}, len(list))
	for i, rule := range list {
		if rule == nil {
			return nil, domain.Validationf("rules.DecodeRules", "rule %d is null", i+1)
		}
		if rule.ID == "" {
			rule.ID = newID()
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, domain.Validationf("rules.DecodeRules", "duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if rule.Priority == 0 {
			rule.Priority = 1
		}
		if rule.Status == "" {
			rule.Status = domain.StatusInactive
		}
		for j := range rule.Conditions {
			if rule.Conditions[j].ID == "" {
				rule.Conditions[j].ID = newID()
			}
		}
		if err := ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rule.Name, err)
		}
	}
	return list, nil
}
