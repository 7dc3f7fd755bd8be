package rules

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []*models.ScreeningRule `yaml:"rules"`
}

// LoadFile reads and validates rules from a YAML file
func LoadFile(path string) ([]*models.ScreeningRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes and validates rules from a YAML document
func Load(r io.Reader) ([]*models.ScreeningRule, error) {
	var doc ruleFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(doc.Rules))
	for i, rule := range doc.Rules {
		if rule == nil {
			return nil, fmt.Errorf("%w: rules entry %d is empty", models.ErrInvalidRule, i)
		}
		if err := Validate(rule); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %s", models.ErrInvalidRule, rule.ID)
		}
		seen[rule.ID] = true
		rule.CreatedAt = now
		rule.UpdatedAt = now
	}
	return doc.Rules, nil
}
