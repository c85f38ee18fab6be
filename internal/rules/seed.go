package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"finances/internal/core"
)

// Seed is one rule from a seed file. Seeds are copied into every new book in
// file order, which becomes their match order.
type Seed struct {
	Keyword     string `yaml:"keyword"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
}

// SeedFile is the top-level YAML structure.
type SeedFile struct {
	Rules []Seed `yaml:"rules"`
}

// ParseSeeds decodes and validates a YAML seed document.
func ParseSeeds(data []byte) ([]Seed, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rule seeds: %w", err)
	}
	for i, s := range f.Rules {
		r := s.Rule("")
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule seed %d (%q): %w", i, s.Keyword, err)
		}
	}
	return f.Rules, nil
}

// LoadSeeds reads a seed file. An empty path yields no seeds.
func LoadSeeds(path string) ([]Seed, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule seeds: %w", err)
	}
	seeds, err := ParseSeeds(data)
	if err != nil {
		return nil, fmt.Errorf("load rule seeds from %q: %w", path, err)
	}
	return seeds, nil
}

// Rule converts the seed into a CategoryRule owned by bookID.
func (s Seed) Rule(bookID string) core.CategoryRule {
	return core.CategoryRule{
		AccountBookID: bookID,
		Keyword:       strings.TrimSpace(s.Keyword),
		Category:      strings.TrimSpace(s.Category),
		Subcategory:   strings.TrimSpace(s.Subcategory),
	}
}
