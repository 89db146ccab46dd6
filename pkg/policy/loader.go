package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is the on-disk layout of a rules file.
type RulesFile struct {
	Rules []Policy `yaml:"rules"`
}

// LoadRulesFile reads and normalizes the rules in path. It fails on the
// first malformed rule so that a half-edited file is never partially
// applied.
func LoadRulesFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RulesFileError{Path: path, Index: -1, Cause: err}
	}
	return ParseRules(path, data)
}

// ParseRules parses rules file content. path is only used in errors.
func ParseRules(path string, data []byte) ([]Policy, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &RulesFileError{Path: path, Index: -1, Cause: err}
	}

	rules := make([]Policy, 0, len(file.Rules))
	for i, r := range file.Rules {
		p, err := Normalize(r)
		if err != nil {
			return nil, &RulesFileError{Path: path, Index: i, Cause: err}
		}
		rules = append(rules, p)
	}
	return rules, nil
}

// Apply upserts every rule into store and returns how many were written.
func Apply(ctx context.Context, store Store, rules []Policy) (int, error) {
	for i, r := range rules {
		if err := store.Upsert(ctx, r); err != nil {
			return i, fmt.Errorf("upsert %s: %w", r.Sector, err)
		}
	}
	return len(rules), nil
}

// SeedMissing upserts only the rules whose sector has no stored policy yet,
// leaving operator edits in a persistent store untouched.
func SeedMissing(ctx context.Context, store Store, rules []Policy) (int, error) {
	seeded := 0
	for _, r := range rules {
		_, ok, err := store.Lookup(ctx, r.Sector)
		if err != nil {
			return seeded, fmt.Errorf("lookup %s: %w", r.Sector, err)
		}
		if ok {
			continue
		}
		if err := store.Upsert(ctx, r); err != nil {
			return seeded, fmt.Errorf("seed %s: %w", r.Sector, err)
		}
		seeded++
	}
	return seeded, nil
}
