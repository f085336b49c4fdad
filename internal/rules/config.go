// Package rules implements the Rule Engine (C4): a YAML-driven field
// mapper plus a declarative, sandboxed validation-rule evaluator, modeled
// on the teacher's layered YAML-config-then-Validate() discipline
// (internal/config/providers.go, internal/scheduler/scheduler.go).
package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransformRule is one named rule within a schema mapping (spec §4.3).
// Fields lists the source attributes the rule applies to (per-field form);
// an empty Fields means the rule is evaluated once with the full record in
// scope (global form).
type TransformRule struct {
	Fields []string `yaml:"fields"`
	Rule   string   `yaml:"rule"`
}

// SchemaMapping is one `schema_mappings.<schema>` entry.
type SchemaMapping struct {
	SourceModel     string                   `yaml:"source_model"`
	TargetSchema    string                   `yaml:"target_schema"`
	FieldMappings   map[string]string        `yaml:"field_mappings"`
	Transformations map[string]TransformRule `yaml:"transformations"`
	Defaults        map[string]interface{}   `yaml:"defaults"`
}

// GlobalSettings is the `global_settings` document section.
type GlobalSettings struct {
	TimezoneNormalization string `yaml:"timezone_normalization"`
	PricePrecision        int    `yaml:"price_precision"`
	SkipValidationErrors  bool   `yaml:"skip_validation_errors"`
}

// ConditionalMapping is applied after field_mappings, keyed by target
// column, letting a rule pick a value conditionally (spec §4.3: "Apply
// defaults first, then field_mappings, then conditional_mappings").
type ConditionalMapping struct {
	Fields []string `yaml:"fields"`
	Rule   string   `yaml:"rule"`
	Column string   `yaml:"column"`
	Value  interface{} `yaml:"value"`
}

// MappingConfig is the full YAML document for one vendor (spec §4.3).
type MappingConfig struct {
	SchemaMappings      map[string]SchemaMapping `yaml:"schema_mappings"`
	ConditionalMappings []ConditionalMapping     `yaml:"conditional_mappings"`
	GlobalSettings      GlobalSettings           `yaml:"global_settings"`
}

// LoadMappingConfig reads and validates a vendor mapping YAML file.
// Missing destination columns are rejected here — a configuration error
// at load time, never at run time (spec §4.3).
func LoadMappingConfig(path string, knownTargetColumns map[string]map[string]bool) (MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MappingConfig{}, fmt.Errorf("failed to read rule mapping config: %w", err)
	}
	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return MappingConfig{}, fmt.Errorf("failed to parse rule mapping config: %w", err)
	}
	if err := cfg.Validate(knownTargetColumns); err != nil {
		return MappingConfig{}, fmt.Errorf("invalid rule mapping config: %w", err)
	}
	return cfg, nil
}

// Validate checks structural consistency: every field_mappings/defaults
// destination column must be a known column for the schema's target
// table, if a column allowlist was supplied.
func (c MappingConfig) Validate(knownTargetColumns map[string]map[string]bool) error {
	if len(c.SchemaMappings) == 0 {
		return fmt.Errorf("schema_mappings must not be empty")
	}
	for schema, m := range c.SchemaMappings {
		if m.TargetSchema == "" {
			return fmt.Errorf("schema %q: target_schema is required", schema)
		}
		allowed := knownTargetColumns[m.TargetSchema]
		if allowed == nil {
			continue // no allowlist supplied for this target, skip check
		}
		for _, dst := range m.FieldMappings {
			if !allowed[dst] {
				return fmt.Errorf("schema %q: field_mappings targets unknown column %q on table %q", schema, dst, m.TargetSchema)
			}
		}
		for dst := range m.Defaults {
			if !allowed[dst] {
				return fmt.Errorf("schema %q: defaults targets unknown column %q on table %q", schema, dst, m.TargetSchema)
			}
		}
	}
	return nil
}
