package rules

import (
	"fmt"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// compiledSchema is a SchemaMapping with its rule expressions pre-parsed,
// so Apply never re-tokenizes on the hot path.
type compiledSchema struct {
	mapping    SchemaMapping
	rules      map[string]compiledRule
}

type compiledRule struct {
	fields []string
	rule   *Rule
	source string
}

type compiledConditional struct {
	mapping ConditionalMapping
	rule    *Rule
}

// Engine is the Rule Engine (C4): maps a TypedRecord onto a
// StandardizedRecord per a loaded MappingConfig, applying defaults, then
// field_mappings, then conditional_mappings, then running transformation
// rules (spec §4.3).
type Engine struct {
	cfg          MappingConfig
	schemas      map[model.Schema]compiledSchema
	conditionals []compiledConditional
}

// NewEngine compiles every rule in cfg once at construction time, so rule
// text is tokenized once; Apply still parses each rule's tokens per record.
func NewEngine(cfg MappingConfig) (*Engine, error) {
	e := &Engine{cfg: cfg, schemas: make(map[model.Schema]compiledSchema)}
	for schemaName, m := range cfg.SchemaMappings {
		schema, err := model.ParseSchema(schemaName)
		if err != nil {
			return nil, fmt.Errorf("schema_mappings key %q: %w", schemaName, err)
		}
		cs := compiledSchema{mapping: m, rules: make(map[string]compiledRule)}
		for name, tr := range m.Transformations {
			compiled, err := Compile(tr.Rule)
			if err != nil {
				return nil, fmt.Errorf("schema %q transformation %q: %w", schemaName, name, err)
			}
			cs.rules[name] = compiledRule{fields: tr.Fields, rule: compiled, source: tr.Rule}
		}
		e.schemas[schema] = cs
	}
	for i, cm := range cfg.ConditionalMappings {
		compiled, err := Compile(cm.Rule)
		if err != nil {
			return nil, fmt.Errorf("conditional_mappings[%d]: %w", i, err)
		}
		e.conditionals = append(e.conditionals, compiledConditional{mapping: cm, rule: compiled})
	}
	return e, nil
}

// SchemaMapping returns the compiled mapping config for a schema, for
// callers (the Orchestrator) that need its field_mappings to build a
// Validator with matching column dtypes.
func (e *Engine) SchemaMapping(schema model.Schema) (SchemaMapping, bool) {
	cs, ok := e.schemas[schema]
	if !ok {
		return SchemaMapping{}, false
	}
	return cs.mapping, true
}

// GlobalSettings exposes the loaded config's global_settings section.
func (e *Engine) GlobalSettings() GlobalSettings {
	return e.cfg.GlobalSettings
}

// Violation describes a transformation rule that rejected a record
// (spec §4.3: "On violation, if skip_validation_errors is true, emit a
// quarantine entry... else abort the batch").
type Violation struct {
	RuleName string
	Detail   string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("transformation rule %q violated: %s", v.RuleName, v.Detail)
}

// Apply maps one record. On success it returns a StandardizedRecord and a
// nil Violation. On a rule violation it returns a non-nil Violation; the
// caller (Orchestrator, C8) decides whether to quarantine or abort the
// batch based on GlobalSettings.SkipValidationErrors.
func (e *Engine) Apply(rec model.TypedRecord) (model.StandardizedRecord, *Violation, error) {
	cs, ok := e.schemas[rec.Schema]
	if !ok {
		return model.StandardizedRecord{}, nil, fmt.Errorf("no schema_mappings entry for schema %q", rec.Schema)
	}
	descriptor, err := model.Describe(rec.Schema)
	if err != nil {
		return model.StandardizedRecord{}, nil, err
	}

	fields := ToFieldMap(rec)
	cols := make(map[string]interface{}, len(cs.mapping.Defaults)+len(cs.mapping.FieldMappings))

	for dst, v := range cs.mapping.Defaults {
		cols[dst] = v
	}
	for srcAttr, dst := range cs.mapping.FieldMappings {
		v, ok := fields[srcAttr]
		if !ok {
			return model.StandardizedRecord{}, nil, fmt.Errorf("field_mappings references unknown source attribute %q", srcAttr)
		}
		cols[dst] = v
	}
	for _, cc := range e.conditionals {
		scope := scopeFor(fields, nil)
		matched, err := cc.rule.Eval(scope)
		if err != nil {
			return model.StandardizedRecord{}, nil, err
		}
		if matched {
			cols[cc.mapping.Column] = cc.mapping.Value
		}
	}

	for name, cr := range cs.rules {
		if len(cr.fields) == 0 {
			scope := scopeFor(fields, nil)
			ok, err := cr.rule.Eval(scope)
			if err != nil {
				return model.StandardizedRecord{}, nil, err
			}
			if !ok {
				return model.StandardizedRecord{}, &Violation{RuleName: name, Detail: cr.source}, nil
			}
			continue
		}
		for _, fieldName := range cr.fields {
			val, ok := fields[fieldName]
			if !ok {
				return model.StandardizedRecord{}, nil, fmt.Errorf("transformation %q references unknown field %q", name, fieldName)
			}
			scope := scopeFor(fields, &val)
			ok2, err := cr.rule.Eval(scope)
			if err != nil {
				return model.StandardizedRecord{}, nil, err
			}
			if !ok2 {
				return model.StandardizedRecord{}, &Violation{RuleName: name, Detail: fmt.Sprintf("%s (field %s=%v)", cr.source, fieldName, val)}, nil
			}
		}
	}

	return model.StandardizedRecord{Schema: descriptor.TargetTable, Cols: cols}, nil, nil
}

// scopeFor builds the rule evaluation scope: every source field plus,
// for per-field rules, the bare identifier "value" bound to the field
// currently under test.
func scopeFor(fields map[string]interface{}, value *interface{}) Scope {
	scope := make(Scope, len(fields)+1)
	for k, v := range fields {
		scope[k] = v
	}
	if value != nil {
		scope["value"] = *value
	}
	return scope
}
