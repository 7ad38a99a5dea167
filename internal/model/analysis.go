// Package model defines the core types shared across the consensus engine:
// analysis requests, provider responses, parsed records, and results.
package model

import "github.com/rotisserie/eris"

// AnalysisType identifies which structured analysis to run over a business record.
type AnalysisType string

const (
	// AnalysisBusinessPotential scores a lead's commercial potential 0-100.
	AnalysisBusinessPotential AnalysisType = "business_potential"
	// AnalysisQualitativeSummary produces a short qualitative profile.
	AnalysisQualitativeSummary AnalysisType = "qualitative_summary"
	// AnalysisSalesApproach recommends an outreach strategy.
	AnalysisSalesApproach AnalysisType = "sales_approach"
)

// AnalysisTypes lists every recognized analysis type.
func AnalysisTypes() []AnalysisType {
	return []AnalysisType{
		AnalysisBusinessPotential,
		AnalysisQualitativeSummary,
		AnalysisSalesApproach,
	}
}

// ParseAnalysisType validates a raw tag against the closed enumeration.
func ParseAnalysisType(s string) (AnalysisType, error) {
	switch AnalysisType(s) {
	case AnalysisBusinessPotential, AnalysisQualitativeSummary, AnalysisSalesApproach:
		return AnalysisType(s), nil
	default:
		return "", eris.Errorf("model: unknown analysis type %q", s)
	}
}

// FieldKind is the accepted type of a schema field.
type FieldKind string

const (
	// KindNumber is a bounded numeric score.
	KindNumber FieldKind = "number"
	// KindText is free-form prose.
	KindText FieldKind = "text"
	// KindCategory is a short categorical label compared after case folding.
	KindCategory FieldKind = "category"
	// KindList is a list of short strings.
	KindList FieldKind = "list"
)

// FieldSpec describes one field of an analysis schema.
type FieldSpec struct {
	Key      string
	Kind     FieldKind
	Required bool
	Min      float64 // numeric lower bound (KindNumber only)
	Max      float64 // numeric upper bound (KindNumber only)
}

// Schema is the fixed validation schema for one analysis type.
type Schema struct {
	Type   AnalysisType
	Fields []FieldSpec

	byKey map[string]*FieldSpec
}

// NewSchema builds a schema with indexed field lookup.
func NewSchema(t AnalysisType, fields []FieldSpec) *Schema {
	s := &Schema{Type: t, Fields: fields, byKey: make(map[string]*FieldSpec, len(fields))}
	for i := range s.Fields {
		s.byKey[s.Fields[i].Key] = &s.Fields[i]
	}
	return s
}

// Field returns the spec for key, or nil if the schema has no such field.
func (s *Schema) Field(key string) *FieldSpec {
	return s.byKey[key]
}

// Required returns the required field specs in declaration order.
func (s *Schema) Required() []FieldSpec {
	out := make([]FieldSpec, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// schemas holds the fixed per-type schemas. Keys and ranges mirror the JSON
// structures the prompts ask providers to emit.
var schemas = map[AnalysisType]*Schema{
	AnalysisBusinessPotential: NewSchema(AnalysisBusinessPotential, []FieldSpec{
		{Key: "score", Kind: KindNumber, Required: true, Min: 0, Max: 100},
		{Key: "analysis", Kind: KindText, Required: true},
		{Key: "strengths", Kind: KindList, Required: true},
		{Key: "opportunities", Kind: KindList, Required: true},
		{Key: "recommendation", Kind: KindCategory, Required: true},
	}),
	AnalysisQualitativeSummary: NewSchema(AnalysisQualitativeSummary, []FieldSpec{
		{Key: "summary", Kind: KindText, Required: true},
		{Key: "key_points", Kind: KindList, Required: true},
		{Key: "market_position", Kind: KindCategory, Required: true},
	}),
	AnalysisSalesApproach: NewSchema(AnalysisSalesApproach, []FieldSpec{
		{Key: "approach", Kind: KindText, Required: true},
		{Key: "hook", Kind: KindText, Required: true},
		{Key: "value_proposition", Kind: KindText, Required: true},
		{Key: "objection_handling", Kind: KindList, Required: true},
	}),
}

// SchemaFor returns the fixed schema for the given analysis type.
func SchemaFor(t AnalysisType) (*Schema, error) {
	s, ok := schemas[t]
	if !ok {
		return nil, eris.Errorf("model: no schema for analysis type %q", t)
	}
	return s, nil
}
