package model

import (
	"sort"
	"strings"
)

// BusinessRecord is the lead handed in by the enrichment pipeline.
type BusinessRecord struct {
	Name         string            `json:"name"`
	Address      string            `json:"address,omitempty"`
	Rating       float64           `json:"rating,omitempty"`
	Reviews      int               `json:"reviews,omitempty"`
	Website      string            `json:"website,omitempty"`
	BusinessType string            `json:"business_type,omitempty"`
	Competitors  int               `json:"competitors,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// FieldValue is one typed field of a parsed provider record.
type FieldValue struct {
	Kind   FieldKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Text   string    `json:"text,omitempty"`
	List   []string  `json:"list,omitempty"`
}

// NumberValue constructs a numeric field value.
func NumberValue(n float64) FieldValue { return FieldValue{Kind: KindNumber, Number: n} }

// TextValue constructs a prose field value.
func TextValue(s string) FieldValue { return FieldValue{Kind: KindText, Text: s} }

// CategoryValue constructs a categorical field value.
func CategoryValue(s string) FieldValue { return FieldValue{Kind: KindCategory, Text: s} }

// ListValue constructs a list field value.
func ListValue(items []string) FieldValue { return FieldValue{Kind: KindList, List: items} }

// ParsedRecord is a provider response validated against an analysis schema.
type ParsedRecord struct {
	Fields map[string]FieldValue `json:"fields"`
}

// NewParsedRecord returns an empty record ready for field assignment.
func NewParsedRecord() ParsedRecord {
	return ParsedRecord{Fields: make(map[string]FieldValue)}
}

// Get returns the value for key and whether it is present.
func (r ParsedRecord) Get(key string) (FieldValue, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Completeness is the fraction of the schema's required fields that carry a
// non-empty value. Used by confidence-weighted reduction.
func (r ParsedRecord) Completeness(schema *Schema) float64 {
	req := schema.Required()
	if len(req) == 0 {
		return 1
	}
	filled := 0
	for _, f := range req {
		v, ok := r.Fields[f.Key]
		if !ok {
			continue
		}
		switch v.Kind {
		case KindList:
			if len(v.List) > 0 {
				filled++
			}
		case KindNumber:
			filled++
		default:
			if strings.TrimSpace(v.Text) != "" {
				filled++
			}
		}
	}
	return float64(filled) / float64(len(req))
}

// Keys returns the record's field keys sorted for deterministic iteration.
func (r ParsedRecord) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
