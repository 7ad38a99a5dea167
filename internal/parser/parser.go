// Package parser turns raw provider text into schema-validated records.
// Parsing tolerates incidental formatting noise around the JSON payload but
// fails closed: a missing required field or type mismatch rejects the whole
// response rather than guessing at intent.
package parser

import (
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"

	"github.com/sells-group/consensus-engine/internal/model"
)

// Invalid describes a rejected response. Rejected responses are excluded from
// statistics but retained on the round for audit.
type Invalid struct {
	Reason string
}

var folder = cases.Fold()

// FoldCategory canonicalizes a category label for comparison: trimmed and
// case-folded so "High" and "high" agree.
func FoldCategory(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Parse extracts and validates the JSON object embedded in raw provider text.
// Returns the parsed record, or an Invalid describing why the response was
// rejected. No errors cross this boundary.
func Parse(raw string, schema *model.Schema) (model.ParsedRecord, *Invalid) {
	payload, ok := extractObject(raw)
	if !ok {
		return model.ParsedRecord{}, &Invalid{Reason: "no JSON object found in response"}
	}

	doc := gjson.Parse(payload)
	if !doc.IsObject() {
		return model.ParsedRecord{}, &Invalid{Reason: "response payload is not a JSON object"}
	}

	rec := model.NewParsedRecord()
	for _, spec := range schema.Fields {
		val := doc.Get(spec.Key)
		if !val.Exists() || val.Type == gjson.Null {
			if spec.Required {
				return model.ParsedRecord{}, &Invalid{Reason: "missing required field " + spec.Key}
			}
			continue
		}

		fv, inv := convert(val, spec)
		if inv != nil {
			return model.ParsedRecord{}, inv
		}
		rec.Fields[spec.Key] = fv
	}

	return rec, nil
}

func convert(val gjson.Result, spec model.FieldSpec) (model.FieldValue, *Invalid) {
	switch spec.Kind {
	case model.KindNumber:
		if val.Type != gjson.Number {
			return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " is not a number"}
		}
		n := val.Float()
		if n < spec.Min || n > spec.Max {
			return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " out of range"}
		}
		return model.NumberValue(n), nil

	case model.KindText:
		if val.Type != gjson.String {
			return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " is not a string"}
		}
		return model.TextValue(val.String()), nil

	case model.KindCategory:
		if val.Type != gjson.String {
			return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " is not a string"}
		}
		return model.CategoryValue(strings.TrimSpace(val.String())), nil

	case model.KindList:
		if !val.IsArray() {
			return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " is not a list"}
		}
		var items []string
		bad := false
		val.ForEach(func(_, item gjson.Result) bool {
			if item.IsObject() || item.IsArray() {
				bad = true
				return false
			}
			s := strings.TrimSpace(item.String())
			if s != "" {
				items = append(items, s)
			}
			return true
		})
		if bad {
			return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " has non-scalar items"}
		}
		return model.ListValue(items), nil
	}

	return model.FieldValue{}, &Invalid{Reason: "field " + spec.Key + " has unknown kind"}
}

// extractObject locates the JSON object inside raw text, tolerating markdown
// code fences and surrounding prose.
func extractObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	// Strip a markdown code fence if the payload is wrapped in one.
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// Skip a language tag like ```json.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	// Walk to the matching close brace, respecting strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
