package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/consensus-engine/internal/model"
)

func businessSchema(t *testing.T) *model.Schema {
	t.Helper()
	s, err := model.SchemaFor(model.AnalysisBusinessPotential)
	require.NoError(t, err)
	return s
}

const validBusiness = `{
	"score": 82,
	"analysis": "Strong local presence with room to grow.",
	"strengths": ["good rating", "established"],
	"opportunities": ["no website", "weak social"],
	"recommendation": "pursue"
}`

func TestParseValid(t *testing.T) {
	t.Parallel()
	rec, inv := Parse(validBusiness, businessSchema(t))
	require.Nil(t, inv)

	score, ok := rec.Get("score")
	require.True(t, ok)
	assert.Equal(t, model.KindNumber, score.Kind)
	assert.InDelta(t, 82, score.Number, 0.001)

	strengths, ok := rec.Get("strengths")
	require.True(t, ok)
	assert.Equal(t, []string{"good rating", "established"}, strengths.List)
}

func TestParseToleratesNoise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"markdown fence", "Here is my analysis:\n```json\n" + validBusiness + "\n```\nHope this helps!"},
		{"fence without language tag", "```\n" + validBusiness + "\n```"},
		{"leading prose", "Sure! " + validBusiness},
		{"trailing prose", validBusiness + "\n\nLet me know if you need more."},
		{"nested braces in strings", `{"score": 50, "analysis": "uses {braces} inside", "strengths": ["a"], "opportunities": ["b"], "recommendation": "watch"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, inv := Parse(tt.raw, businessSchema(t))
			require.Nil(t, inv)
			_, ok := rec.Get("score")
			assert.True(t, ok)
		})
	}
}

func TestParseFailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty", "", "no JSON object"},
		{"no object", "I could not analyze this business.", "no JSON object"},
		{"missing required", `{"score": 80}`, "missing required field"},
		{"score as string", `{"score": "80", "analysis": "x", "strengths": [], "opportunities": [], "recommendation": "y"}`, "not a number"},
		{"score out of range", `{"score": 150, "analysis": "x", "strengths": [], "opportunities": [], "recommendation": "y"}`, "out of range"},
		{"list not a list", `{"score": 80, "analysis": "x", "strengths": "lots", "opportunities": [], "recommendation": "y"}`, "not a list"},
		{"null required field", `{"score": 80, "analysis": null, "strengths": [], "opportunities": [], "recommendation": "y"}`, "missing required field"},
		{"array payload", `[1, 2, 3]`, "no JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, inv := Parse(tt.raw, businessSchema(t))
			require.NotNil(t, inv)
			assert.Contains(t, inv.Reason, tt.reason)
		})
	}
}

func TestFoldCategory(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FoldCategory("  High Priority "), FoldCategory("high priority"))
	assert.NotEqual(t, FoldCategory("high"), FoldCategory("low"))
}
