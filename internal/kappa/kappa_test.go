package kappa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/consensus-engine/internal/model"
)

func record(score float64, recommendation string) model.ParsedRecord {
	rec := model.NewParsedRecord()
	rec.Fields["score"] = model.NumberValue(score)
	rec.Fields["analysis"] = model.TextValue("analysis text")
	rec.Fields["strengths"] = model.ListValue([]string{"a"})
	rec.Fields["opportunities"] = model.ListValue([]string{"b"})
	rec.Fields["recommendation"] = model.CategoryValue(recommendation)
	return rec
}

func businessSchema(t *testing.T) *model.Schema {
	t.Helper()
	s, err := model.SchemaFor(model.AnalysisBusinessPotential)
	require.NoError(t, err)
	return s
}

func TestBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value float64
		width float64
		want  int
	}{
		{"79 rounds up to decile 8", 79, 10, 8},
		{"80 exact", 80, 10, 8},
		{"82 rounds down to decile 8", 82, 10, 8},
		{"20 vs 95 split", 20, 10, 2},
		{"95 top decile", 95, 10, 10},
		{"zero width falls back to decile", 41, 0, 4},
		{"width 5", 42, 5, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Bucket(tt.value, tt.width))
		})
	}
}

func TestBucketMidpoint(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 80, BucketMidpoint(8, 10), 0.001)
	assert.InDelta(t, 40, BucketMidpoint(8, 5), 0.001)
}

func TestCohen(t *testing.T) {
	t.Parallel()

	t.Run("perfect agreement", func(t *testing.T) {
		t.Parallel()
		k, po, _ := Cohen([]string{"a", "b", "a"}, []string{"a", "b", "a"})
		assert.InDelta(t, 1, k, 0.001)
		assert.InDelta(t, 1, po, 0.001)
	})

	t.Run("chance-level agreement", func(t *testing.T) {
		t.Parallel()
		k, po, pe := Cohen([]string{"a", "b", "a", "b"}, []string{"a", "a", "b", "b"})
		assert.InDelta(t, 0, k, 0.001)
		assert.InDelta(t, 0.5, po, 0.001)
		assert.InDelta(t, 0.5, pe, 0.001)
	})

	t.Run("degenerate single category", func(t *testing.T) {
		t.Parallel()
		k, _, pe := Cohen([]string{"a", "a"}, []string{"a", "a"})
		assert.InDelta(t, 1, k, 0.001)
		assert.InDelta(t, 1, pe, 0.001)
	})
}

func TestFleiss(t *testing.T) {
	t.Parallel()

	t.Run("hand-computed value", func(t *testing.T) {
		t.Parallel()
		matrix := [][]string{
			{"a", "a", "b"},
			{"a", "a", "a"},
		}
		k, po, pe := Fleiss(matrix)
		assert.InDelta(t, -0.2, k, 0.001)
		assert.InDelta(t, 2.0/3.0, po, 0.001)
		assert.InDelta(t, 26.0/36.0, pe, 0.001)
	})

	t.Run("single category is perfect", func(t *testing.T) {
		t.Parallel()
		k, _, _ := Fleiss([][]string{{"a", "a", "a"}})
		assert.InDelta(t, 1, k, 0.001)
	})
}

func TestComputeInsufficientData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []model.ParsedRecord
	}{
		{"no records", nil},
		{"one record", []model.ParsedRecord{record(80, "pursue")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stats := Compute(tt.records, businessSchema(t), 10)
			assert.True(t, stats.Insufficient)
			assert.Equal(t, InterpretationInsufficient, stats.Interpretation)
			// Never coerced to 0 or 1 as a real value: the flag is the signal.
			assert.Zero(t, stats.Value)
		})
	}
}

func TestComputeTwoRatersUsesCohen(t *testing.T) {
	t.Parallel()
	recs := []model.ParsedRecord{record(80, "pursue"), record(82, "pursue")}
	stats := Compute(recs, businessSchema(t), 10)

	assert.Equal(t, model.KappaCohen, stats.Kind)
	assert.False(t, stats.Insufficient)
	assert.InDelta(t, 1, stats.Value, 0.001)
	assert.Equal(t, "almost perfect", stats.Interpretation)
}

func TestComputeThreeRatersUsesFleiss(t *testing.T) {
	t.Parallel()
	recs := []model.ParsedRecord{
		record(80, "pursue"),
		record(82, "pursue"),
		record(79, "pursue"),
	}
	stats := Compute(recs, businessSchema(t), 10)

	assert.Equal(t, model.KappaFleiss, stats.Kind)
	assert.InDelta(t, 1, stats.Value, 0.001)
	assert.Equal(t, "almost perfect", stats.Interpretation)
	assert.Equal(t, 3, stats.SampleSize)
	assert.LessOrEqual(t, stats.CIUpper, 1.0)
}

func TestComputeDisagreement(t *testing.T) {
	t.Parallel()
	recs := []model.ParsedRecord{record(20, "avoid"), record(95, "pursue")}
	stats := Compute(recs, businessSchema(t), 10)

	assert.Equal(t, model.KappaCohen, stats.Kind)
	assert.Less(t, stats.Value, 0.2)
	assert.InDelta(t, 0, stats.ObservedAgreement, 0.001)
}

func TestInterpretBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value float64
		want  string
	}{
		{-0.1, "poor"},
		{0.1, "slight"},
		{0.3, "fair"},
		{0.5, "moderate"},
		{0.7, "substantial"},
		{0.85, "almost perfect"},
		{1.0, "almost perfect"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Interpret(tt.value), "kappa %v", tt.value)
	}
}

func TestAgreement(t *testing.T) {
	t.Parallel()

	t.Run("identical after bucketing", func(t *testing.T) {
		t.Parallel()
		recs := []model.ParsedRecord{
			record(80, "pursue"),
			record(82, "pursue"),
			record(79, "pursue"),
		}
		assert.InDelta(t, 1.0, Agreement(recs, businessSchema(t), 10), 0.001)
	})

	t.Run("complete disagreement", func(t *testing.T) {
		t.Parallel()
		recs := []model.ParsedRecord{record(20, "avoid"), record(95, "pursue")}
		assert.InDelta(t, 0, Agreement(recs, businessSchema(t), 10), 0.001)
	})

	t.Run("order independent", func(t *testing.T) {
		t.Parallel()
		a := []model.ParsedRecord{record(20, "avoid"), record(55, "watch"), record(60, "watch")}
		b := []model.ParsedRecord{record(60, "watch"), record(20, "avoid"), record(55, "watch")}
		assert.InDelta(t, Agreement(a, businessSchema(t), 10), Agreement(b, businessSchema(t), 10), 0.0001)
	})
}
