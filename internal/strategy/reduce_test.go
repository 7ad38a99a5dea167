package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/weights"
)

func businessSchema(t *testing.T) *model.Schema {
	t.Helper()
	s, err := model.SchemaFor(model.AnalysisBusinessPotential)
	require.NoError(t, err)
	return s
}

func rated(provider string, score float64, recommendation string) Rated {
	rec := model.NewParsedRecord()
	rec.Fields["score"] = model.NumberValue(score)
	rec.Fields["analysis"] = model.TextValue("analysis from " + provider)
	rec.Fields["strengths"] = model.ListValue([]string{"good rating"})
	rec.Fields["opportunities"] = model.ListValue([]string{"no website"})
	rec.Fields["recommendation"] = model.CategoryValue(recommendation)
	return Rated{Provider: provider, Record: rec}
}

func input(t *testing.T, recs ...Rated) Input {
	t.Helper()
	return Input{
		Schema:      businessSchema(t),
		Records:     recs,
		Weights:     weights.NewTracker(0.2).Snapshot(),
		Threshold:   0.6,
		BucketWidth: 10,
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("coin_flip")
	assert.Error(t, err)
}

func TestReduceNoRecords(t *testing.T) {
	t.Parallel()
	_, err := Reduce(MajorityVote, input(t))
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestWeightedAverageScenarioA(t *testing.T) {
	t.Parallel()
	// Three providers at 80/82/79: decile buckets agree, weighted average
	// lands near 80.3 with full agreement.
	in := input(t,
		rated("anthropic", 80, "pursue"),
		rated("openai", 82, "pursue"),
		rated("perplexity", 79, "pursue"),
	)

	out, err := Reduce(WeightedAverage, in)
	require.NoError(t, err)

	score, ok := out.Record.Get("score")
	require.True(t, ok)
	assert.InDelta(t, 80.33, score.Number, 0.05)
	assert.InDelta(t, 1.0, out.AgreementScore, 0.001)
}

func TestMajorityVoteBucketMidpoint(t *testing.T) {
	t.Parallel()
	in := input(t,
		rated("anthropic", 80, "pursue"),
		rated("openai", 82, "pursue"),
		rated("perplexity", 79, "pursue"),
	)

	out, err := Reduce(MajorityVote, in)
	require.NoError(t, err)

	score, ok := out.Record.Get("score")
	require.True(t, ok)
	assert.InDelta(t, 80, score.Number, 0.001) // bucket 8 midpoint

	rec, ok := out.Record.Get("recommendation")
	require.True(t, ok)
	assert.Equal(t, "pursue", rec.Text)
}

func TestMajorityVoteCategoricalTieLexicographic(t *testing.T) {
	t.Parallel()
	in := input(t,
		rated("anthropic", 80, "watch"),
		rated("openai", 80, "pursue"),
	)

	out, err := Reduce(MajorityVote, in)
	require.NoError(t, err)

	rec, ok := out.Record.Get("recommendation")
	require.True(t, ok)
	assert.Equal(t, "pursue", rec.Text) // "pursue" < "watch"
}

func TestWeightedAverageFavorsHeavierProvider(t *testing.T) {
	t.Parallel()

	tr := weights.NewTracker(0.5)
	tr.Apply(map[string]bool{"anthropic": true, "openai": false}) // 1.0 vs 0.5

	in := input(t, rated("anthropic", 90, "pursue"), rated("openai", 60, "watch"))
	in.Weights = tr.Snapshot()

	out, err := Reduce(WeightedAverage, in)
	require.NoError(t, err)

	score, ok := out.Record.Get("score")
	require.True(t, ok)
	// (1.0*90 + 0.5*60) / 1.5 = 80
	assert.InDelta(t, 80, score.Number, 0.001)

	rec, ok := out.Record.Get("recommendation")
	require.True(t, ok)
	assert.Equal(t, "pursue", rec.Text) // weighted plurality
}

func TestUnanimous(t *testing.T) {
	t.Parallel()

	t.Run("succeeds within tolerance", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 80, "pursue"), rated("b", 82, "pursue"))
		out, err := Reduce(Unanimous, in)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, out.AgreementScore, 0.001)
	})

	t.Run("fails on numeric split", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 80, "pursue"), rated("b", 45, "pursue"))
		_, err := Reduce(Unanimous, in)
		assert.ErrorIs(t, err, ErrNoConsensus)
	})

	t.Run("fails on category split", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 80, "pursue"), rated("b", 82, "avoid"))
		_, err := Reduce(Unanimous, in)
		assert.ErrorIs(t, err, ErrNoConsensus)
	})
}

func TestThresholdBased(t *testing.T) {
	t.Parallel()

	t.Run("meets threshold", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 80, "pursue"), rated("b", 82, "pursue"))
		out, err := Reduce(ThresholdBased, in)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.AgreementScore, 0.6)
	})

	t.Run("complete disagreement escalates", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 20, "avoid"), rated("b", 95, "pursue"))
		_, err := Reduce(ThresholdBased, in)
		assert.ErrorIs(t, err, ErrNoConsensus)
	})
}

func TestKappaWeighted(t *testing.T) {
	t.Parallel()

	t.Run("two records degrade to weighted average", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 80, "pursue"), rated("b", 90, "pursue"))
		kw, err := Reduce(KappaWeighted, in)
		require.NoError(t, err)
		wa, err := Reduce(WeightedAverage, in)
		require.NoError(t, err)
		assert.Equal(t, wa.Record, kw.Record)
	})

	t.Run("three records reduce", func(t *testing.T) {
		t.Parallel()
		in := input(t,
			rated("a", 80, "pursue"),
			rated("b", 82, "pursue"),
			rated("c", 30, "avoid"),
		)
		out, err := Reduce(KappaWeighted, in)
		require.NoError(t, err)
		score, ok := out.Record.Get("score")
		require.True(t, ok)
		assert.Greater(t, score.Number, 30.0)
		assert.Less(t, score.Number, 82.0)
	})
}

func TestConfidenceWeightedLeansTowardMajority(t *testing.T) {
	t.Parallel()
	in := input(t,
		rated("a", 80, "pursue"),
		rated("b", 80, "pursue"),
		rated("c", 20, "avoid"),
	)

	out, err := Reduce(ConfidenceWeighted, in)
	require.NoError(t, err)

	score, ok := out.Record.Get("score")
	require.True(t, ok)
	// Plain mean is 60; down-weighting the dissenter pulls the score up.
	assert.Greater(t, score.Number, 60.0)
}

func TestFallbackCascade(t *testing.T) {
	t.Parallel()

	t.Run("stops at first success", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 80, "pursue"), rated("b", 82, "pursue"))
		in.Cascade = []Kind{Unanimous, MajorityVote, BestSingleResponse}
		out, err := Reduce(FallbackCascade, in)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, out.AgreementScore, 0.001)
	})

	t.Run("escalates past failures to terminal step", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 20, "avoid"), rated("b", 95, "pursue"))
		in.Cascade = []Kind{Unanimous, ThresholdBased, BestSingleResponse}
		out, err := Reduce(FallbackCascade, in)
		require.NoError(t, err)

		score, ok := out.Record.Get("score")
		require.True(t, ok)
		// Best single hands back one provider's record untouched.
		assert.Contains(t, []float64{20, 95}, score.Number)
	})

	t.Run("exhaustion surfaces no consensus", func(t *testing.T) {
		t.Parallel()
		in := input(t, rated("a", 20, "avoid"), rated("b", 95, "pursue"))
		in.Cascade = []Kind{Unanimous, ThresholdBased}
		_, err := Reduce(FallbackCascade, in)
		assert.ErrorIs(t, err, ErrNoConsensus)
	})
}

func TestEnsembleVoting(t *testing.T) {
	t.Parallel()
	in := input(t,
		rated("a", 80, "pursue"),
		rated("b", 82, "pursue"),
		rated("c", 79, "pursue"),
	)

	out, err := Reduce(EnsembleVoting, in)
	require.NoError(t, err)

	score, ok := out.Record.Get("score")
	require.True(t, ok)
	assert.InDelta(t, 80.33, score.Number, 0.5) // median of near-identical outputs

	rec, ok := out.Record.Get("recommendation")
	require.True(t, ok)
	assert.Equal(t, "pursue", rec.Text)
}

func TestBestSingleResponsePicksHeaviest(t *testing.T) {
	t.Parallel()

	tr := weights.NewTracker(0.5)
	tr.Apply(map[string]bool{"anthropic": false, "openai": true}) // 0.5 vs 1.0

	in := input(t, rated("anthropic", 20, "avoid"), rated("openai", 95, "pursue"))
	in.Weights = tr.Snapshot()

	out, err := Reduce(BestSingleResponse, in)
	require.NoError(t, err)

	score, ok := out.Record.Get("score")
	require.True(t, ok)
	assert.InDelta(t, 95, score.Number, 0.001)
	assert.Less(t, out.Confidence, 1.0)
}

func TestReduceDeterministicUnderReordering(t *testing.T) {
	t.Parallel()

	a := rated("anthropic", 80, "pursue")
	b := rated("openai", 55, "watch")
	c := rated("perplexity", 60, "watch")

	for _, kind := range []Kind{MajorityVote, WeightedAverage, ConfidenceWeighted, EnsembleVoting} {
		out1, err1 := Reduce(kind, input(t, a, b, c))
		out2, err2 := Reduce(kind, input(t, c, a, b))
		require.NoError(t, err1, "strategy %s", kind)
		require.NoError(t, err2, "strategy %s", kind)
		assert.Equal(t, out1, out2, "strategy %s must ignore arrival order", kind)
	}
}
