// Package kappa computes chance-corrected inter-rater agreement over valid
// provider records: Cohen's kappa for exactly two raters, Fleiss' kappa for
// three or more. Numeric fields are discretized into buckets before
// comparison; categorical labels are compared after case folding.
package kappa

import (
	"fmt"
	"math"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/parser"
)

// DefaultBucketWidth is the decile width applied to 0-100 scores when no
// width is configured.
const DefaultBucketWidth = 10.0

// InterpretationInsufficient marks statistics computed from fewer than two
// valid records. Callers must treat such rounds as zero confidence.
const InterpretationInsufficient = "insufficient_data"

// Bucket maps a numeric value to its nearest bucket index. Nearest rather
// than floor so that 79 and 80 land together under decile widths.
func Bucket(v, width float64) int {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	return int(math.Round(v / width))
}

// BucketMidpoint returns the representative value for a bucket index.
func BucketMidpoint(bucket int, width float64) float64 {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	return float64(bucket) * width
}

// Label renders a field value as a comparison label, or ok=false for kinds
// that do not participate in agreement statistics (prose, lists).
func Label(v model.FieldValue, width float64) (string, bool) {
	switch v.Kind {
	case model.KindNumber:
		return fmt.Sprintf("b%d", Bucket(v.Number, width)), true
	case model.KindCategory:
		return parser.FoldCategory(v.Text), true
	default:
		return "", false
	}
}

// comparableKeys returns the required schema fields that yield labels.
func comparableKeys(schema *model.Schema) []model.FieldSpec {
	var keys []model.FieldSpec
	for _, f := range schema.Required() {
		if f.Kind == model.KindNumber || f.Kind == model.KindCategory {
			keys = append(keys, f)
		}
	}
	return keys
}

// labelMatrix builds the items x raters label matrix. Missing optional labels
// drop the item entirely so every rater rates every remaining item.
func labelMatrix(records []model.ParsedRecord, schema *model.Schema, width float64) [][]string {
	var matrix [][]string
	for _, spec := range comparableKeys(schema) {
		row := make([]string, 0, len(records))
		complete := true
		for _, rec := range records {
			v, ok := rec.Get(spec.Key)
			if !ok {
				complete = false
				break
			}
			label, ok := Label(v, width)
			if !ok {
				complete = false
				break
			}
			row = append(row, label)
		}
		if complete {
			matrix = append(matrix, row)
		}
	}
	return matrix
}

// Compute derives the round's agreement statistics. Exactly two valid records
// use Cohen's kappa, three or more use Fleiss'. Fewer than two records, or a
// schema with no comparable fields, yields the insufficient-data sentinel —
// never a coerced 0 or 1.
func Compute(records []model.ParsedRecord, schema *model.Schema, width float64) model.KappaStatistics {
	if len(records) < 2 {
		return insufficient(len(records))
	}

	matrix := labelMatrix(records, schema, width)
	if len(matrix) == 0 {
		return insufficient(len(records))
	}

	var value, po, pe float64
	var kind model.KappaKind
	if len(records) == 2 {
		kind = model.KappaCohen
		r1 := make([]string, len(matrix))
		r2 := make([]string, len(matrix))
		for i, row := range matrix {
			r1[i], r2[i] = row[0], row[1]
		}
		value, po, pe = Cohen(r1, r2)
	} else {
		kind = model.KappaFleiss
		value, po, pe = Fleiss(matrix)
	}

	lower, upper := confidenceInterval(value, len(records))
	return model.KappaStatistics{
		Kind:              kind,
		Value:             value,
		ObservedAgreement: po,
		ExpectedAgreement: pe,
		Interpretation:    Interpret(value),
		CILower:           lower,
		CIUpper:           upper,
		SampleSize:        len(records),
	}
}

func insufficient(n int) model.KappaStatistics {
	return model.KappaStatistics{
		Interpretation: InterpretationInsufficient,
		SampleSize:     n,
		Insufficient:   true,
	}
}

// Cohen computes Cohen's kappa between two raters' label sequences.
// kappa = (p_o - p_e) / (1 - p_e), with p_e from each rater's marginal
// category distribution. Degenerate marginals (p_e = 1) return 1.
func Cohen(r1, r2 []string) (kappa, po, pe float64) {
	n := len(r1)
	if n == 0 || n != len(r2) {
		return 0, 0, 0
	}

	matches := 0
	m1 := make(map[string]float64)
	m2 := make(map[string]float64)
	for i := range r1 {
		if r1[i] == r2[i] {
			matches++
		}
		m1[r1[i]]++
		m2[r2[i]]++
	}

	po = float64(matches) / float64(n)
	for cat, c1 := range m1 {
		pe += (c1 / float64(n)) * (m2[cat] / float64(n))
	}

	if pe >= 1-1e-12 {
		return 1, po, pe
	}
	return (po - pe) / (1 - pe), po, pe
}

// Fleiss computes Fleiss' kappa over an items x raters label matrix using the
// standard per-category agreement proportions. A single observed category
// means perfect agreement.
func Fleiss(matrix [][]string) (kappa, po, pe float64) {
	nItems := len(matrix)
	if nItems == 0 {
		return 0, 0, 0
	}
	nRaters := len(matrix[0])
	if nRaters < 2 {
		return 0, 0, 0
	}

	categories := make(map[string]struct{})
	for _, row := range matrix {
		for _, label := range row {
			categories[label] = struct{}{}
		}
	}
	if len(categories) < 2 {
		return 1, 1, 1
	}

	// Per-item category counts.
	total := float64(nItems * nRaters)
	catTotals := make(map[string]float64, len(categories))
	for _, row := range matrix {
		counts := make(map[string]float64, len(row))
		for _, label := range row {
			counts[label]++
			catTotals[label]++
		}
		var pi float64
		for _, c := range counts {
			pi += c * (c - 1)
		}
		po += pi / float64(nRaters*(nRaters-1))
	}
	po /= float64(nItems)

	for _, c := range catTotals {
		p := c / total
		pe += p * p
	}

	if pe >= 1-1e-12 {
		return 1, po, pe
	}
	return (po - pe) / (1 - pe), po, pe
}

// Interpret maps a kappa value onto the Landis & Koch bands.
func Interpret(k float64) string {
	switch {
	case k < 0:
		return "poor"
	case k < 0.2:
		return "slight"
	case k < 0.4:
		return "fair"
	case k < 0.6:
		return "moderate"
	case k < 0.8:
		return "substantial"
	default:
		return "almost perfect"
	}
}

// confidenceInterval is the normal-approximation 95% interval, clamped to
// the kappa range [-1, 1].
func confidenceInterval(k float64, n int) (lower, upper float64) {
	if n < 2 {
		return k, k
	}
	se := math.Sqrt(math.Max(0, 1-k) / float64(n))
	lower = math.Max(-1, k-1.96*se)
	upper = math.Min(1, k+1.96*se)
	return lower, upper
}

// Agreement is the raw (not chance-corrected) agreement score in [0,1]: the
// mean over comparable fields of the pairwise label match proportion. It is
// symmetric in record order.
func Agreement(records []model.ParsedRecord, schema *model.Schema, width float64) float64 {
	if len(records) < 2 {
		if len(records) == 1 {
			return 1
		}
		return 0
	}

	matrix := labelMatrix(records, schema, width)
	if len(matrix) == 0 {
		return 0
	}

	var sum float64
	for _, row := range matrix {
		pairs, matches := 0, 0
		for i := 0; i < len(row); i++ {
			for j := i + 1; j < len(row); j++ {
				pairs++
				if row[i] == row[j] {
					matches++
				}
			}
		}
		if pairs > 0 {
			sum += float64(matches) / float64(pairs)
		}
	}
	return sum / float64(len(matrix))
}
