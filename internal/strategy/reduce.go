package strategy

import (
	"math"
	"sort"

	"github.com/sells-group/consensus-engine/internal/kappa"
	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/parser"
)

// DefaultThreshold is the agreement threshold applied when none is configured.
const DefaultThreshold = 0.6

func records(in Input) []model.ParsedRecord {
	out := make([]model.ParsedRecord, len(in.Records))
	for i, r := range in.Records {
		out[i] = r.Record
	}
	return out
}

func agreement(in Input) float64 {
	return kappa.Agreement(records(in), in.Schema, in.BucketWidth)
}

func meanCompleteness(in Input) float64 {
	if len(in.Records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range in.Records {
		sum += r.Record.Completeness(in.Schema)
	}
	return sum / float64(len(in.Records))
}

// confidence combines how much providers agreed with how complete their
// records were. One formula everywhere, so results are comparable across
// strategies.
func confidence(agree, completeness float64) float64 {
	return agree * completeness
}

// ---- field pickers -------------------------------------------------------

// weightOf is the per-record weighting function a reduction runs under.
type weightOf func(Rated) float64

func historyWeight(in Input) weightOf {
	return func(r Rated) float64 { return in.Weights.Get(r.Provider) }
}

func uniformWeight(Rated) float64 { return 1 }

// pickNumberMean is the weighted mean of a numeric field.
func pickNumberMean(key string, in Input, wf weightOf) (model.FieldValue, bool) {
	var sum, wsum float64
	for _, r := range in.Records {
		v, ok := r.Record.Get(key)
		if !ok || v.Kind != model.KindNumber {
			continue
		}
		w := wf(r)
		if w <= 0 {
			w = 1e-6
		}
		sum += w * v.Number
		wsum += w
	}
	if wsum == 0 {
		return model.FieldValue{}, false
	}
	return model.NumberValue(sum / wsum), true
}

// pickNumberMode is the mode of bucketed values mapped to the bucket
// midpoint. Ties go to the bucket backed by more provider weight, then to the
// lower bucket for determinism.
func pickNumberMode(key string, in Input, wf weightOf) (model.FieldValue, bool) {
	votes := make(map[int]int)
	weight := make(map[int]float64)
	for _, r := range in.Records {
		v, ok := r.Record.Get(key)
		if !ok || v.Kind != model.KindNumber {
			continue
		}
		b := kappa.Bucket(v.Number, in.BucketWidth)
		votes[b]++
		weight[b] += wf(r)
	}
	if len(votes) == 0 {
		return model.FieldValue{}, false
	}

	best, found := 0, false
	for b := range votes {
		if !found {
			best, found = b, true
			continue
		}
		switch {
		case votes[b] > votes[best]:
			best = b
		case votes[b] == votes[best] && weight[b] > weight[best]:
			best = b
		case votes[b] == votes[best] && weight[b] == weight[best] && b < best:
			best = b
		}
	}
	return model.NumberValue(kappa.BucketMidpoint(best, in.BucketWidth)), true
}

// pickCategory is the weighted plurality of a categorical field. Ties break
// on the lexicographically smaller folded label.
func pickCategory(key string, in Input, wf weightOf) (model.FieldValue, bool) {
	weightByLabel := make(map[string]float64)
	display := make(map[string]string)
	for _, r := range in.Records {
		v, ok := r.Record.Get(key)
		if !ok || v.Kind != model.KindCategory {
			continue
		}
		label := parser.FoldCategory(v.Text)
		weightByLabel[label] += wf(r)
		if _, seen := display[label]; !seen {
			display[label] = v.Text
		}
	}
	if len(weightByLabel) == 0 {
		return model.FieldValue{}, false
	}

	best := ""
	found := false
	for label := range weightByLabel {
		if !found {
			best, found = label, true
			continue
		}
		if weightByLabel[label] > weightByLabel[best] ||
			(weightByLabel[label] == weightByLabel[best] && label < best) {
			best = label
		}
	}
	return model.CategoryValue(display[best]), true
}

// pickList merges list fields across records, ranked by supporting weight
// then lexicographically, capped at five entries.
func pickList(key string, in Input, wf weightOf) (model.FieldValue, bool) {
	const maxItems = 5

	weightByItem := make(map[string]float64)
	display := make(map[string]string)
	present := false
	for _, r := range in.Records {
		v, ok := r.Record.Get(key)
		if !ok || v.Kind != model.KindList {
			continue
		}
		present = true
		for _, item := range v.List {
			folded := parser.FoldCategory(item)
			weightByItem[folded] += wf(r)
			if _, seen := display[folded]; !seen {
				display[folded] = item
			}
		}
	}
	if !present {
		return model.FieldValue{}, false
	}

	keys := make([]string, 0, len(weightByItem))
	for k := range weightByItem {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if weightByItem[keys[i]] != weightByItem[keys[j]] {
			return weightByItem[keys[i]] > weightByItem[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > maxItems {
		keys = keys[:maxItems]
	}

	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = display[k]
	}
	return model.ListValue(items), true
}

// pickText takes the prose field from the heaviest provider; records arrive
// sorted by provider name, so equal weights resolve deterministically.
func pickText(key string, in Input, wf weightOf) (model.FieldValue, bool) {
	var best model.FieldValue
	bestW := math.Inf(-1)
	found := false
	for _, r := range in.Records {
		v, ok := r.Record.Get(key)
		if !ok || v.Kind != model.KindText {
			continue
		}
		if w := wf(r); w > bestW {
			best, bestW, found = v, w, true
		}
	}
	return best, found
}

// reduceFields assembles a final record field by field in schema order.
// numericMode selects mean vs bucket-mode handling for numbers.
func reduceFields(in Input, wf weightOf, numericMean bool) model.ParsedRecord {
	final := model.NewParsedRecord()
	for _, spec := range in.Schema.Fields {
		var v model.FieldValue
		var ok bool
		switch spec.Kind {
		case model.KindNumber:
			if numericMean {
				v, ok = pickNumberMean(spec.Key, in, wf)
			} else {
				v, ok = pickNumberMode(spec.Key, in, wf)
			}
		case model.KindCategory:
			v, ok = pickCategory(spec.Key, in, wf)
		case model.KindList:
			v, ok = pickList(spec.Key, in, wf)
		case model.KindText:
			v, ok = pickText(spec.Key, in, wf)
		}
		if ok {
			final.Fields[spec.Key] = v
		}
	}
	return final
}

// ---- strategies ----------------------------------------------------------

func majorityVote(in Input) (Outcome, error) {
	agree := agreement(in)
	return Outcome{
		Record:         reduceFields(in, uniformWeight, false),
		AgreementScore: agree,
		Confidence:     confidence(agree, meanCompleteness(in)),
	}, nil
}

func weightedAverage(in Input) (Outcome, error) {
	agree := agreement(in)
	return Outcome{
		Record:         reduceFields(in, historyWeight(in), true),
		AgreementScore: agree,
		Confidence:     confidence(agree, meanCompleteness(in)),
	}, nil
}

func unanimous(in Input) (Outcome, error) {
	if !allAgree(in) {
		return Outcome{}, ErrNoConsensus
	}
	out, err := weightedAverage(in)
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// allAgree checks every required field within tolerance: numbers must share a
// bucket, categories must fold equal, lists must overlap (or both be empty).
// Prose fields carry no tolerance definition and are skipped.
func allAgree(in Input) bool {
	for _, spec := range in.Schema.Required() {
		switch spec.Kind {
		case model.KindNumber, model.KindCategory:
			var ref string
			for i, r := range in.Records {
				v, ok := r.Record.Get(spec.Key)
				if !ok {
					return false
				}
				label, ok := kappa.Label(v, in.BucketWidth)
				if !ok {
					return false
				}
				if i == 0 {
					ref = label
				} else if label != ref {
					return false
				}
			}
		case model.KindList:
			var ref map[string]struct{}
			for i, r := range in.Records {
				v, ok := r.Record.Get(spec.Key)
				if !ok {
					return false
				}
				set := make(map[string]struct{}, len(v.List))
				for _, item := range v.List {
					set[parser.FoldCategory(item)] = struct{}{}
				}
				if i == 0 {
					ref = set
					continue
				}
				if len(ref) == 0 && len(set) == 0 {
					continue
				}
				overlap := false
				for item := range set {
					if _, ok := ref[item]; ok {
						overlap = true
						break
					}
				}
				if !overlap {
					return false
				}
			}
		}
	}
	return true
}

func thresholdBased(in Input) (Outcome, error) {
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	agree := agreement(in)
	if agree < threshold {
		return Outcome{}, ErrNoConsensus
	}
	return Outcome{
		Record:         reduceFields(in, uniformWeight, false),
		AgreementScore: agree,
		Confidence:     confidence(agree, meanCompleteness(in)),
	}, nil
}

// kappaWeighted rescales historical weights by each provider's leave-one-out
// kappa contribution: removing a provider that was holding agreement together
// drops kappa, so that provider gains weight. Needs at least three records
// for leave-one-out to be defined; below that it degrades to weightedAverage.
func kappaWeighted(in Input) (Outcome, error) {
	if len(in.Records) < 3 {
		return weightedAverage(in)
	}

	all := kappa.Compute(records(in), in.Schema, in.BucketWidth)
	if all.Insufficient {
		return weightedAverage(in)
	}

	base := historyWeight(in)
	scaled := make(map[string]float64, len(in.Records))
	for i, r := range in.Records {
		rest := make([]model.ParsedRecord, 0, len(in.Records)-1)
		for j, other := range in.Records {
			if j != i {
				rest = append(rest, other.Record)
			}
		}
		without := kappa.Compute(rest, in.Schema, in.BucketWidth)

		contribution := 0.0
		if !without.Insufficient {
			contribution = all.Value - without.Value
		}
		mul := 1 + contribution
		if mul < 0.1 {
			mul = 0.1
		} else if mul > 2 {
			mul = 2
		}
		scaled[r.Provider] = base(r) * mul
	}

	wf := func(r Rated) float64 { return scaled[r.Provider] }
	agree := agreement(in)
	return Outcome{
		Record:         reduceFields(in, wf, true),
		AgreementScore: agree,
		Confidence:     confidence(agree, meanCompleteness(in)),
	}, nil
}

// confidenceWeighted derives each provider's weight from record completeness
// combined with its agreement to the majority:
// weight = completeness * (0.5 + 0.5*majorityAgreement).
func confidenceWeighted(in Input) (Outcome, error) {
	majority := majorityLabels(in)

	wf := func(r Rated) float64 {
		completeness := r.Record.Completeness(in.Schema)
		return completeness * (0.5 + 0.5*majorityAgreement(r.Record, majority, in))
	}

	agree := agreement(in)
	return Outcome{
		Record:         reduceFields(in, wf, true),
		AgreementScore: agree,
		Confidence:     confidence(agree, meanCompleteness(in)),
	}, nil
}

// majorityLabels computes the plurality label per comparable required field.
func majorityLabels(in Input) map[string]string {
	out := make(map[string]string)
	for _, spec := range in.Schema.Required() {
		if spec.Kind != model.KindNumber && spec.Kind != model.KindCategory {
			continue
		}
		counts := make(map[string]int)
		for _, r := range in.Records {
			v, ok := r.Record.Get(spec.Key)
			if !ok {
				continue
			}
			if label, ok := kappa.Label(v, in.BucketWidth); ok {
				counts[label]++
			}
		}
		best := ""
		for label, c := range counts {
			if best == "" || c > counts[best] || (c == counts[best] && label < best) {
				best = label
			}
		}
		if best != "" {
			out[spec.Key] = best
		}
	}
	return out
}

// majorityAgreement is the fraction of majority fields this record matches.
func majorityAgreement(rec model.ParsedRecord, majority map[string]string, in Input) float64 {
	if len(majority) == 0 {
		return 1
	}
	matched := 0
	for key, want := range majority {
		v, ok := rec.Get(key)
		if !ok {
			continue
		}
		if label, ok := kappa.Label(v, in.BucketWidth); ok && label == want {
			matched++
		}
	}
	return float64(matched) / float64(len(majority))
}

// fallbackCascade tries an ordered list of strategies, returning the first
// success. An empty configured cascade uses the default order.
func fallbackCascade(in Input) (Outcome, error) {
	cascade := in.Cascade
	if len(cascade) == 0 {
		cascade = DefaultCascade()
	}

	var lastErr error = ErrNoConsensus
	for _, step := range cascade {
		if step == FallbackCascade {
			// A cascade inside a cascade cannot terminate; skip it.
			continue
		}
		out, err := Reduce(step, in)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return Outcome{}, lastErr
}

// ensembleVoting runs several base strategies independently and merges their
// outputs field-wise: numeric median, categorical mode, with prose and lists
// taken from the weighted-average output.
func ensembleVoting(in Input) (Outcome, error) {
	base := []Kind{MajorityVote, WeightedAverage, ConfidenceWeighted}

	var outs []Outcome
	var weighted *Outcome
	for _, k := range base {
		out, err := Reduce(k, in)
		if err != nil {
			continue
		}
		if k == WeightedAverage {
			o := out
			weighted = &o
		}
		outs = append(outs, out)
	}
	if len(outs) == 0 {
		return Outcome{}, ErrNoConsensus
	}
	if weighted == nil {
		weighted = &outs[0]
	}

	final := model.NewParsedRecord()
	for _, spec := range in.Schema.Fields {
		switch spec.Kind {
		case model.KindNumber:
			var vals []float64
			for _, o := range outs {
				if v, ok := o.Record.Get(spec.Key); ok && v.Kind == model.KindNumber {
					vals = append(vals, v.Number)
				}
			}
			if len(vals) > 0 {
				final.Fields[spec.Key] = model.NumberValue(median(vals))
			}
		case model.KindCategory:
			counts := make(map[string]int)
			display := make(map[string]string)
			for _, o := range outs {
				if v, ok := o.Record.Get(spec.Key); ok && v.Kind == model.KindCategory {
					label := parser.FoldCategory(v.Text)
					counts[label]++
					if _, seen := display[label]; !seen {
						display[label] = v.Text
					}
				}
			}
			best := ""
			for label, c := range counts {
				if best == "" || c > counts[best] || (c == counts[best] && label < best) {
					best = label
				}
			}
			if best != "" {
				final.Fields[spec.Key] = model.CategoryValue(display[best])
			}
		default:
			if v, ok := weighted.Record.Get(spec.Key); ok {
				final.Fields[spec.Key] = v
			}
		}
	}

	var agreeSum, confSum float64
	for _, o := range outs {
		agreeSum += o.AgreementScore
		confSum += o.Confidence
	}
	return Outcome{
		Record:         final,
		AgreementScore: agreeSum / float64(len(outs)),
		Confidence:     confSum / float64(len(outs)),
	}, nil
}

// bestSingle returns the heaviest provider's record untouched. Confidence is
// discounted: a lone voice is weaker evidence than a converged panel.
func bestSingle(in Input) (Outcome, error) {
	wf := historyWeight(in)
	best := in.Records[0]
	for _, r := range in.Records[1:] {
		if wf(r) > wf(best) {
			best = r
		}
	}

	const singleResponseDiscount = 0.7
	return Outcome{
		Record:         best.Record,
		AgreementScore: agreement(in),
		Confidence:     singleResponseDiscount * best.Record.Completeness(in.Schema),
	}, nil
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
