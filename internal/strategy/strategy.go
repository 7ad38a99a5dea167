// Package strategy implements the pluggable reductions that collapse N valid
// provider records into one verdict. Strategies form a closed enumeration and
// share one reduce contract; escalation between them is the orchestrator's
// job, signalled through ErrNoConsensus.
package strategy

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/weights"
)

// Kind names one consensus strategy.
type Kind string

const (
	// MajorityVote takes the mode of categorical fields and the mode of
	// bucketed numeric values mapped back to the bucket midpoint.
	MajorityVote Kind = "majority_vote"
	// WeightedAverage weights numeric fields by provider history and picks
	// categorical fields by weighted plurality.
	WeightedAverage Kind = "weighted_average"
	// Unanimous succeeds only when every valid record agrees within tolerance
	// on every required field.
	Unanimous Kind = "unanimous"
	// ThresholdBased succeeds iff the agreement score meets the threshold.
	ThresholdBased Kind = "threshold_based"
	// KappaWeighted rescales provider weights by each provider's leave-one-out
	// contribution to the overall kappa.
	KappaWeighted Kind = "kappa_weighted"
	// ConfidenceWeighted weights providers by response completeness combined
	// with agreement to the majority.
	ConfidenceWeighted Kind = "confidence_weighted"
	// FallbackCascade tries an ordered list of strategies, stopping at the
	// first success.
	FallbackCascade Kind = "fallback_cascade"
	// EnsembleVoting runs several strategies independently and takes the
	// field-wise median (numeric) / mode (categorical) of their outputs.
	EnsembleVoting Kind = "ensemble_voting"
	// BestSingleResponse returns the highest-weight provider's record as-is.
	// Only ever a deliberate terminal chain step.
	BestSingleResponse Kind = "best_single_response"
)

// Kinds lists every strategy in the closed enumeration.
func Kinds() []Kind {
	return []Kind{
		MajorityVote, WeightedAverage, Unanimous, ThresholdBased,
		KappaWeighted, ConfidenceWeighted, FallbackCascade, EnsembleVoting,
		BestSingleResponse,
	}
}

// ParseKind validates a configured strategy name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if Kind(s) == k {
			return k, nil
		}
	}
	return "", eris.Errorf("strategy: unknown strategy %q", s)
}

// ErrNoConsensus signals that a strategy's success criterion was not met and
// the orchestrator should escalate to the next chain step.
var ErrNoConsensus = eris.New("strategy: no consensus reached")

// ErrNoRecords signals a reduction attempted with zero valid records.
var ErrNoRecords = eris.New("strategy: no valid records to reduce")

// Rated pairs a valid parsed record with the provider that produced it.
type Rated struct {
	Provider string
	Record   model.ParsedRecord
}

// Input is the uniform reduction input: valid records, a read-only weight
// snapshot, and the round's thresholds. Reductions must be order-independent;
// ordering is used only for deterministic tie-breaking.
type Input struct {
	Schema      *model.Schema
	Records     []Rated
	Weights     weights.Snapshot
	Threshold   float64
	BucketWidth float64
	// Cascade is the ordered sub-strategy list for FallbackCascade. Empty uses
	// the default cascade.
	Cascade []Kind
}

// Outcome is a successful reduction.
type Outcome struct {
	Record         model.ParsedRecord
	AgreementScore float64
	Confidence     float64
}

// Reduce applies the named strategy to the input. Returns ErrNoConsensus when
// the strategy's success criterion fails, ErrNoRecords when there is nothing
// to reduce. Records are canonicalized by provider name first so arrival
// order never affects the verdict.
func Reduce(kind Kind, in Input) (Outcome, error) {
	if len(in.Records) == 0 {
		return Outcome{}, ErrNoRecords
	}

	sorted := make([]Rated, len(in.Records))
	copy(sorted, in.Records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Provider < sorted[j].Provider })
	in.Records = sorted

	switch kind {
	case MajorityVote:
		return majorityVote(in)
	case WeightedAverage:
		return weightedAverage(in)
	case Unanimous:
		return unanimous(in)
	case ThresholdBased:
		return thresholdBased(in)
	case KappaWeighted:
		return kappaWeighted(in)
	case ConfidenceWeighted:
		return confidenceWeighted(in)
	case FallbackCascade:
		return fallbackCascade(in)
	case EnsembleVoting:
		return ensembleVoting(in)
	case BestSingleResponse:
		return bestSingle(in)
	default:
		return Outcome{}, eris.Errorf("strategy: unknown strategy %q", kind)
	}
}

// DefaultCascade is the built-in escalation order used when no chain is
// configured for FallbackCascade.
func DefaultCascade() []Kind {
	return []Kind{WeightedAverage, MajorityVote, BestSingleResponse}
}
