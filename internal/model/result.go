package model

import "time"

// KappaKind distinguishes the two inter-rater statistics.
type KappaKind string

const (
	// KappaCohen is the exactly-2-rater statistic.
	KappaCohen KappaKind = "cohen"
	// KappaFleiss is the multi-rater (>=3) statistic.
	KappaFleiss KappaKind = "fleiss"
)

// KappaStatistics is the derived inter-rater agreement summary for a round.
// When Insufficient is true the numeric fields are meaningless and callers
// must treat the round as zero confidence.
type KappaStatistics struct {
	Kind              KappaKind `json:"kind,omitempty"`
	Value             float64   `json:"value"`
	ObservedAgreement float64   `json:"observed_agreement"`
	ExpectedAgreement float64   `json:"expected_agreement"`
	Interpretation    string    `json:"interpretation"`
	CILower           float64   `json:"ci_lower"`
	CIUpper           float64   `json:"ci_upper"`
	SampleSize        int       `json:"sample_size"`
	Insufficient      bool      `json:"insufficient,omitempty"`
}

// CostBreakdown itemizes spend for a round. TotalUSD always equals the sum of
// the per-provider entries.
type CostBreakdown struct {
	PerProvider map[string]float64 `json:"per_provider"`
	TotalUSD    float64            `json:"total_usd"`
}

// ChainAttempt records one step of the fallback chain.
type ChainAttempt struct {
	Strategy string `json:"strategy"`
	Success  bool   `json:"success"`
	Reason   string `json:"reason,omitempty"`
}

// Round warning flags surfaced on the result.
const (
	WarnReducedProviders = "reduced_providers"
	WarnSingleProvider   = "single_provider"
	WarnUnpricedModel    = "unpriced_model"
	WarnFallbackApplied  = "fallback_applied"
	WarnBestSingle       = "best_single_response"
)

// ConsensusResult is the single authoritative verdict for one round.
// Produced once per request and immutable afterwards; top-level fields map
// one-to-one to flat tabular columns in the consuming pipeline.
type ConsensusResult struct {
	RoundID      string       `json:"round_id"`
	AnalysisType AnalysisType `json:"analysis_type"`

	Final                  ParsedRecord                `json:"final"`
	ParticipatingProviders []string                    `json:"participating_providers"`
	Responses              map[string]ProviderResponse `json:"responses"`

	AgreementScore float64         `json:"agreement_score"` // [0,1]
	Kappa          KappaStatistics `json:"kappa"`
	Confidence     float64         `json:"confidence"`
	QualityScore   float64         `json:"quality_score"`

	StrategyUsed  string         `json:"strategy_used"`
	FallbackChain []ChainAttempt `json:"fallback_chain"`
	Warnings      []string       `json:"warnings,omitempty"`

	Cost CostBreakdown `json:"cost"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HasWarning reports whether the result carries the given warning flag.
func (r *ConsensusResult) HasWarning(flag string) bool {
	for _, w := range r.Warnings {
		if w == flag {
			return true
		}
	}
	return false
}
