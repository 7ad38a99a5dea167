package model

// AnalysisRequest describes one consensus round. It is immutable once handed
// to the engine; overrides left zero fall back to configured defaults.
type AnalysisRequest struct {
	Record       BusinessRecord `json:"record"`
	AnalysisType AnalysisType   `json:"analysis_type"`

	// Providers restricts the round to the named providers. Empty means all
	// enabled providers.
	Providers []string `json:"providers,omitempty"`

	// Strategy overrides the configured default strategy.
	Strategy string `json:"strategy,omitempty"`
	// FallbackChain overrides the configured escalation chain.
	FallbackChain []string `json:"fallback_chain,omitempty"`

	// MinProviders is the minimum number of valid responses required before
	// reduction is attempted. Zero means the configured default.
	MinProviders int `json:"min_providers,omitempty"`
	// AgreementThreshold overrides the configured minimum agreement score.
	AgreementThreshold float64 `json:"agreement_threshold,omitempty"`
}
