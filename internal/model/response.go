package model

import "time"

// ResponseStatus classifies the outcome of a single provider call.
type ResponseStatus string

const (
	// StatusOK means the provider returned text within its deadline.
	StatusOK ResponseStatus = "ok"
	// StatusError covers transport and API failures.
	StatusError ResponseStatus = "error"
	// StatusTimeout means the per-call or round deadline elapsed first.
	StatusTimeout ResponseStatus = "timeout"
	// StatusRateLimited means the local rate-limit counter rejected the call
	// before it was issued.
	StatusRateLimited ResponseStatus = "rate_limited"
)

// ProviderResponse records one provider call. Created once per call and never
// mutated afterwards; the parsed record is attached by the validator before
// the response enters the round.
type ProviderResponse struct {
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	RawText      string         `json:"raw_text,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Latency      time.Duration  `json:"latency_ms"`
	Status       ResponseStatus `json:"status"`
	Error        string         `json:"error,omitempty"`

	// Parsed is set only when Status is ok and validation succeeded.
	Parsed *ParsedRecord `json:"parsed,omitempty"`
	// InvalidReason explains a failed validation; the response is excluded
	// from statistics but retained for audit.
	InvalidReason string `json:"invalid_reason,omitempty"`

	CostUSD float64 `json:"cost_usd"`
	// Priced is false when the provider/model pair had no pricing entry and
	// the cost defaulted to zero.
	Priced bool `json:"priced"`
}

// Valid reports whether the response carries a schema-valid parsed record.
func (r *ProviderResponse) Valid() bool {
	return r.Status == StatusOK && r.Parsed != nil
}
