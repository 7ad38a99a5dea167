// Package cost computes token counts and call costs from a configuration-driven
// pricing table. Everything here is a pure function of its inputs so spend can
// be audited independently of the round that produced it.
package cost

import "unicode/utf8"

// ModelRate holds per-model token pricing in USD per 1K tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps provider -> model -> pricing. Providers without an entry (local
// models, self-hosted endpoints) are charged zero.
type Rates map[string]map[string]ModelRate

// Charge is the priced outcome of a single provider call.
type Charge struct {
	InputTokens  int
	OutputTokens int
	USD          float64
	// Priced is false when no pricing entry covered the provider/model pair
	// and the cost defaulted to zero.
	Priced bool
}

// Accountant prices provider calls against a fixed rate table.
type Accountant struct {
	rates Rates
}

// NewAccountant creates an Accountant with the given rate table.
func NewAccountant(rates Rates) *Accountant {
	return &Accountant{rates: rates}
}

// EstimateTokens approximates the token count of text when the provider does
// not report usage. Roughly four characters per token, counted in runes so
// multibyte text is not over-charged.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Price computes the cost of a call. Unknown provider/model pairs yield a
// zero-cost charge with Priced=false so the round can carry a warning flag.
func (a *Accountant) Price(provider, model string, inputTokens, outputTokens int) Charge {
	ch := Charge{InputTokens: inputTokens, OutputTokens: outputTokens}

	models, ok := a.rates[provider]
	if !ok {
		return ch
	}
	rate, ok := models[model]
	if !ok {
		return ch
	}

	ch.USD = (float64(inputTokens)/1000)*rate.Input + (float64(outputTokens)/1000)*rate.Output
	ch.Priced = true
	return ch
}

// DefaultRates returns the built-in pricing table (USD per 1K tokens).
func DefaultRates() Rates {
	return Rates{
		"anthropic": {
			"claude-haiku-4-5-20251001":  {Input: 0.0008, Output: 0.004},
			"claude-sonnet-4-5-20250929": {Input: 0.003, Output: 0.015},
		},
		"openai": {
			"gpt-4o":      {Input: 0.005, Output: 0.015},
			"gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
		},
		"deepseek": {
			"deepseek-chat": {Input: 0.00014, Output: 0.00028},
		},
		"perplexity": {
			"sonar-pro": {Input: 0.003, Output: 0.015},
		},
	}
}
