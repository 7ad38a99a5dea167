package cost

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		"anthropic": {
			"haiku":  {Input: 0.0008, Output: 0.004},
			"sonnet": {Input: 0.003, Output: 0.015},
		},
		"perplexity": {
			"sonar-pro": {Input: 0.003, Output: 0.015},
		},
	}
}

func TestPrice(t *testing.T) {
	t.Parallel()
	acct := NewAccountant(testRates())

	tests := []struct {
		name     string
		provider string
		model    string
		in, out  int
		wantUSD  float64
		priced   bool
	}{
		{
			name:     "haiku simple",
			provider: "anthropic", model: "haiku",
			in: 1000, out: 500,
			wantUSD: 0.0008 + 0.002,
			priced:  true,
		},
		{
			name:     "sonnet",
			provider: "anthropic", model: "sonnet",
			in: 2000, out: 1000,
			wantUSD: 0.006 + 0.015,
			priced:  true,
		},
		{
			name:     "unknown model zero cost",
			provider: "anthropic", model: "opus",
			in: 1000, out: 1000,
			wantUSD: 0, priced: false,
		},
		{
			name:     "unknown provider zero cost",
			provider: "ollama", model: "llama3",
			in: 1000, out: 1000,
			wantUSD: 0, priced: false,
		},
		{
			name:     "zero tokens",
			provider: "anthropic", model: "haiku",
			wantUSD: 0, priced: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ch := acct.Price(tt.provider, tt.model, tt.in, tt.out)
			assert.InDelta(t, tt.wantUSD, ch.USD, 1e-9)
			assert.Equal(t, tt.priced, ch.Priced)
			assert.Equal(t, tt.in, ch.InputTokens)
			assert.Equal(t, tt.out, ch.OutputTokens)
		})
	}
}

func TestPriceDeterministic(t *testing.T) {
	t.Parallel()
	acct := NewAccountant(testRates())
	a := acct.Price("anthropic", "haiku", 1234, 567)
	b := acct.Price("anthropic", "haiku", 1234, 567)
	assert.Equal(t, a, b)
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short rounds up to one", "hi", 1},
		{"four chars per token", strings.Repeat("a", 400), 100},
		{"multibyte counts runes not bytes", strings.Repeat("ã", 400), 100},
		{"accented business name", "Padaria São João", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.Contains(t, rates, "anthropic")
	assert.Contains(t, rates, "perplexity")
	assert.NotContains(t, rates, "ollama") // local models stay unpriced
}
