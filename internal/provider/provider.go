// Package provider adapts external model APIs to a uniform generation
// surface. Adapters never return errors: every failure is folded into a
// typed status on the response so a round can account for all of its
// dispatches uniformly.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/resilience"
)

// ModelConfig carries the per-call generation parameters.
type ModelConfig struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	System      string
}

// Provider issues a single text generation. Implementations classify
// failures into the response status rather than returning an error.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, cfg ModelConfig) model.ProviderResponse
}

// DefaultMaxTokens bounds a completion when the caller does not set one.
const DefaultMaxTokens = 2048

// errEmptyCompletion covers a 200 response that carries no choices.
var errEmptyCompletion = errors.New("provider returned no completion choices")

// classify maps a call error onto a response status. Deadline expiry wins
// over everything else so a slow provider is reported as timeout, not error.
func classify(ctx context.Context, err error) model.ResponseStatus {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.StatusTimeout
	}
	var te *resilience.TransientError
	if errors.As(err, &te) && te.StatusCode == 429 {
		return model.StatusRateLimited
	}
	return model.StatusError
}

// failure builds a terminal response for a call that produced no text.
func failure(name, modelID string, start time.Time, status model.ResponseStatus, err error) model.ProviderResponse {
	resp := model.ProviderResponse{
		Provider: name,
		Model:    modelID,
		Latency:  time.Since(start),
		Status:   status,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
