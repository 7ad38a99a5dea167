package provider

import (
	"context"
	"time"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/resilience"
	"github.com/sells-group/consensus-engine/pkg/anthropic"
	"github.com/sells-group/consensus-engine/pkg/ollama"
	"github.com/sells-group/consensus-engine/pkg/openai"
	"github.com/sells-group/consensus-engine/pkg/perplexity"
)

// Anthropic adapts the Anthropic messages API.
type Anthropic struct {
	client anthropic.Client
	retry  resilience.RetryConfig
}

// NewAnthropic wraps an Anthropic client as a Provider.
func NewAnthropic(client anthropic.Client) *Anthropic {
	return &Anthropic{client: client, retry: resilience.DefaultRetryConfig()}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Generate(ctx context.Context, prompt string, cfg ModelConfig) model.ProviderResponse {
	start := time.Now()
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       cfg.Model,
			MaxTokens:   int64(maxTokens),
			System:      cfg.System,
			Prompt:      prompt,
			Temperature: cfg.Temperature,
		})
	})
	if err != nil {
		return failure(p.Name(), cfg.Model, start, classify(ctx, err), err)
	}

	return model.ProviderResponse{
		Provider:     p.Name(),
		Model:        cfg.Model,
		RawText:      resp.Text,
		InputTokens:  int(resp.InputTokens),
		OutputTokens: int(resp.OutputTokens),
		Latency:      time.Since(start),
		Status:       model.StatusOK,
	}
}

// Chat adapts any OpenAI-style chat completions API. The same adapter
// serves OpenAI and DeepSeek; only the client configuration differs.
type Chat struct {
	name   string
	client openai.Client
	retry  resilience.RetryConfig
}

// NewChat wraps an OpenAI-compatible client as a Provider under name.
func NewChat(name string, client openai.Client) *Chat {
	return &Chat{name: name, client: client, retry: resilience.DefaultRetryConfig()}
}

func (p *Chat) Name() string { return p.name }

func (p *Chat) Generate(ctx context.Context, prompt string, cfg ModelConfig) model.ProviderResponse {
	start := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = &cfg.MaxTokens
	}
	if cfg.System != "" {
		req.Messages = append(req.Messages, openai.Message{Role: "system", Content: cfg.System})
	}
	req.Messages = append(req.Messages, openai.Message{Role: "user", Content: prompt})

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*openai.ChatCompletionResponse, error) {
		return p.client.ChatCompletion(ctx, req)
	})
	if err != nil {
		return failure(p.Name(), cfg.Model, start, classify(ctx, err), err)
	}
	if len(resp.Choices) == 0 {
		return failure(p.Name(), cfg.Model, start, model.StatusError, errEmptyCompletion)
	}

	return model.ProviderResponse{
		Provider:     p.Name(),
		Model:        cfg.Model,
		RawText:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      time.Since(start),
		Status:       model.StatusOK,
	}
}

// Perplexity adapts the Perplexity chat completions API.
type Perplexity struct {
	client perplexity.Client
	retry  resilience.RetryConfig
}

// NewPerplexity wraps a Perplexity client as a Provider.
func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client, retry: resilience.DefaultRetryConfig()}
}

func (p *Perplexity) Name() string { return "perplexity" }

func (p *Perplexity) Generate(ctx context.Context, prompt string, cfg ModelConfig) model.ProviderResponse {
	start := time.Now()

	req := perplexity.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = &cfg.MaxTokens
	}
	if cfg.System != "" {
		req.Messages = append(req.Messages, perplexity.Message{Role: "system", Content: cfg.System})
	}
	req.Messages = append(req.Messages, perplexity.Message{Role: "user", Content: prompt})

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return p.client.ChatCompletion(ctx, req)
	})
	if err != nil {
		return failure(p.Name(), cfg.Model, start, classify(ctx, err), err)
	}
	if len(resp.Choices) == 0 {
		return failure(p.Name(), cfg.Model, start, model.StatusError, errEmptyCompletion)
	}

	return model.ProviderResponse{
		Provider:     p.Name(),
		Model:        cfg.Model,
		RawText:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      time.Since(start),
		Status:       model.StatusOK,
	}
}

// Ollama adapts a local Ollama daemon. Local generations are free, so the
// cost accountant prices them at zero.
type Ollama struct {
	client ollama.Client
	retry  resilience.RetryConfig
}

// NewOllama wraps an Ollama client as a Provider.
func NewOllama(client ollama.Client) *Ollama {
	return &Ollama{client: client, retry: resilience.DefaultRetryConfig()}
}

func (p *Ollama) Name() string { return "ollama" }

func (p *Ollama) Generate(ctx context.Context, prompt string, cfg ModelConfig) model.ProviderResponse {
	start := time.Now()

	full := prompt
	if cfg.System != "" {
		full = cfg.System + "\n\n" + prompt
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*ollama.GenerateResponse, error) {
		return p.client.Generate(ctx, ollama.GenerateRequest{Model: cfg.Model, Prompt: full})
	})
	if err != nil {
		return failure(p.Name(), cfg.Model, start, classify(ctx, err), err)
	}

	return model.ProviderResponse{
		Provider:     p.Name(),
		Model:        cfg.Model,
		RawText:      resp.Response,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		Latency:      time.Since(start),
		Status:       model.StatusOK,
	}
}
