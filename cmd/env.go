package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/consensus-engine/internal/audit"
	"github.com/sells-group/consensus-engine/internal/config"
	"github.com/sells-group/consensus-engine/internal/consensus"
	"github.com/sells-group/consensus-engine/internal/cost"
	"github.com/sells-group/consensus-engine/internal/health"
	"github.com/sells-group/consensus-engine/internal/provider"
	"github.com/sells-group/consensus-engine/internal/strategy"
	"github.com/sells-group/consensus-engine/internal/weights"
	"github.com/sells-group/consensus-engine/pkg/anthropic"
	"github.com/sells-group/consensus-engine/pkg/ollama"
	"github.com/sells-group/consensus-engine/pkg/openai"
	"github.com/sells-group/consensus-engine/pkg/perplexity"
)

// env wires the engine and its collaborators from configuration.
type env struct {
	Registry *provider.Registry
	Engine   *consensus.Engine
	Monitor  *health.Monitor
	Audit    *audit.Store
}

// Close releases held resources.
func (e *env) Close() {
	if e.Audit != nil {
		_ = e.Audit.Close()
	}
}

// buildEnv registers every enabled provider and assembles the engine.
func buildEnv() (*env, error) {
	reg := provider.NewRegistry()
	callTimeout := cfg.Consensus.PerCallTimeout()

	register := func(p provider.Provider, pc config.ProviderConfig) {
		reg.Register(p, provider.ModelConfig{
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		}, callTimeout, pc.RatePerMin)
	}

	if pc := cfg.Providers.Anthropic; pc.Enabled && pc.Key != "" {
		register(provider.NewAnthropic(anthropic.NewClient(pc.Key)), pc)
	}
	if pc := cfg.Providers.OpenAI; pc.Enabled && pc.Key != "" {
		register(provider.NewChat("openai", openai.NewClient(pc.Key, openai.WithBaseURL(pc.BaseURL))), pc)
	}
	if pc := cfg.Providers.DeepSeek; pc.Enabled && pc.Key != "" {
		register(provider.NewChat("deepseek", openai.NewClient(pc.Key, openai.WithBaseURL(pc.BaseURL))), pc)
	}
	if pc := cfg.Providers.Perplexity; pc.Enabled && pc.Key != "" {
		register(provider.NewPerplexity(perplexity.NewClient(pc.Key, perplexity.WithBaseURL(pc.BaseURL))), pc)
	}
	if pc := cfg.Providers.Ollama; pc.Enabled && cfg.Consensus.EnableLocalProviders {
		register(provider.NewOllama(ollama.NewClient(ollama.WithBaseURL(pc.BaseURL))), pc)
	}

	if len(reg.Names()) == 0 {
		return nil, eris.New("no providers enabled; set provider API keys in config or environment")
	}

	chain := make([]strategy.Kind, 0, len(cfg.Consensus.FallbackChain))
	for _, s := range cfg.Consensus.FallbackChain {
		k, err := strategy.ParseKind(s)
		if err != nil {
			return nil, eris.Wrap(err, "invalid fallback chain")
		}
		chain = append(chain, k)
	}
	defaultStrategy, err := strategy.ParseKind(cfg.Consensus.DefaultStrategy)
	if err != nil {
		return nil, eris.Wrap(err, "invalid default strategy")
	}

	var store *audit.Store
	if cfg.Audit.Enabled {
		store, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
	}

	monitor := health.NewMonitor(reg,
		time.Duration(cfg.Health.IntervalSecs)*time.Second,
		cfg.Health.FailureThreshold,
		time.Duration(cfg.Health.CooldownSecs)*time.Second)
	reg.SetDegradedCheck(monitor.Degraded)

	tracker := weights.NewTracker(cfg.Consensus.EMAAlpha)
	accountant := cost.NewAccountant(cfg.Pricing)

	var auditor consensus.Auditor
	if store != nil {
		auditor = store
	}
	engine := consensus.NewEngine(reg, tracker, accountant, auditor, consensus.Options{
		DefaultStrategy:    defaultStrategy,
		FallbackChain:      chain,
		MinProviders:       cfg.Consensus.MinProviderCount,
		AgreementThreshold: cfg.Consensus.MinAgreement,
		BucketWidth:        cfg.Consensus.BucketWidthForKappa,
		RoundTimeout:       cfg.Consensus.RoundTimeout(),
	})

	zap.L().Info("engine ready",
		zap.Strings("providers", reg.Names()),
		zap.String("default_strategy", string(defaultStrategy)))

	return &env{Registry: reg, Engine: engine, Monitor: monitor, Audit: store}, nil
}
