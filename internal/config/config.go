package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/consensus-engine/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Consensus ConsensusConfig `yaml:"consensus" mapstructure:"consensus"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Health    HealthConfig    `yaml:"health" mapstructure:"health"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProvidersConfig groups the per-provider settings.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     ProviderConfig `yaml:"openai" mapstructure:"openai"`
	DeepSeek   ProviderConfig `yaml:"deepseek" mapstructure:"deepseek"`
	Perplexity ProviderConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Ollama     ProviderConfig `yaml:"ollama" mapstructure:"ollama"`
}

// ProviderConfig configures one provider adapter.
type ProviderConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerMin int    `yaml:"rate_per_min" mapstructure:"rate_per_min"`
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
}

// ConsensusConfig configures the round defaults.
type ConsensusConfig struct {
	DefaultStrategy      string   `yaml:"default_strategy" mapstructure:"default_strategy"`
	FallbackChain        []string `yaml:"fallback_chain" mapstructure:"fallback_chain"`
	MinAgreement         float64  `yaml:"min_agreement_threshold" mapstructure:"min_agreement_threshold"`
	MinProviderCount     int      `yaml:"min_provider_count" mapstructure:"min_provider_count"`
	PerCallTimeoutSecs   int      `yaml:"per_call_timeout_secs" mapstructure:"per_call_timeout_secs"`
	RoundTimeoutSecs     int      `yaml:"round_timeout_secs" mapstructure:"round_timeout_secs"`
	BucketWidthForKappa  float64  `yaml:"bucket_width_for_kappa" mapstructure:"bucket_width_for_kappa"`
	EMAAlpha             float64  `yaml:"ema_alpha" mapstructure:"ema_alpha"`
	EnableLocalProviders bool     `yaml:"enable_local_providers" mapstructure:"enable_local_providers"`
}

// PerCallTimeout returns the per-call budget as a duration.
func (c ConsensusConfig) PerCallTimeout() time.Duration {
	return time.Duration(c.PerCallTimeoutSecs) * time.Second
}

// RoundTimeout returns the round budget as a duration.
func (c ConsensusConfig) RoundTimeout() time.Duration {
	return time.Duration(c.RoundTimeoutSecs) * time.Second
}

// AuditConfig configures round persistence.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// HealthConfig configures the provider health monitor.
type HealthConfig struct {
	IntervalSecs     int `yaml:"interval_secs" mapstructure:"interval_secs"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONSENSUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("consensus.default_strategy", "weighted_average")
	v.SetDefault("consensus.fallback_chain", []string{"majority_vote", "best_single_response"})
	v.SetDefault("consensus.min_agreement_threshold", 0.6)
	v.SetDefault("consensus.min_provider_count", 2)
	v.SetDefault("consensus.per_call_timeout_secs", 30)
	v.SetDefault("consensus.round_timeout_secs", 60)
	v.SetDefault("consensus.bucket_width_for_kappa", 10.0)
	v.SetDefault("consensus.ema_alpha", 0.2)
	v.SetDefault("consensus.enable_local_providers", true)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "consensus-audit.db")
	v.SetDefault("health.interval_secs", 60)
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.cooldown_secs", 300)
	// Empty defaults register the secret keys with viper so environment-only
	// values survive Unmarshal.
	v.SetDefault("providers.anthropic.key", "")
	v.SetDefault("providers.openai.key", "")
	v.SetDefault("providers.deepseek.key", "")
	v.SetDefault("providers.perplexity.key", "")
	v.SetDefault("providers.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("providers.anthropic.rate_per_min", 50)
	v.SetDefault("providers.anthropic.enabled", true)
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.rate_per_min", 60)
	v.SetDefault("providers.openai.enabled", true)
	v.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("providers.deepseek.model", "deepseek-chat")
	v.SetDefault("providers.deepseek.rate_per_min", 60)
	v.SetDefault("providers.deepseek.enabled", false)
	v.SetDefault("providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("providers.perplexity.model", "sonar-pro")
	v.SetDefault("providers.perplexity.rate_per_min", 30)
	v.SetDefault("providers.perplexity.enabled", true)
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	v.SetDefault("providers.ollama.model", "llama3.1")
	v.SetDefault("providers.ollama.enabled", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Pricing) == 0 {
		cfg.Pricing = cost.DefaultRates()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
