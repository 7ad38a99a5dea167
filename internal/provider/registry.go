package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/consensus-engine/internal/model"
)

// Entry is a registered provider plus its dispatch policy.
type Entry struct {
	Provider Provider
	// Defaults applies when a request does not name a model explicitly.
	Defaults ModelConfig
	// CallTimeout bounds a single Generate including retries.
	CallTimeout time.Duration

	limiter *rate.Limiter
}

// Registry holds the enabled providers and enforces per-provider rate
// limits locally, before any network call is issued.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// degraded is consulted at dispatch time; the health monitor installs
	// it so failing providers are skipped until their cooldown passes.
	degraded func(name string) bool

	log *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// NewRegistry creates an empty provider registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:  make(map[string]*Entry),
		degraded: func(string) bool { return false },
		log:      zap.L().With(zap.String("component", "provider_registry")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a provider. requestsPerMinute <= 0 disables local limiting.
func (r *Registry) Register(p Provider, defaults ModelConfig, callTimeout time.Duration, requestsPerMinute int) {
	e := &Entry{
		Provider:    p,
		Defaults:    defaults,
		CallTimeout: callTimeout,
	}
	if requestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.Name()] = e
}

// SetDegradedCheck installs the health-monitor hook. A nil check clears it.
func (r *Registry) SetDegradedCheck(check func(name string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if check == nil {
		check = func(string) bool { return false }
	}
	r.degraded = check
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry for name, if registered.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Degraded reports whether the health monitor currently excludes name.
func (r *Registry) Degraded(name string) bool {
	r.mu.RLock()
	check := r.degraded
	r.mu.RUnlock()
	return check(name)
}

// Resolve validates that every requested provider is registered and not
// degraded, returning the dispatchable subset. Unknown names are an error;
// degraded providers are dropped silently and reflected in the round's
// provider count.
func (r *Registry) Resolve(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return nil, eris.Errorf("provider: unknown provider %q", name)
		}
		if r.Degraded(name) {
			r.log.Warn("skipping degraded provider", zap.String("provider", name))
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Call dispatches one generation through the named provider. The local rate
// limiter is consulted first; an exhausted budget short-circuits to a
// rate_limited response without issuing the call.
func (r *Registry) Call(ctx context.Context, name, prompt string, cfg ModelConfig) model.ProviderResponse {
	return r.dispatch(ctx, name, prompt, cfg, true)
}

// Canary dispatches a health-check generation. Canaries skip the local rate
// limiter so sweeps never spend budget reserved for analysis rounds.
func (r *Registry) Canary(ctx context.Context, name, prompt string, cfg ModelConfig) model.ProviderResponse {
	return r.dispatch(ctx, name, prompt, cfg, false)
}

func (r *Registry) dispatch(ctx context.Context, name, prompt string, cfg ModelConfig, limited bool) model.ProviderResponse {
	e, ok := r.Lookup(name)
	if !ok {
		return model.ProviderResponse{
			Provider: name,
			Status:   model.StatusError,
			Error:    "provider not registered",
		}
	}

	if cfg.Model == "" {
		cfg.Model = e.Defaults.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = e.Defaults.MaxTokens
	}
	if cfg.Temperature == nil {
		cfg.Temperature = e.Defaults.Temperature
	}
	if cfg.System == "" {
		cfg.System = e.Defaults.System
	}

	if limited && e.limiter != nil && !e.limiter.Allow() {
		r.log.Warn("local rate limit exceeded",
			zap.String("provider", name),
			zap.String("model", cfg.Model))
		return model.ProviderResponse{
			Provider: name,
			Model:    cfg.Model,
			Status:   model.StatusRateLimited,
			Error:    "local rate limit exceeded",
		}
	}

	callCtx := ctx
	if e.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.CallTimeout)
		defer cancel()
	}

	resp := e.Provider.Generate(callCtx, prompt, cfg)
	if resp.Status != model.StatusOK {
		r.log.Warn("provider call failed",
			zap.String("provider", name),
			zap.String("model", cfg.Model),
			zap.String("status", string(resp.Status)),
			zap.String("error", resp.Error))
	}
	return resp
}
