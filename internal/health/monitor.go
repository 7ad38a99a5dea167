// Package health watches provider availability with periodic canary calls
// and benchmarks consensus strategies against labeled datasets offline.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/provider"
)

// canaryPrompt is cheap on purpose: any non-empty completion counts.
const canaryPrompt = "Reply with OK."

// ProviderStatus is one provider's health at the last sweep.
type ProviderStatus struct {
	Provider            string    `json:"provider"`
	Healthy             bool      `json:"healthy"`
	Degraded            bool      `json:"degraded"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LatencyMS           int64     `json:"latency_ms"`
	LastError           string    `json:"last_error,omitempty"`
	LastChecked         time.Time `json:"last_checked"`
}

type providerState struct {
	failures      int
	degradedUntil time.Time
	last          ProviderStatus
}

// Monitor runs canary checks and marks providers degraded after a run of
// consecutive failures. Degraded providers are skipped by the registry until
// the cooldown elapses.
type Monitor struct {
	mu       sync.Mutex
	reg      *provider.Registry
	interval time.Duration
	// threshold is the consecutive-failure count that trips degradation.
	threshold int
	cooldown  time.Duration
	state     map[string]*providerState
	log       *zap.Logger
}

// NewMonitor creates a Monitor over the registry's providers.
func NewMonitor(reg *provider.Registry, interval time.Duration, threshold int, cooldown time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Monitor{
		reg:       reg,
		interval:  interval,
		threshold: threshold,
		cooldown:  cooldown,
		state:     make(map[string]*providerState),
		log:       zap.L().With(zap.String("component", "health_monitor")),
	}
}

// Degraded reports whether name is currently in cooldown. Suitable as the
// registry's degraded check.
func (m *Monitor) Degraded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[name]
	return ok && time.Now().Before(st.degradedUntil)
}

// CheckAll sweeps every registered provider once and returns the statuses in
// provider order.
func (m *Monitor) CheckAll(ctx context.Context) []ProviderStatus {
	names := m.reg.Names()
	out := make([]ProviderStatus, 0, len(names))
	for _, name := range names {
		out = append(out, m.check(ctx, name))
	}
	return out
}

func (m *Monitor) check(ctx context.Context, name string) ProviderStatus {
	start := time.Now()
	resp := m.reg.Canary(ctx, name, canaryPrompt, provider.ModelConfig{MaxTokens: 16})
	healthy := resp.Status == model.StatusOK && resp.RawText != ""

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.state[name]
	if !ok {
		st = &providerState{}
		m.state[name] = st
	}

	if healthy {
		st.failures = 0
		st.degradedUntil = time.Time{}
	} else {
		st.failures++
		if st.failures >= m.threshold {
			st.degradedUntil = time.Now().Add(m.cooldown)
			m.log.Warn("provider degraded",
				zap.String("provider", name),
				zap.Int("consecutive_failures", st.failures),
				zap.Duration("cooldown", m.cooldown))
		}
	}

	st.last = ProviderStatus{
		Provider:            name,
		Healthy:             healthy,
		Degraded:            time.Now().Before(st.degradedUntil),
		ConsecutiveFailures: st.failures,
		LatencyMS:           time.Since(start).Milliseconds(),
		LastError:           resp.Error,
		LastChecked:         time.Now(),
	}
	return st.last
}

// Statuses returns the most recent status per checked provider.
func (m *Monitor) Statuses() []ProviderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ProviderStatus, 0, len(m.state))
	for _, st := range m.state {
		out = append(out, st.last)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Run sweeps on the configured interval until ctx is cancelled. The first
// sweep happens immediately so degradation state exists before traffic.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("health monitor started",
		zap.Duration("interval", m.interval),
		zap.Int("failure_threshold", m.threshold))

	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}
