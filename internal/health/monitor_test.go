package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/provider"
)

// flakyProvider fails until healthy is flipped.
type flakyProvider struct {
	name    string
	healthy bool
}

func (f *flakyProvider) Name() string { return f.name }

func (f *flakyProvider) Generate(ctx context.Context, prompt string, cfg provider.ModelConfig) model.ProviderResponse {
	if !f.healthy {
		return model.ProviderResponse{Provider: f.name, Status: model.StatusError, Error: "canary failed"}
	}
	return model.ProviderResponse{Provider: f.name, Status: model.StatusOK, RawText: "OK"}
}

func newMonitorFixture(threshold int, cooldown time.Duration) (*Monitor, *flakyProvider) {
	p := &flakyProvider{name: "anthropic", healthy: true}
	reg := provider.NewRegistry()
	reg.Register(p, provider.ModelConfig{Model: "m1"}, 0, 0)
	return NewMonitor(reg, time.Minute, threshold, cooldown), p
}

func TestMonitorDegradesAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	m, p := newMonitorFixture(2, time.Hour)
	ctx := context.Background()

	p.healthy = false
	m.CheckAll(ctx)
	assert.False(t, m.Degraded("anthropic"), "one failure must not degrade")

	m.CheckAll(ctx)
	assert.True(t, m.Degraded("anthropic"), "threshold reached")

	statuses := m.Statuses()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Healthy)
	assert.True(t, statuses[0].Degraded)
	assert.Equal(t, 2, statuses[0].ConsecutiveFailures)
}

func TestMonitorRecoveryResetsState(t *testing.T) {
	t.Parallel()

	m, p := newMonitorFixture(2, time.Hour)
	ctx := context.Background()

	p.healthy = false
	m.CheckAll(ctx)
	m.CheckAll(ctx)
	require.True(t, m.Degraded("anthropic"))

	p.healthy = true
	m.CheckAll(ctx)
	assert.False(t, m.Degraded("anthropic"))

	statuses := m.Statuses()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Healthy)
	assert.Equal(t, 0, statuses[0].ConsecutiveFailures)
}

func TestMonitorSweepsSkipRateLimiter(t *testing.T) {
	t.Parallel()

	p := &flakyProvider{name: "anthropic", healthy: true}
	reg := provider.NewRegistry()
	// One request per minute of live budget.
	reg.Register(p, provider.ModelConfig{Model: "m1"}, 0, 1)
	m := NewMonitor(reg, time.Minute, 2, time.Hour)
	ctx := context.Background()

	m.CheckAll(ctx)
	m.CheckAll(ctx)
	assert.False(t, m.Degraded("anthropic"))

	resp := reg.Call(ctx, "anthropic", "p", provider.ModelConfig{})
	assert.Equal(t, model.StatusOK, resp.Status, "sweeps must not consume the call budget")
}

func TestMonitorCooldownExpires(t *testing.T) {
	t.Parallel()

	m, p := newMonitorFixture(1, 30*time.Millisecond)
	ctx := context.Background()

	p.healthy = false
	m.CheckAll(ctx)
	require.True(t, m.Degraded("anthropic"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.Degraded("anthropic"), "cooldown elapsed")
}

func TestMonitorUnknownProviderNotDegraded(t *testing.T) {
	t.Parallel()

	m, _ := newMonitorFixture(1, time.Hour)
	assert.False(t, m.Degraded("never-checked"))
}
