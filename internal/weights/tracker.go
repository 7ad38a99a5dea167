// Package weights maintains cross-round provider reliability weights. The
// store is the only mutable state shared between rounds: reads happen through
// immutable snapshots taken at round start, and writes happen in a single
// serialized batch strictly after round finalization.
package weights

import "sync"

// DefaultAlpha is the EMA smoothing factor applied to consensus-match signals.
const DefaultAlpha = 0.2

// DefaultInitialWeight is the weight assigned to a provider before any rounds
// have finished.
const DefaultInitialWeight = 1.0

// Weight is one provider's running reliability estimate.
type Weight struct {
	Provider string  `json:"provider"`
	Value    float64 `json:"value"`
	Samples  int     `json:"samples"`
}

// Snapshot is a read-only view of the store taken at round start. Strategies
// read weights only through a snapshot, so nothing a concurrent round commits
// can change the reduction mid-flight.
type Snapshot struct {
	Version int64
	weights map[string]Weight
}

// Get returns the provider's weight, defaulting for providers with no history.
func (s Snapshot) Get(provider string) float64 {
	if w, ok := s.weights[provider]; ok {
		return w.Value
	}
	return DefaultInitialWeight
}

// Tracker is the versioned single-writer weight store.
type Tracker struct {
	mu      sync.Mutex
	alpha   float64
	version int64
	weights map[string]Weight
}

// NewTracker creates a Tracker with the given EMA alpha (0 uses the default).
func NewTracker(alpha float64) *Tracker {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Tracker{
		alpha:   alpha,
		weights: make(map[string]Weight),
	}
}

// Snapshot returns an immutable copy of the current weights.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	copied := make(map[string]Weight, len(t.weights))
	for k, v := range t.weights {
		copied[k] = v
	}
	return Snapshot{Version: t.version, weights: copied}
}

// Apply commits one finalized round: signal true means the provider's record
// matched the final consensus within tolerance. The whole batch lands under a
// single lock, so concurrent rounds updating the same provider serialize here.
// weight' = alpha*signal + (1-alpha)*weight.
func (t *Tracker) Apply(signals map[string]bool) {
	if len(signals) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for provider, matched := range signals {
		signal := 0.0
		if matched {
			signal = 1.0
		}

		w, ok := t.weights[provider]
		if !ok {
			w = Weight{Provider: provider, Value: DefaultInitialWeight}
		}
		w.Value = t.alpha*signal + (1-t.alpha)*w.Value
		w.Samples++
		t.weights[provider] = w
	}
	t.version++
}

// All returns a copy of every tracked weight, for reporting.
func (t *Tracker) All() []Weight {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Weight, 0, len(t.weights))
	for _, w := range t.weights {
		out = append(out, w)
	}
	return out
}
