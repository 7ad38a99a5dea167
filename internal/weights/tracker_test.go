package weights

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotDefaults(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0.2)
	snap := tr.Snapshot()
	assert.InDelta(t, DefaultInitialWeight, snap.Get("anthropic"), 0.001)
	assert.EqualValues(t, 0, snap.Version)
}

func TestApplyEMA(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0.2)

	// Miss: 0.2*0 + 0.8*1.0 = 0.8
	tr.Apply(map[string]bool{"anthropic": false})
	assert.InDelta(t, 0.8, tr.Snapshot().Get("anthropic"), 0.001)

	// Hit: 0.2*1 + 0.8*0.8 = 0.84
	tr.Apply(map[string]bool{"anthropic": true})
	assert.InDelta(t, 0.84, tr.Snapshot().Get("anthropic"), 0.001)
}

func TestApplyBumpsVersion(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0.2)

	tr.Apply(map[string]bool{"a": true, "b": false})
	assert.EqualValues(t, 1, tr.Snapshot().Version)

	tr.Apply(nil) // empty batch is a no-op
	assert.EqualValues(t, 1, tr.Snapshot().Version)

	tr.Apply(map[string]bool{"a": true})
	assert.EqualValues(t, 2, tr.Snapshot().Version)
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0.2)
	tr.Apply(map[string]bool{"a": false})

	snap := tr.Snapshot()
	before := snap.Get("a")

	// A later round's commit must not leak into the earlier snapshot.
	tr.Apply(map[string]bool{"a": true})
	assert.InDelta(t, before, snap.Get("a"), 0.0001)
	assert.Greater(t, tr.Snapshot().Get("a"), before)
}

func TestConcurrentApplySerializes(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0.5)

	const rounds = 100
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(hit bool) {
			defer wg.Done()
			tr.Apply(map[string]bool{"shared": hit})
		}(i%2 == 0)
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.EqualValues(t, rounds, snap.Version)

	all := tr.All()
	assert.Len(t, all, 1)
	assert.Equal(t, rounds, all[0].Samples)
	// EMA of bounded signals stays within the signal range.
	assert.GreaterOrEqual(t, snap.Get("shared"), 0.0)
	assert.LessOrEqual(t, snap.Get("shared"), 1.0)
}

func TestBadAlphaFallsBack(t *testing.T) {
	t.Parallel()
	tr := NewTracker(-3)
	tr.Apply(map[string]bool{"a": false})
	// DefaultAlpha 0.2 → 0.8 after one miss.
	assert.InDelta(t, 0.8, tr.Snapshot().Get("a"), 0.001)
}
