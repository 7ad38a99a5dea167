package consensus

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/consensus-engine/internal/model"
)

// ErrConfiguration covers requests the engine refuses before dispatching
// anything: unknown analysis types, unknown providers or strategies, or a
// provider set below the configured minimum.
var ErrConfiguration = eris.New("consensus: invalid configuration")

// ErrNoConsensus is the sentinel matched by errors.Is against a
// NoConsensusError. Provider and validation failures never cross the engine
// boundary directly; they surface as response metadata on the round.
var ErrNoConsensus = eris.New("consensus: no consensus reached")

// NoConsensusError reports an exhausted fallback chain. It carries every
// attempted step so callers can see how the round escalated before failing.
type NoConsensusError struct {
	RoundID  string
	Attempts []model.ChainAttempt
}

func (e *NoConsensusError) Error() string {
	steps := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		steps[i] = a.Strategy
	}
	return fmt.Sprintf("consensus: no consensus reached after %d attempts (%s)",
		len(e.Attempts), strings.Join(steps, " -> "))
}

// Is lets errors.Is(err, ErrNoConsensus) match the typed error.
func (e *NoConsensusError) Is(target error) bool { return target == ErrNoConsensus }
