// Package consensus orchestrates one analysis round end to end: parallel
// dispatch, validation, agreement statistics, strategy reduction with
// fallback escalation, cost accounting, and post-round weight updates.
package consensus

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/consensus-engine/internal/cost"
	"github.com/sells-group/consensus-engine/internal/kappa"
	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/parser"
	"github.com/sells-group/consensus-engine/internal/provider"
	"github.com/sells-group/consensus-engine/internal/strategy"
	"github.com/sells-group/consensus-engine/internal/weights"
)

// Auditor persists finished rounds. Writes are best-effort: the engine logs
// audit failures and never fails a round on them.
type Auditor interface {
	RecordRound(ctx context.Context, res *model.ConsensusResult) error
}

// Options are the engine's round defaults, normally sourced from config.
type Options struct {
	DefaultStrategy    strategy.Kind
	FallbackChain      []strategy.Kind
	MinProviders       int
	AgreementThreshold float64
	BucketWidth        float64
	RoundTimeout       time.Duration
}

// DefaultOptions mirror the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		DefaultStrategy:    strategy.WeightedAverage,
		FallbackChain:      []strategy.Kind{strategy.MajorityVote, strategy.BestSingleResponse},
		MinProviders:       2,
		AgreementThreshold: 0.6,
		BucketWidth:        kappa.DefaultBucketWidth,
		RoundTimeout:       60 * time.Second,
	}
}

// Engine runs consensus rounds. Safe for concurrent use; the weight tracker
// is the only shared mutable state and serializes its own updates.
type Engine struct {
	registry   *provider.Registry
	tracker    *weights.Tracker
	accountant *cost.Accountant
	auditor    Auditor
	opts       Options
	log        *zap.Logger
}

// NewEngine wires a consensus engine. auditor may be nil.
func NewEngine(reg *provider.Registry, tracker *weights.Tracker, accountant *cost.Accountant, auditor Auditor, opts Options) *Engine {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = strategy.WeightedAverage
	}
	if opts.MinProviders <= 0 {
		opts.MinProviders = 2
	}
	if opts.AgreementThreshold <= 0 {
		opts.AgreementThreshold = strategy.DefaultThreshold
	}
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = kappa.DefaultBucketWidth
	}
	if opts.RoundTimeout <= 0 {
		opts.RoundTimeout = 60 * time.Second
	}
	return &Engine{
		registry:   reg,
		tracker:    tracker,
		accountant: accountant,
		auditor:    auditor,
		opts:       opts,
		log:        zap.L().With(zap.String("component", "consensus_engine")),
	}
}

// Analyze runs one consensus round. Only ErrConfiguration and ErrNoConsensus
// cross this boundary; individual provider failures are response metadata.
func (e *Engine) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.ConsensusResult, error) {
	roundID := uuid.NewString()
	started := time.Now()
	log := e.log.With(
		zap.String("round_id", roundID),
		zap.String("analysis_type", string(req.AnalysisType)))

	schema, chain, names, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	dispatchable, err := e.registry.Resolve(names)
	if err != nil {
		return nil, eris.Wrap(ErrConfiguration, err.Error())
	}
	if len(dispatchable) == 0 {
		return nil, eris.Wrap(ErrConfiguration, "no dispatchable providers")
	}

	var warnings []string
	if len(dispatchable) < len(names) {
		warnings = append(warnings, model.WarnReducedProviders)
	}

	prompt := buildPrompt(req, schema)
	snapshot := e.tracker.Snapshot()

	responses := e.dispatch(ctx, dispatchable, prompt)
	e.price(prompt, responses)

	rated := e.validateResponses(responses, schema)
	log.Info("responses collected",
		zap.Int("dispatched", len(dispatchable)),
		zap.Int("valid", len(rated)))

	if len(rated) < e.minProviders(req) && !hasWarning(warnings, model.WarnReducedProviders) {
		warnings = append(warnings, model.WarnReducedProviders)
	}
	if len(rated) == 1 {
		warnings = append(warnings, model.WarnSingleProvider)
		// A lone record has nothing to agree with, and any averaging or
		// voting strategy would trivially succeed on it at full confidence.
		// The chain collapses to the discounted single-response path.
		chain = []strategy.Kind{strategy.BestSingleResponse}
	}
	for _, r := range responses {
		if r.Status == model.StatusOK && !r.Priced {
			warnings = append(warnings, model.WarnUnpricedModel)
			break
		}
	}

	records := make([]model.ParsedRecord, len(rated))
	for i, r := range rated {
		records[i] = r.Record
	}
	stats := kappa.Compute(records, schema, e.opts.BucketWidth)

	outcome, used, attempts, err := e.reduce(chain, strategy.Input{
		Schema:      schema,
		Records:     rated,
		Weights:     snapshot,
		Threshold:   e.threshold(req),
		BucketWidth: e.opts.BucketWidth,
		// A fallback_cascade step cascades over the rest of the chain.
		Cascade: chain[1:],
	})
	if err != nil {
		log.Warn("round failed", zap.Int("attempts", len(attempts)))
		return nil, &NoConsensusError{RoundID: roundID, Attempts: attempts}
	}

	if len(attempts) > 1 {
		warnings = append(warnings, model.WarnFallbackApplied)
	}
	if used == strategy.BestSingleResponse {
		warnings = append(warnings, model.WarnBestSingle)
	}

	result := e.assemble(roundID, req, responses, rated, outcome, stats, used, attempts, warnings, started)

	// Weight updates land strictly after the round is finalized so the
	// snapshot read above can never observe its own round.
	e.tracker.Apply(e.signals(rated, outcome.Record, schema))

	if e.auditor != nil {
		if err := e.auditor.RecordRound(ctx, result); err != nil {
			log.Warn("audit write failed", zap.Error(err))
		}
	}

	log.Info("round finished",
		zap.String("strategy", string(used)),
		zap.Float64("agreement", result.AgreementScore),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("cost_usd", result.Cost.TotalUSD))
	return result, nil
}

// validate performs every pre-dispatch check and resolves round parameters.
func (e *Engine) validate(req model.AnalysisRequest) (*model.Schema, []strategy.Kind, []string, error) {
	if _, err := model.ParseAnalysisType(string(req.AnalysisType)); err != nil {
		return nil, nil, nil, eris.Wrap(ErrConfiguration, err.Error())
	}
	schema, err := model.SchemaFor(req.AnalysisType)
	if err != nil {
		return nil, nil, nil, eris.Wrap(ErrConfiguration, err.Error())
	}

	first := e.opts.DefaultStrategy
	if req.Strategy != "" {
		first, err = strategy.ParseKind(req.Strategy)
		if err != nil {
			return nil, nil, nil, eris.Wrap(ErrConfiguration, err.Error())
		}
	}

	fallback := e.opts.FallbackChain
	if len(req.FallbackChain) > 0 {
		fallback = make([]strategy.Kind, 0, len(req.FallbackChain))
		for _, s := range req.FallbackChain {
			k, err := strategy.ParseKind(s)
			if err != nil {
				return nil, nil, nil, eris.Wrap(ErrConfiguration, err.Error())
			}
			fallback = append(fallback, k)
		}
	}

	// The chain starts at the requested strategy; repeats are dropped so
	// escalation always makes progress.
	chain := []strategy.Kind{first}
	for _, k := range fallback {
		if !containsKind(chain, k) {
			chain = append(chain, k)
		}
	}

	names := req.Providers
	if len(names) == 0 {
		names = e.registry.Names()
	}
	if len(names) == 0 {
		return nil, nil, nil, eris.Wrap(ErrConfiguration, "no providers configured")
	}
	if len(names) < e.minProviders(req) && e.minProviders(req) > 1 {
		// A single-provider request is allowed only when asked for explicitly.
		if len(req.Providers) == 0 {
			return nil, nil, nil, eris.Wrapf(ErrConfiguration,
				"%d providers configured, %d required", len(names), e.minProviders(req))
		}
	}
	return schema, chain, names, nil
}

// dispatch fans out one call per provider under the round deadline. A
// provider that outlives the deadline is recorded as timed out and its late
// result discarded; the round always terminates.
func (e *Engine) dispatch(ctx context.Context, names []string, prompt string) map[string]model.ProviderResponse {
	roundCtx, cancel := context.WithTimeout(ctx, e.opts.RoundTimeout)
	defer cancel()

	results := make([]model.ProviderResponse, len(names))
	g, gctx := errgroup.WithContext(roundCtx)
	for i, name := range names {
		g.Go(func() error {
			done := make(chan model.ProviderResponse, 1)
			go func() {
				done <- e.registry.Call(gctx, name, prompt, provider.ModelConfig{System: systemPrompt})
			}()
			select {
			case resp := <-done:
				results[i] = resp
			case <-gctx.Done():
				results[i] = model.ProviderResponse{
					Provider: name,
					Status:   model.StatusTimeout,
					Error:    "round deadline exceeded",
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]model.ProviderResponse, len(results))
	for _, r := range results {
		out[r.Provider] = r
	}
	return out
}

// price attaches cost to every response. Providers that do not report usage
// are estimated from text length; unknown models stay unpriced at zero.
func (e *Engine) price(prompt string, responses map[string]model.ProviderResponse) {
	for name, r := range responses {
		if r.Status != model.StatusOK {
			continue
		}
		in, out := r.InputTokens, r.OutputTokens
		if in == 0 {
			in = cost.EstimateTokens(prompt)
		}
		if out == 0 {
			out = cost.EstimateTokens(r.RawText)
		}
		ch := e.accountant.Price(r.Provider, r.Model, in, out)
		r.InputTokens = ch.InputTokens
		r.OutputTokens = ch.OutputTokens
		r.CostUSD = ch.USD
		r.Priced = ch.Priced
		responses[name] = r
	}
}

// validateResponses parses each ok response against the schema. Failures are
// kept on the response for audit but excluded from every statistic.
func (e *Engine) validateResponses(responses map[string]model.ProviderResponse, schema *model.Schema) []strategy.Rated {
	var rated []strategy.Rated
	for name, r := range responses {
		if r.Status != model.StatusOK {
			continue
		}
		rec, invalid := parser.Parse(r.RawText, schema)
		if invalid != nil {
			r.InvalidReason = invalid.Reason
			responses[name] = r
			continue
		}
		r.Parsed = &rec
		responses[name] = r
		rated = append(rated, strategy.Rated{Provider: name, Record: rec})
	}
	sort.Slice(rated, func(i, j int) bool { return rated[i].Provider < rated[j].Provider })
	return rated
}

// reduce walks the fallback chain: Reducing -> Succeeded, or Escalating back
// into Reducing on no-consensus, until the chain is exhausted.
func (e *Engine) reduce(chain []strategy.Kind, in strategy.Input) (strategy.Outcome, strategy.Kind, []model.ChainAttempt, error) {
	attempts := make([]model.ChainAttempt, 0, len(chain))
	for _, kind := range chain {
		outcome, err := strategy.Reduce(kind, in)
		if err == nil {
			attempts = append(attempts, model.ChainAttempt{Strategy: string(kind), Success: true})
			return outcome, kind, attempts, nil
		}
		attempts = append(attempts, model.ChainAttempt{
			Strategy: string(kind),
			Reason:   eris.Cause(err).Error(),
		})
	}
	return strategy.Outcome{}, "", attempts, ErrNoConsensus
}

// signals derives the post-round weight update: true iff the provider's
// comparable fields all match the final verdict after bucketing/folding.
func (e *Engine) signals(rated []strategy.Rated, final model.ParsedRecord, schema *model.Schema) map[string]bool {
	signals := make(map[string]bool, len(rated))
	for _, r := range rated {
		signals[r.Provider] = matchesFinal(r.Record, final, schema, e.opts.BucketWidth)
	}
	return signals
}

func matchesFinal(rec, final model.ParsedRecord, schema *model.Schema, width float64) bool {
	for _, f := range schema.Required() {
		if f.Kind != model.KindNumber && f.Kind != model.KindCategory {
			continue
		}
		fv, ok1 := final.Get(f.Key)
		rv, ok2 := rec.Get(f.Key)
		if !ok1 || !ok2 {
			return false
		}
		fl, _ := kappa.Label(fv, width)
		rl, _ := kappa.Label(rv, width)
		if fl != rl {
			return false
		}
	}
	return true
}

func (e *Engine) assemble(
	roundID string,
	req model.AnalysisRequest,
	responses map[string]model.ProviderResponse,
	rated []strategy.Rated,
	outcome strategy.Outcome,
	stats model.KappaStatistics,
	used strategy.Kind,
	attempts []model.ChainAttempt,
	warnings []string,
	started time.Time,
) *model.ConsensusResult {
	participants := make([]string, len(rated))
	for i, r := range rated {
		participants[i] = r.Provider
	}

	breakdown := model.CostBreakdown{PerProvider: make(map[string]float64, len(responses))}
	for name, r := range responses {
		breakdown.PerProvider[name] = r.CostUSD
		breakdown.TotalUSD += r.CostUSD
	}

	return &model.ConsensusResult{
		RoundID:                roundID,
		AnalysisType:           req.AnalysisType,
		Final:                  outcome.Record,
		ParticipatingProviders: participants,
		Responses:              responses,
		AgreementScore:         outcome.AgreementScore,
		Kappa:                  stats,
		Confidence:             outcome.Confidence,
		QualityScore:           qualityScore(outcome, stats),
		StrategyUsed:           string(used),
		FallbackChain:          attempts,
		Warnings:               warnings,
		Cost:                   breakdown,
		StartedAt:              started,
		FinishedAt:             time.Now(),
	}
}

// qualityScore folds agreement, confidence and chance-corrected agreement
// into one [0,1] figure. Insufficient kappa contributes zero.
func qualityScore(outcome strategy.Outcome, stats model.KappaStatistics) float64 {
	k := 0.0
	if !stats.Insufficient {
		k = math.Max(0, stats.Value)
	}
	q := 0.4*outcome.AgreementScore + 0.4*outcome.Confidence + 0.2*k
	return math.Min(1, math.Max(0, q))
}

func (e *Engine) minProviders(req model.AnalysisRequest) int {
	if req.MinProviders > 0 {
		return req.MinProviders
	}
	return e.opts.MinProviders
}

func (e *Engine) threshold(req model.AnalysisRequest) float64 {
	if req.AgreementThreshold > 0 {
		return req.AgreementThreshold
	}
	return e.opts.AgreementThreshold
}

func containsKind(kinds []strategy.Kind, k strategy.Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

func hasWarning(warnings []string, flag string) bool {
	for _, w := range warnings {
		if w == flag {
			return true
		}
	}
	return false
}
