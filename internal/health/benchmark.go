package health

import (
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/consensus-engine/internal/kappa"
	"github.com/sells-group/consensus-engine/internal/model"
	"github.com/sells-group/consensus-engine/internal/strategy"
	"github.com/sells-group/consensus-engine/internal/weights"
)

// Dataset is a labeled benchmark file: pre-parsed provider records grouped
// into cases, replayed through every strategy without any network calls.
type Dataset struct {
	Cases []Case `yaml:"cases"`
}

// Case is one replayed round.
type Case struct {
	Name         string       `yaml:"name"`
	AnalysisType string       `yaml:"analysis_type"`
	Records      []CaseRecord `yaml:"records"`
}

// CaseRecord is one provider's pre-parsed record.
type CaseRecord struct {
	Provider string         `yaml:"provider"`
	Fields   map[string]any `yaml:"fields"`
}

// StrategyReport aggregates one strategy's performance over a dataset.
type StrategyReport struct {
	Strategy      string  `json:"strategy"`
	Cases         int     `json:"cases"`
	Successes     int     `json:"successes"`
	AvgAgreement  float64 `json:"avg_agreement"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyUS  int64   `json:"avg_latency_us"`
}

// LoadDataset reads and validates a yaml benchmark file.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "health: read dataset")
	}
	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, eris.Wrap(err, "health: parse dataset")
	}
	if len(ds.Cases) == 0 {
		return nil, eris.New("health: dataset has no cases")
	}
	for _, c := range ds.Cases {
		if _, err := model.ParseAnalysisType(c.AnalysisType); err != nil {
			return nil, eris.Wrapf(err, "health: case %q", c.Name)
		}
	}
	return &ds, nil
}

// toRecord converts a yaml field map into a typed record using the schema to
// decide each field's kind.
func toRecord(fields map[string]any, schema *model.Schema) model.ParsedRecord {
	rec := model.NewParsedRecord()
	for key, raw := range fields {
		spec := schema.Field(key)
		if spec == nil {
			continue
		}
		switch spec.Kind {
		case model.KindNumber:
			switch n := raw.(type) {
			case int:
				rec.Fields[key] = model.NumberValue(float64(n))
			case float64:
				rec.Fields[key] = model.NumberValue(n)
			}
		case model.KindCategory:
			if s, ok := raw.(string); ok {
				rec.Fields[key] = model.CategoryValue(s)
			}
		case model.KindText:
			if s, ok := raw.(string); ok {
				rec.Fields[key] = model.TextValue(s)
			}
		case model.KindList:
			if items, ok := raw.([]any); ok {
				list := make([]string, 0, len(items))
				for _, it := range items {
					if s, ok := it.(string); ok {
						list = append(list, s)
					}
				}
				rec.Fields[key] = model.ListValue(list)
			}
		}
	}
	return rec
}

// Benchmark replays every dataset case through every strategy with uniform
// weights and reports per-strategy aggregates sorted by average agreement.
func Benchmark(ds *Dataset, bucketWidth float64) ([]StrategyReport, error) {
	if bucketWidth <= 0 {
		bucketWidth = kappa.DefaultBucketWidth
	}
	snapshot := weights.NewTracker(0).Snapshot()

	reports := make([]StrategyReport, 0, len(strategy.Kinds()))
	for _, kind := range strategy.Kinds() {
		rep := StrategyReport{Strategy: string(kind)}
		var totalLatency time.Duration

		for _, c := range ds.Cases {
			schema, err := model.SchemaFor(model.AnalysisType(c.AnalysisType))
			if err != nil {
				return nil, err
			}

			rated := make([]strategy.Rated, 0, len(c.Records))
			for _, r := range c.Records {
				rated = append(rated, strategy.Rated{
					Provider: r.Provider,
					Record:   toRecord(r.Fields, schema),
				})
			}

			rep.Cases++
			start := time.Now()
			outcome, err := strategy.Reduce(kind, strategy.Input{
				Schema:      schema,
				Records:     rated,
				Weights:     snapshot,
				BucketWidth: bucketWidth,
			})
			totalLatency += time.Since(start)
			if err != nil {
				continue
			}
			rep.Successes++
			rep.AvgAgreement += outcome.AgreementScore
			rep.AvgConfidence += outcome.Confidence
		}

		if rep.Successes > 0 {
			rep.AvgAgreement /= float64(rep.Successes)
			rep.AvgConfidence /= float64(rep.Successes)
		}
		if rep.Cases > 0 {
			rep.AvgLatencyUS = totalLatency.Microseconds() / int64(rep.Cases)
		}
		reports = append(reports, rep)
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].AvgAgreement != reports[j].AvgAgreement {
			return reports[i].AvgAgreement > reports[j].AvgAgreement
		}
		return reports[i].Strategy < reports[j].Strategy
	})
	return reports, nil
}
