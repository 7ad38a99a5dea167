// Package audit persists finished consensus rounds to a local sqlite file.
// Writes are best-effort from the engine's point of view: a failed insert is
// logged and the round still succeeds. Invalid responses are retained with
// their validation reason so excluded data stays inspectable.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/consensus-engine/internal/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS rounds (
	round_id      TEXT PRIMARY KEY,
	analysis_type TEXT NOT NULL,
	strategy_used TEXT NOT NULL,
	agreement     REAL NOT NULL,
	kappa         REAL NOT NULL,
	kappa_label   TEXT NOT NULL,
	confidence    REAL NOT NULL,
	quality       REAL NOT NULL,
	cost_usd      REAL NOT NULL,
	warnings      TEXT NOT NULL,
	final_json    TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
	round_id       TEXT NOT NULL REFERENCES rounds(round_id),
	provider       TEXT NOT NULL,
	model          TEXT NOT NULL,
	status         TEXT NOT NULL,
	invalid_reason TEXT NOT NULL,
	raw_text       TEXT NOT NULL,
	input_tokens   INTEGER NOT NULL,
	output_tokens  INTEGER NOT NULL,
	cost_usd       REAL NOT NULL,
	latency_ms     INTEGER NOT NULL,
	PRIMARY KEY (round_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_rounds_finished ON rounds(finished_at);
`

// Store writes rounds to sqlite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates (or opens) the audit database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "audit: open database")
	}
	// sqlite allows one writer at a time; the engine writes serially anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "audit: apply schema")
	}

	return &Store{
		db:  db,
		log: zap.L().With(zap.String("component", "audit_store")),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return eris.Wrap(err, "audit: close database")
	}
	return nil
}

// RecordRound inserts one finished round and all of its responses in a single
// transaction.
func (s *Store) RecordRound(ctx context.Context, res *model.ConsensusResult) error {
	finalJSON, err := json.Marshal(res.Final)
	if err != nil {
		return eris.Wrap(err, "audit: marshal final record")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "audit: begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (round_id, analysis_type, strategy_used, agreement,
			kappa, kappa_label, confidence, quality, cost_usd, warnings,
			final_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RoundID, string(res.AnalysisType), res.StrategyUsed, res.AgreementScore,
		res.Kappa.Value, res.Kappa.Interpretation, res.Confidence, res.QualityScore,
		res.Cost.TotalUSD, strings.Join(res.Warnings, ","),
		string(finalJSON), res.StartedAt.UTC(), res.FinishedAt.UTC())
	if err != nil {
		return eris.Wrap(err, "audit: insert round")
	}

	for provider, r := range res.Responses {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO responses (round_id, provider, model, status,
				invalid_reason, raw_text, input_tokens, output_tokens,
				cost_usd, latency_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RoundID, provider, r.Model, string(r.Status),
			r.InvalidReason, r.RawText, r.InputTokens, r.OutputTokens,
			r.CostUSD, r.Latency.Milliseconds())
		if err != nil {
			return eris.Wrap(err, "audit: insert response")
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "audit: commit")
	}
	return nil
}

// RoundSummary is one row of the audit log, newest first.
type RoundSummary struct {
	RoundID      string    `json:"round_id"`
	AnalysisType string    `json:"analysis_type"`
	StrategyUsed string    `json:"strategy_used"`
	Agreement    float64   `json:"agreement"`
	Kappa        float64   `json:"kappa"`
	Confidence   float64   `json:"confidence"`
	CostUSD      float64   `json:"cost_usd"`
	Warnings     []string  `json:"warnings,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// RecentRounds returns up to limit finished rounds, newest first.
func (s *Store) RecentRounds(ctx context.Context, limit int) ([]RoundSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, analysis_type, strategy_used, agreement, kappa,
			confidence, cost_usd, warnings, finished_at
		FROM rounds ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: query rounds")
	}
	defer rows.Close()

	var out []RoundSummary
	for rows.Next() {
		var r RoundSummary
		var warnings string
		if err := rows.Scan(&r.RoundID, &r.AnalysisType, &r.StrategyUsed,
			&r.Agreement, &r.Kappa, &r.Confidence, &r.CostUSD,
			&warnings, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "audit: scan round")
		}
		if warnings != "" {
			r.Warnings = strings.Split(warnings, ",")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "audit: iterate rounds")
	}
	return out, nil
}
