package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/docser/config"
	"github.com/mohammad-safakhou/docser/internal/swarm"
)

// ErrNotFound is returned when a run id matches nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the Postgres run archive: every finished pipeline run and its
// collaboration steps, for later inspection.
type Store struct {
	DB *sql.DB
}

// New opens the archive and ensures its schema.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			verdict TEXT NOT NULL DEFAULT '',
			thinking TEXT NOT NULL DEFAULT '',
			report TEXT NOT NULL DEFAULT '',
			answers JSONB NOT NULL DEFAULT '[]',
			research_rounds INT NOT NULL DEFAULT 0,
			remediation_cycles INT NOT NULL DEFAULT 0,
			debate_rounds INT NOT NULL DEFAULT 0,
			system_override BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			payload JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS run_steps_run_id_idx ON run_steps (run_id, at)`,
		`CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC)`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun archives a finished run and its steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, res *swarm.RunResult) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, query, status, intent, verdict, thinking, report, answers, research_rounds, remediation_cycles, debate_rounds, system_override, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, verdict=EXCLUDED.verdict, thinking=EXCLUDED.thinking,
			report=EXCLUDED.report, answers=EXCLUDED.answers,
			research_rounds=EXCLUDED.research_rounds, remediation_cycles=EXCLUDED.remediation_cycles,
			debate_rounds=EXCLUDED.debate_rounds, system_override=EXCLUDED.system_override,
			completed_at=EXCLUDED.completed_at`,
		res.ID, res.Query, string(res.Status), string(res.Intent), string(res.Verdict),
		res.Thinking, res.Report, answers, res.ResearchRounds, res.RemediationCycles,
		res.DebateRounds, res.SystemOverride, res.StartedAt, res.CompletedAt)
	if err != nil {
		return err
	}

	for _, st := range res.Steps {
		payload, err := json.Marshal(st.Payload)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_steps (id, run_id, kind, at, payload)
			VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
			st.ID, res.ID, string(st.Kind), st.At, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRun loads one archived run without its steps.
func (s *Store) GetRun(ctx context.Context, id string) (*swarm.RunResult, error) {
	var res swarm.RunResult
	var answers []byte
	err := s.DB.QueryRowContext(ctx, `SELECT id, query, status, intent, verdict, thinking, report, answers,
		research_rounds, remediation_cycles, debate_rounds, system_override, started_at, completed_at
		FROM runs WHERE id=$1`, id).Scan(
		&res.ID, &res.Query, &res.Status, &res.Intent, &res.Verdict, &res.Thinking, &res.Report, &answers,
		&res.ResearchRounds, &res.RemediationCycles, &res.DebateRounds, &res.SystemOverride,
		&res.StartedAt, &res.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &res.Answers); err != nil {
		return nil, err
	}
	return &res, nil
}

// RunSummary is one archive listing row.
type RunSummary struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	Verdict   string    `json:"verdict"`
	StartedAt time.Time `json:"started_at"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, query, status, verdict, started_at
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Query, &r.Status, &r.Verdict, &r.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSteps returns a run's collaboration steps in chronological order.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]swarm.CollaborationStep, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, kind, at, payload FROM run_steps WHERE run_id=$1 ORDER BY at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []swarm.CollaborationStep
	for rows.Next() {
		var st swarm.CollaborationStep
		var payload []byte
		if err := rows.Scan(&st.ID, &st.Kind, &st.At, &payload); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			var v interface{}
			if err := json.Unmarshal(payload, &v); err == nil {
				st.Payload = v
			}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its steps.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
