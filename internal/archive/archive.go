// Package archive keeps an audit trail of import runs and readiness
// snapshots in SQLite. The engine itself stays stateless; the HTTP layer
// records outcomes here after the fact.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/irb-copilot/internal/profileimport"
	"github.com/joelkehle/irb-copilot/internal/readiness"
)

const schema = `
CREATE TABLE IF NOT EXISTS import_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	organization    TEXT NOT NULL,
	profile_id      TEXT NOT NULL,
	confidence      REAL NOT NULL,
	confidence_band TEXT NOT NULL,
	candidate_count INTEGER NOT NULL,
	fetched_count   INTEGER NOT NULL,
	failed_count    INTEGER NOT NULL,
	signal_count    INTEGER NOT NULL,
	warnings        TEXT NOT NULL DEFAULT '[]',
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS readiness_snapshots (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_id       TEXT NOT NULL,
	advisor_ready    INTEGER NOT NULL,
	packet_ready     INTEGER NOT NULL,
	blocking_count   INTEGER NOT NULL,
	warning_count    INTEGER NOT NULL,
	next_steps       TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL
);
`

// Store is the SQLite-backed audit log.
type Store struct {
	db    *sqlx.DB
	clock func() time.Time
}

// Open creates or opens the archive database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ImportRun is one archived import outcome.
type ImportRun struct {
	ID             int64    `db:"id" json:"id"`
	Organization   string   `db:"organization" json:"organization"`
	ProfileID      string   `db:"profile_id" json:"profileId"`
	Confidence     float64  `db:"confidence" json:"confidence"`
	ConfidenceBand string   `db:"confidence_band" json:"confidenceBand"`
	CandidateCount int      `db:"candidate_count" json:"candidateCount"`
	FetchedCount   int      `db:"fetched_count" json:"fetchedCount"`
	FailedCount    int      `db:"failed_count" json:"failedCount"`
	SignalCount    int      `db:"signal_count" json:"signalCount"`
	WarningsJSON   string   `db:"warnings" json:"-"`
	Warnings       []string `db:"-" json:"warnings"`
	CreatedAt      string   `db:"created_at" json:"createdAt"`
}

// ReadinessSnapshot is one archived readiness verdict.
type ReadinessSnapshot struct {
	ID            int64    `db:"id" json:"id"`
	ProfileID     string   `db:"profile_id" json:"profileId"`
	AdvisorReady  bool     `db:"advisor_ready" json:"advisorReady"`
	PacketReady   bool     `db:"packet_ready" json:"packetReady"`
	BlockingCount int      `db:"blocking_count" json:"blockingCount"`
	WarningCount  int      `db:"warning_count" json:"warningCount"`
	NextStepsJSON string   `db:"next_steps" json:"-"`
	NextSteps     []string `db:"-" json:"nextSteps"`
	CreatedAt     string   `db:"created_at" json:"createdAt"`
}

// RecordImport archives an import result.
func (s *Store) RecordImport(ctx context.Context, organization string, res profileimport.Result) error {
	warnings, err := json.Marshal(res.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_runs
			(organization, profile_id, confidence, confidence_band,
			 candidate_count, fetched_count, failed_count, signal_count, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		organization, res.ProfileDraft.ID, res.Confidence, res.ConfidenceBand,
		res.Stats.CandidateSourceCount, res.Stats.FetchedSourceCount,
		res.Stats.FailedSourceCount, res.Stats.SignalCount,
		string(warnings), s.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// RecordReadiness archives a readiness verdict.
func (s *Store) RecordReadiness(ctx context.Context, profileID string, r readiness.Readiness) error {
	steps, err := json.Marshal(r.NextSteps)
	if err != nil {
		return fmt.Errorf("encode next steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readiness_snapshots
			(profile_id, advisor_ready, packet_ready, blocking_count, warning_count, next_steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profileID, boolInt(r.Summary.ReadyForAdvisorReview), boolInt(r.Summary.ReadyForIRBDraftPacket),
		r.Summary.BlockingCount, r.Summary.WarningCount,
		string(steps), s.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert readiness snapshot: %w", err)
	}
	return nil
}

// RecentImports returns the newest import runs, most recent first.
func (s *Store) RecentImports(ctx context.Context, limit int) ([]ImportRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []ImportRun
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, organization, profile_id, confidence, confidence_band,
		       candidate_count, fetched_count, failed_count, signal_count, warnings, created_at
		FROM import_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select import runs: %w", err)
	}
	for i := range rows {
		if err := json.Unmarshal([]byte(rows[i].WarningsJSON), &rows[i].Warnings); err != nil {
			rows[i].Warnings = nil
		}
	}
	return rows, nil
}

// RecentReadiness returns the newest readiness snapshots, most recent first.
func (s *Store) RecentReadiness(ctx context.Context, limit int) ([]ReadinessSnapshot, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []ReadinessSnapshot
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, profile_id, advisor_ready, packet_ready, blocking_count, warning_count, next_steps, created_at
		FROM readiness_snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select readiness snapshots: %w", err)
	}
	for i := range rows {
		if err := json.Unmarshal([]byte(rows[i].NextStepsJSON), &rows[i].NextSteps); err != nil {
			rows[i].NextSteps = nil
		}
	}
	return rows, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
