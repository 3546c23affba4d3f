package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// LedgerEntry records the outcome of one pipeline run.
type LedgerEntry struct {
	RunID            string
	Organism         string
	State            string
	Objective        string
	InitialObjective *float64
	RefinedObjective *float64
	AddedReactions   []string
	Error            string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Ledger is the SQLite-backed history of pipeline runs.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if needed) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("report: empty ledger path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; concurrent batch runs serialise on the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		organism TEXT NOT NULL,
		state TEXT NOT NULL,
		objective TEXT NOT NULL,
		initial_objective REAL,
		refined_objective REAL,
		added_reactions BLOB NOT NULL,
		error TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores one entry.
func (l *Ledger) Record(ctx context.Context, e LedgerEntry) error {
	added := e.AddedReactions
	if added == nil {
		added = []string{}
	}
	payload, err := json.Marshal(added)
	if err != nil {
		return fmt.Errorf("encode added reactions: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `INSERT INTO runs
		(id, organism, state, objective, initial_objective, refined_objective, added_reactions, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Organism, e.State, e.Objective,
		nullFloat(e.InitialObjective), nullFloat(e.RefinedObjective),
		payload, e.Error,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", e.RunID, err)
	}
	return nil
}

// List returns the runs of organism (all runs when empty), oldest first.
func (l *Ledger) List(ctx context.Context, organism string) ([]LedgerEntry, error) {
	query := `SELECT id, organism, state, objective, initial_objective, refined_objective,
		added_reactions, error, started_at, finished_at FROM runs`
	var args []any
	if organism != "" {
		query += ` WHERE organism = ?`
		args = append(args, organism)
	}
	query += ` ORDER BY started_at, id`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e                LedgerEntry
			initial, refined sql.NullFloat64
			payload          []byte
			started, done    string
		)
		if err := rows.Scan(&e.RunID, &e.Organism, &e.State, &e.Objective, &initial, &refined,
			&payload, &e.Error, &started, &done); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if initial.Valid {
			e.InitialObjective = &initial.Float64
		}
		if refined.Valid {
			e.RefinedObjective = &refined.Float64
		}
		if err := json.Unmarshal(payload, &e.AddedReactions); err != nil {
			return nil, fmt.Errorf("decode added reactions: %w", err)
		}
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("decode started_at: %w", err)
		}
		if e.FinishedAt, err = time.Parse(time.RFC3339Nano, done); err != nil {
			return nil, fmt.Errorf("decode finished_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
