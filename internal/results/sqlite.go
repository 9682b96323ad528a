package results

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// migrations[v] moves a database from user_version v to v+1.
var migrations = []string{
	schemaSQL,
	`CREATE INDEX IF NOT EXISTS idx_year_values_run_year ON year_values(run_id, year)`,
}

var currentSchemaVersion = len(migrations)

// Applied by the driver on every connection it opens.
const connParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1"

const (
	categorySoftFailure = "soft_failure"
	categorySummary     = "summary"
)

// RunInfo identifies one simulation run in the results database.
type RunInfo struct {
	ID        string
	Seed      uint64
	StartYear int
	EndYear   int
	Seq       int64 // 1-based insertion order of the run
}

// SQLiteSink appends year results to a SQLite database in WAL mode, so the
// database can be read by `microsim results` while a run is still writing.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens the results database at path, creating it when missing,
// and migrates it to the current schema version.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path+"?"+connParams)
	if err != nil {
		return nil, fmt.Errorf("open results %s: %w", path, err)
	}
	// The finish phase is the only writer.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		return nil, errors.Join(fmt.Errorf("open results %s: %w", path, err), db.Close())
	}
	return &SQLiteSink{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	for ; version < currentSchemaVersion; version++ {
		if err := migrateStep(ctx, db, version); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
	}
	return nil
}

// migrateStep runs one migration and bumps user_version in the same transaction.
func migrateStep(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// DB exposes the handle for ad-hoc reads.
func (s *SQLiteSink) DB() *sql.DB { return s.db }

// BeginRun records a new run. Year results for the run may be written afterwards.
func (s *SQLiteSink) BeginRun(ctx context.Context, run RunInfo) error {
	if run.ID == "" {
		return errors.New("begin run: empty run id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seed, start_year, end_year, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs))
	`, run.ID, int64(run.Seed), run.StartYear, run.EndYear)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// WriteYear inserts one year's tallies atomically.
// Writing the same (run, year) twice fails on the primary key: results are append-only.
func (s *SQLiteSink) WriteYear(ctx context.Context, r YearResult) error {
	if r.RunID == "" {
		return errors.New("write year: result carries no run id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write year %d: begin tx: %w", r.Year, err)
	}
	defer tx.Rollback() // No-op if committed

	for i, t := range r.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO year_events (run_id, year, kind, attempted, succeeded, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.RunID, r.Year, t.Kind.String(), t.Attempted, t.Succeeded, i); err != nil {
			return fmt.Errorf("write year %d: event %s: %w", r.Year, t.Kind, err)
		}
	}
	if err := insertValues(ctx, tx, r, categorySoftFailure, r.SoftFailures); err != nil {
		return err
	}
	if err := insertValues(ctx, tx, r, categorySummary, r.Summaries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write year %d: commit: %w", r.Year, err)
	}
	return nil
}

func insertValues(ctx context.Context, tx *sql.Tx, r YearResult, category string, values []diag.Named) error {
	for i, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO year_values (run_id, year, category, name, value, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.RunID, r.Year, category, v.Name, v.Value, i); err != nil {
			return fmt.Errorf("write year %d: %s %q: %w", r.Year, category, v.Name, err)
		}
	}
	return nil
}

// ReadYear loads one year's result back. Returns sql.ErrNoRows when nothing was written.
func (s *SQLiteSink) ReadYear(ctx context.Context, runID string, year int) (YearResult, error) {
	r := YearResult{RunID: runID, Year: year}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, attempted, succeeded FROM year_events
		WHERE run_id = ? AND year = ?
		ORDER BY position ASC
	`, runID, year)
	if err != nil {
		return YearResult{}, fmt.Errorf("read year %d: %w", year, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var t diag.KindTally
		if err := rows.Scan(&name, &t.Attempted, &t.Succeeded); err != nil {
			return YearResult{}, fmt.Errorf("read year %d: scan: %w", year, err)
		}
		if t.Kind, err = event.ParseKind(name); err != nil {
			return YearResult{}, fmt.Errorf("read year %d: %w", year, err)
		}
		r.Events = append(r.Events, t)
	}
	if err := rows.Err(); err != nil {
		return YearResult{}, fmt.Errorf("read year %d: %w", year, err)
	}

	if r.SoftFailures, err = s.readValues(ctx, runID, year, categorySoftFailure); err != nil {
		return YearResult{}, err
	}
	if r.Summaries, err = s.readValues(ctx, runID, year, categorySummary); err != nil {
		return YearResult{}, err
	}
	if r.Events == nil && r.SoftFailures == nil && r.Summaries == nil {
		return YearResult{}, sql.ErrNoRows
	}
	return r, nil
}

func (s *SQLiteSink) readValues(ctx context.Context, runID string, year int, category string) ([]diag.Named, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM year_values
		WHERE run_id = ? AND year = ? AND category = ?
		ORDER BY position ASC
	`, runID, year, category)
	if err != nil {
		return nil, fmt.Errorf("read %s values: %w", category, err)
	}
	defer rows.Close()

	var out []diag.Named
	for rows.Next() {
		var n diag.Named
		if err := rows.Scan(&n.Name, &n.Value); err != nil {
			return nil, fmt.Errorf("read %s values: scan: %w", category, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Runs lists recorded runs in insertion order.
func (s *SQLiteSink) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seed, start_year, end_year, seq FROM runs
		ORDER BY seq ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var ri RunInfo
		var seed int64
		if err := rows.Scan(&ri.ID, &seed, &ri.StartYear, &ri.EndYear, &ri.Seq); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		ri.Seed = uint64(seed)
		out = append(out, ri)
	}
	return out, rows.Err()
}
