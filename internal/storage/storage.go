// Package storage provides SQLite-backed persistence for price history and
// the journal of analyst and resolver runs.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/solsignal/internal/history"
	"github.com/rewired-gh/solsignal/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/solsignal/state.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "solsignal", "state.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			asset      TEXT PRIMARY KEY,
			samples    TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analyst_runs (
			id             TEXT PRIMARY KEY,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER NOT NULL,
			dry_run        INTEGER NOT NULL DEFAULT 0,
			prices_fetched INTEGER NOT NULL,
			candidates     INTEGER NOT NULL,
			published      INTEGER NOT NULL,
			failed         INTEGER NOT NULL,
			aborted        INTEGER NOT NULL DEFAULT 0,
			report         TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS resolver_runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			scanned     INTEGER NOT NULL,
			resolved    INTEGER NOT NULL,
			lost_races  INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			report      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyst_runs_started ON analyst_runs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_resolver_runs_started ON resolver_runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveHistory replaces the stored history with the contents of book in a
// single transaction.
func (s *Storage) SaveHistory(book *history.Book) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM price_history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	now := time.Now().UnixNano()
	for _, asset := range book.Assets() {
		samples, err := json.Marshal(book.Samples(asset))
		if err != nil {
			return fmt.Errorf("failed to marshal history for %s: %w", asset, err)
		}
		if _, err := tx.Exec(`INSERT INTO price_history (asset, samples, updated_at) VALUES (?,?,?)`,
			asset, string(samples), now); err != nil {
			return fmt.Errorf("failed to save history for %s: %w", asset, err)
		}
	}
	return tx.Commit()
}

// LoadHistory rebuilds a book from the stored samples. A fresh database yields
// an empty book.
func (s *Storage) LoadHistory(capacity int) (*history.Book, error) {
	rows, err := s.db.Query(`SELECT asset, samples FROM price_history`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	book := history.NewBook(capacity)
	for rows.Next() {
		var asset, raw string
		if err := rows.Scan(&asset, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		var samples []history.Sample
		if err := json.Unmarshal([]byte(raw), &samples); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history for %s: %w", asset, err)
		}
		book.Restore(asset, samples)
	}
	return book, rows.Err()
}

// RecordRun journals an analyst run and prunes the journal to maxRuns.
func (s *Storage) RecordRun(r *models.RunReport) error {
	report, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO analyst_runs
			(id, started_at, finished_at, dry_run, prices_fetched, candidates,
			 published, failed, aborted, report)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), boolToInt(r.DryRun),
		r.PricesFetched, r.Candidates, len(r.Published), r.Failed, boolToInt(r.Aborted),
		string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if err := rotate(tx, "analyst_runs", s.maxRuns); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentRuns returns up to k analyst runs, newest first.
func (s *Storage) RecentRuns(k int) ([]models.RunReport, error) {
	rows, err := s.db.Query(`SELECT report FROM analyst_runs ORDER BY started_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.RunReport{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var r models.RunReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordResolution journals a resolver run and prunes the journal to maxRuns.
func (s *Storage) RecordResolution(r *models.ResolutionReport) error {
	report, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution report: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO resolver_runs
			(id, started_at, finished_at, scanned, resolved, lost_races, failed, report)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.ID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.Scanned,
		len(r.Resolved), r.LostRaces, r.Failed, string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}
	if err := rotate(tx, "resolver_runs", s.maxRuns); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentResolutions returns up to k resolver runs, newest first.
func (s *Storage) RecentResolutions(k int) ([]models.ResolutionReport, error) {
	rows, err := s.db.Query(`SELECT report FROM resolver_runs ORDER BY started_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	reports := []models.ResolutionReport{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		var r models.ResolutionReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resolution: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// rotate keeps at most keep newest rows of table by started_at.
func rotate(tx *sql.Tx, table string, keep int) error {
	if keep < 1 {
		return nil
	}
	_, err := tx.Exec(`
		DELETE FROM `+table+` WHERE id NOT IN (
			SELECT id FROM `+table+` ORDER BY started_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to rotate %s: %w", table, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
