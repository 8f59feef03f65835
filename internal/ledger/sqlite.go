package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/solsignal/internal/models"
)

// SQLite is a local Store backed by a single SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// TxRecord is the journal entry kept for every accepted transaction.
type TxRecord struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Signer    models.Pubkey `json:"signer"`
	Accounts  int           `json:"accounts"`
	CreatedAt time.Time     `json:"createdAt"`
}

// OpenSQLite opens or creates the ledger database at dbPath.
// An empty dbPath defaults to $TMPDIR/solsignal/ledger.db.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "solsignal", "ledger.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", ledgerDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1) // transactions serialize on the single connection
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLite{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// ledgerDSN takes the write lock at BEGIN and waits for it. Processes sharing
// one file then queue, and a losing writer sees ErrStateConflict rather than
// SQLITE_BUSY from a failed lock upgrade.
func ledgerDSN(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	return dbPath + "?_txlock=immediate&_pragma=busy_timeout(5000)"
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			address    TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			signer     TEXT NOT NULL,
			accounts   INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Account(ctx context.Context, addr models.Pubkey) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM accounts WHERE address = ?`, addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %w", addr, err)
	}
	return data, nil
}

func (s *SQLite) ProgramAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, data FROM accounts ORDER BY created_at, address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var addr string
		var data []byte
		if err := rows.Scan(&addr, &data); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		key, err := models.ParsePubkey(addr)
		if err != nil {
			return nil, fmt.Errorf("corrupt account address %q: %w", addr, err)
		}
		out = append(out, models.Account{Address: key, Data: data})
	}
	return out, rows.Err()
}

// Submit applies tx atomically if every mutation's precondition holds.
func (s *SQLite) Submit(ctx context.Context, tx Transaction) (string, error) {
	if len(tx.Mutations) == 0 {
		return "", errors.New("transaction has no mutations")
	}
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback() //nolint:errcheck

	now := s.now().UnixNano()
	for _, m := range tx.Mutations {
		var current []byte
		err := dbTx.QueryRowContext(ctx, `SELECT data FROM accounts WHERE address = ?`, m.Address.String()).Scan(&current)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to read account %s: %w", m.Address, err)
		}

		switch {
		case m.Create && exists:
			return "", fmt.Errorf("%w: account %s already exists", ErrStateConflict, m.Address)
		case m.Create:
			if _, err := dbTx.ExecContext(ctx,
				`INSERT INTO accounts (address, data, created_at, updated_at) VALUES (?,?,?,?)`,
				m.Address.String(), m.Data, now, now); err != nil {
				return "", fmt.Errorf("failed to create account %s: %w", m.Address, err)
			}
		case !exists:
			return "", fmt.Errorf("%w: account %s does not exist", ErrStateConflict, m.Address)
		case !bytes.Equal(current, m.Expected):
			return "", fmt.Errorf("%w: account %s", ErrStateConflict, m.Address)
		default:
			if _, err := dbTx.ExecContext(ctx,
				`UPDATE accounts SET data = ?, updated_at = ? WHERE address = ?`,
				m.Data, now, m.Address.String()); err != nil {
				return "", fmt.Errorf("failed to update account %s: %w", m.Address, err)
			}
		}
	}

	id := uuid.NewString()
	if _, err := dbTx.ExecContext(ctx,
		`INSERT INTO transactions (id, kind, signer, accounts, created_at) VALUES (?,?,?,?,?)`,
		id, tx.Kind, tx.Signer.String(), len(tx.Mutations), now); err != nil {
		return "", fmt.Errorf("failed to journal transaction: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// Transaction looks up a journaled transaction by id.
func (s *SQLite) Transaction(ctx context.Context, id string) (TxRecord, error) {
	var rec TxRecord
	var signer string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, signer, accounts, created_at FROM transactions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Kind, &signer, &rec.Accounts, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to read transaction %s: %w", id, err)
	}
	if rec.Signer, err = models.ParsePubkey(signer); err != nil {
		return rec, fmt.Errorf("corrupt signer for transaction %s: %w", id, err)
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return rec, nil
}
