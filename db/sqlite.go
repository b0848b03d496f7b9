package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteQueryTimeout = 10 * time.Second

// SQLiteStorage stores records in an embedded SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (and creates when missing) the SQLite database at path
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single writer connection keeps the pending nonce check and the insert consistent
	db.SetMaxOpenConns(1)
	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStorage{db: db}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS txs (
			id TEXT PRIMARY KEY,
			chain_id INTEGER NOT NULL,
			from_address TEXT NOT NULL,
			hash TEXT,
			status TEXT NOT NULL,
			nonce INTEGER,
			private INTEGER NOT NULL DEFAULT 0,
			replaces_id TEXT,
			added_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS txs_from_address_idx ON txs (from_address)`,
		`CREATE INDEX IF NOT EXISTS txs_status_chain_idx ON txs (status, chain_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS txs_pending_nonce_idx ON txs (from_address, chain_id, nonce)
			WHERE status = 'pending' AND nonce IS NOT NULL`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertTransaction stores a new record
func (s *SQLiteStorage) InsertTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()
	return s.insert(ctx, s.db, tx)
}

// InsertReplacement stores superseded and inserts tx in a single db transaction
func (s *SQLiteStorage) InsertReplacement(ctx context.Context, tx *types.TransactionRecord, superseded *types.TransactionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := s.update(ctx, dbTx, superseded); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	if err := s.insert(ctx, dbTx, tx); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// UpdateTransaction overwrites an existing record
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()
	return s.update(ctx, s.db, tx)
}

func (s *SQLiteStorage) insert(ctx context.Context, db sqlExecer, tx *types.TransactionRecord) error {
	row, err := newRecordRow(tx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO txs (id, chain_id, from_address, hash, status, nonce, private, replaces_id, added_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, int64(row.chainID), row.fromAddress, row.hash, row.status, row.nonce, row.private, row.replacesID,
		tx.AddedAt.UnixNano(), tx.UpdatedAt.UnixNano(), string(row.data))
	return mapSQLiteError(err)
}

func (s *SQLiteStorage) update(ctx context.Context, db sqlExecer, tx *types.TransactionRecord) error {
	row, err := newRecordRow(tx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE txs SET hash = ?, status = ?, nonce = ?, private = ?, updated_at = ?, data = ? WHERE id = ?`,
		row.hash, row.status, row.nonce, row.private, tx.UpdatedAt.UnixNano(), string(row.data), row.id)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, tx.ID)
	}
	return nil
}

// GetTransaction returns the record with the given id
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM txs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return decodeRecord([]byte(data))
}

// GetTransactionsByAddress returns the records sent from address
func (s *SQLiteStorage) GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error) {
	return s.query(ctx, `SELECT data FROM txs WHERE from_address = ? ORDER BY added_at, id`, addressKey(address))
}

// GetPendingTransactions returns the pending records of chainID, or of every chain when chainID is 0
func (s *SQLiteStorage) GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error) {
	clauses := []string{"status = ?"}
	args := []any{string(types.StatusPending)}
	if chainID != 0 {
		clauses = append(clauses, "chain_id = ?")
		args = append(args, int64(chainID))
	}
	return s.query(ctx, `SELECT data FROM txs WHERE `+strings.Join(clauses, " AND ")+` ORDER BY added_at, id`, args...)
}

// GetPendingByNonce returns the pending records using nonce for the account and chain
func (s *SQLiteStorage) GetPendingByNonce(ctx context.Context, from common.Address, chainID uint64, nonce uint64) ([]*types.TransactionRecord, error) {
	return s.query(ctx, `SELECT data FROM txs WHERE status = ? AND from_address = ? AND chain_id = ? AND nonce = ?`,
		string(types.StatusPending), addressKey(from), int64(chainID), int64(nonce))
}

// CountPendingPrivateTransactions returns the number of pending private records of the account and chain
func (s *SQLiteStorage) CountPendingPrivateTransactions(ctx context.Context, from common.Address, chainID uint64) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM txs WHERE status = ? AND private = 1 AND from_address = ? AND chain_id = ?`,
		string(types.StatusPending), addressKey(from), int64(chainID)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (s *SQLiteStorage) query(ctx context.Context, query string, args ...any) ([]*types.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteQueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*types.TransactionRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		tx, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func mapSQLiteError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	if sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || strings.Contains(err.Error(), "txs.id") {
		return fmt.Errorf("%w: %v", repository.ErrDuplicateID, err)
	}
	return fmt.Errorf("%w: %v", repository.ErrNonceConflict, err)
}
