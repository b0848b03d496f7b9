package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pendingNonceIndexName = "transaction_pending_nonce_idx"
)

type execQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PostgresStorage stores records in the txengine.transaction table
type PostgresStorage struct {
	db *pgxpool.Pool
}

// NewPostgresStorage creates and initializes an instance of PostgresStorage
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	pool, err := NewSQLDB(cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStorage{db: pool}, nil
}

// Close closes the connection pool
func (p *PostgresStorage) Close() {
	p.db.Close()
}

// InsertTransaction stores a new record
func (p *PostgresStorage) InsertTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	return p.insert(ctx, p.db, tx)
}

// InsertReplacement stores superseded and inserts tx in a single db transaction
func (p *PostgresStorage) InsertReplacement(ctx context.Context, tx *types.TransactionRecord, superseded *types.TransactionRecord) error {
	dbTx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	// the superseded record leaves the pending nonce index before the replacement enters it
	if err := p.update(ctx, dbTx, superseded); err != nil {
		_ = dbTx.Rollback(ctx)
		return err
	}
	if err := p.insert(ctx, dbTx, tx); err != nil {
		_ = dbTx.Rollback(ctx)
		return err
	}
	return dbTx.Commit(ctx)
}

// UpdateTransaction overwrites an existing record
func (p *PostgresStorage) UpdateTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	return p.update(ctx, p.db, tx)
}

func (p *PostgresStorage) insert(ctx context.Context, db execQuerier, tx *types.TransactionRecord) error {
	const insertSQL = `
		INSERT INTO txengine.transaction
		(id, chain_id, from_address, hash, status, nonce, private, replaces_id, added_at, updated_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	row, err := newRecordRow(tx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, insertSQL, row.id, row.chainID, row.fromAddress, row.hash, row.status, row.nonce, row.private, row.replacesID, tx.AddedAt, tx.UpdatedAt, string(row.data))
	return mapPgError(err)
}

func (p *PostgresStorage) update(ctx context.Context, db execQuerier, tx *types.TransactionRecord) error {
	const updateSQL = `
		UPDATE txengine.transaction
		SET hash = $2, status = $3, nonce = $4, private = $5, updated_at = $6, data = $7
		WHERE id = $1
	`

	row, err := newRecordRow(tx)
	if err != nil {
		return err
	}
	updatedAt := tx.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	tag, err := db.Exec(ctx, updateSQL, row.id, row.hash, row.status, row.nonce, row.private, updatedAt, string(row.data))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, tx.ID)
	}
	return nil
}

// GetTransaction returns the record with the given id
func (p *PostgresStorage) GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error) {
	const getSQL = "SELECT data FROM txengine.transaction WHERE id = $1"

	var data []byte
	err := p.db.QueryRow(ctx, getSQL, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// GetTransactionsByAddress returns the records sent from address
func (p *PostgresStorage) GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error) {
	const sql = "SELECT data FROM txengine.transaction WHERE from_address = $1 ORDER BY added_at, id"
	return p.query(ctx, sql, addressKey(address))
}

// GetPendingTransactions returns the pending records of chainID, or of every chain when chainID is 0
func (p *PostgresStorage) GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error) {
	const sql = "SELECT data FROM txengine.transaction WHERE status = $1 AND ($2 = 0 OR chain_id = $2) ORDER BY added_at, id"
	return p.query(ctx, sql, string(types.StatusPending), chainID)
}

// GetPendingByNonce returns the pending records using nonce for the account and chain
func (p *PostgresStorage) GetPendingByNonce(ctx context.Context, from common.Address, chainID uint64, nonce uint64) ([]*types.TransactionRecord, error) {
	const sql = "SELECT data FROM txengine.transaction WHERE status = $1 AND from_address = $2 AND chain_id = $3 AND nonce = $4"
	return p.query(ctx, sql, string(types.StatusPending), addressKey(from), chainID, int64(nonce))
}

// CountPendingPrivateTransactions returns the number of pending private records of the account and chain
func (p *PostgresStorage) CountPendingPrivateTransactions(ctx context.Context, from common.Address, chainID uint64) (uint64, error) {
	const sql = "SELECT COUNT(*) FROM txengine.transaction WHERE status = $1 AND private AND from_address = $2 AND chain_id = $3"

	var count uint64
	if err := p.db.QueryRow(ctx, sql, string(types.StatusPending), addressKey(from), chainID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *PostgresStorage) query(ctx context.Context, sql string, args ...interface{}) ([]*types.TransactionRecord, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*types.TransactionRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		tx, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// mapPgError translates unique violations into repository errors
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	if pgErr.ConstraintName == pendingNonceIndexName {
		return fmt.Errorf("%w: %s", repository.ErrNonceConflict, pgErr.Detail)
	}
	return fmt.Errorf("%w: %s", repository.ErrDuplicateID, pgErr.Detail)
}
