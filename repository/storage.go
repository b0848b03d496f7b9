package repository

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

// Storage is the persistence backend of the repository. Implementations return
// ErrDuplicateID and ErrNotFound for the matching conditions; any other error is
// reported to callers as a *StorageError.
type Storage interface {
	InsertTransaction(ctx context.Context, tx *types.TransactionRecord) error
	// InsertReplacement atomically inserts tx and stores superseded, which must already exist
	InsertReplacement(ctx context.Context, tx *types.TransactionRecord, superseded *types.TransactionRecord) error
	UpdateTransaction(ctx context.Context, tx *types.TransactionRecord) error
	GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error)
	GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error)
	// GetPendingTransactions returns the pending records of chainID, or of every chain when chainID is 0
	GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error)
	GetPendingByNonce(ctx context.Context, from common.Address, chainID uint64, nonce uint64) ([]*types.TransactionRecord, error)
	CountPendingPrivateTransactions(ctx context.Context, from common.Address, chainID uint64) (uint64, error)
}
