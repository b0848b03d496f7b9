package db

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// MemoryStorage keeps records in process memory
type MemoryStorage struct {
	mutex sync.RWMutex
	txs   map[string]*types.TransactionRecord
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{txs: make(map[string]*types.TransactionRecord)}
}

// InsertTransaction stores a new record
func (s *MemoryStorage) InsertTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.txs[tx.ID]; found {
		return repository.ErrDuplicateID
	}
	s.txs[tx.ID] = tx.Copy()
	return nil
}

// InsertReplacement stores tx and superseded under the same lock
func (s *MemoryStorage) InsertReplacement(ctx context.Context, tx *types.TransactionRecord, superseded *types.TransactionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.txs[tx.ID]; found {
		return repository.ErrDuplicateID
	}
	if _, found := s.txs[superseded.ID]; !found {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, superseded.ID)
	}
	s.txs[superseded.ID] = superseded.Copy()
	s.txs[tx.ID] = tx.Copy()
	return nil
}

// UpdateTransaction overwrites an existing record
func (s *MemoryStorage) UpdateTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.txs[tx.ID]; !found {
		return repository.ErrNotFound
	}
	s.txs[tx.ID] = tx.Copy()
	return nil
}

// GetTransaction returns a copy of the record
func (s *MemoryStorage) GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tx, found := s.txs[id]
	if !found {
		return nil, repository.ErrNotFound
	}
	return tx.Copy(), nil
}

// GetTransactionsByAddress returns the records sent from address
func (s *MemoryStorage) GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error) {
	return s.filter(func(tx *types.TransactionRecord) bool {
		return tx.From == address
	}), nil
}

// GetPendingTransactions returns the pending records of chainID, or of every chain when chainID is 0
func (s *MemoryStorage) GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error) {
	return s.filter(func(tx *types.TransactionRecord) bool {
		return tx.Status == types.StatusPending && (chainID == 0 || tx.ChainID == chainID)
	}), nil
}

// GetPendingByNonce returns the pending records using nonce for the account and chain
func (s *MemoryStorage) GetPendingByNonce(ctx context.Context, from common.Address, chainID uint64, nonce uint64) ([]*types.TransactionRecord, error) {
	return s.filter(func(tx *types.TransactionRecord) bool {
		n, ok := tx.Nonce()
		return ok && n == nonce && tx.Status == types.StatusPending && tx.From == from && tx.ChainID == chainID
	}), nil
}

// CountPendingPrivateTransactions returns the number of pending private records of the account and chain
func (s *MemoryStorage) CountPendingPrivateTransactions(ctx context.Context, from common.Address, chainID uint64) (uint64, error) {
	txs := s.filter(func(tx *types.TransactionRecord) bool {
		return tx.IsPrivate() && tx.Status == types.StatusPending && tx.From == from && tx.ChainID == chainID
	})
	return uint64(len(txs)), nil
}

// filter returns copies of the matching records sorted by insertion time
func (s *MemoryStorage) filter(match func(tx *types.TransactionRecord) bool) []*types.TransactionRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []*types.TransactionRecord
	for _, tx := range maps.Values(s.txs) {
		if match(tx) {
			result = append(result, tx.Copy())
		}
	}
	slices.SortFunc(result, func(a, b *types.TransactionRecord) int {
		if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

