package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/slices"
)

// EventKind identifies the write that produced an Event
type EventKind string

const (
	// EventAdded is emitted after a record has been added
	EventAdded EventKind = "added"
	// EventUpdated is emitted after a pending record has been updated
	EventUpdated EventKind = "updated"
	// EventFinalized is emitted after a record reached a terminal status
	EventFinalized EventKind = "finalized"
)

// Event notifies listeners about a repository write. Transaction is a copy of the stored record.
type Event struct {
	Kind        EventKind
	Transaction *types.TransactionRecord
}

// UpdateOptions tunes UpdateTransaction
type UpdateOptions struct {
	// SkipProcessing suppresses the event that triggers reconciliation
	SkipProcessing bool
}

// Repository is the authoritative store of transaction records and their state machine
type Repository struct {
	storage Storage

	idLocks      *keyedMutex
	accountLocks *keyedMutex

	listenersMutex sync.RWMutex
	listeners      map[uint64]chan Event
	nextListenerID uint64
}

// NewRepository creates a repository over the given storage backend
func NewRepository(storage Storage) *Repository {
	return &Repository{
		storage:      storage,
		idLocks:      newKeyedMutex(),
		accountLocks: newKeyedMutex(),
		listeners:    make(map[uint64]chan Event),
	}
}

// Subscribe registers a listener for repository events. The returned function unregisters it
// and closes the channel.
func (r *Repository) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	r.listenersMutex.Lock()
	id := r.nextListenerID
	r.nextListenerID++
	r.listeners[id] = ch
	r.listenersMutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.listenersMutex.Lock()
			delete(r.listeners, id)
			r.listenersMutex.Unlock()
			close(ch)
		})
	}
}

func (r *Repository) emit(ctx context.Context, kind EventKind, tx *types.TransactionRecord) {
	r.listenersMutex.RLock()
	defer r.listenersMutex.RUnlock()

	for _, ch := range r.listeners {
		select {
		case ch <- Event{Kind: kind, Transaction: tx.Copy()}:
		case <-ctx.Done():
			log.Warnf("event %s for tx %s not delivered, context done", kind, tx.Tag())
			return
		}
	}
}

func accountKey(from common.Address, chainID uint64) string {
	return fmt.Sprintf("%d:%s", chainID, from.Hex())
}

func validate(tx *types.TransactionRecord) error {
	switch {
	case tx == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case tx.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	case tx.ChainID == 0:
		return fmt.Errorf("%w: missing chain id", ErrInvalidRecord)
	case tx.From == (common.Address{}):
		return fmt.Errorf("%w: missing from address", ErrInvalidRecord)
	case !tx.TypeInfo.IsValid():
		return fmt.Errorf("%w: invalid type info", ErrInvalidRecord)
	}
	return nil
}

// AddTransaction stores a new pending record
func (r *Repository) AddTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	if err := validate(tx); err != nil {
		return err
	}
	if tx.Status == "" {
		tx.Status = types.StatusPending
	}
	if tx.Status != types.StatusPending {
		return fmt.Errorf("%w: records are added as %s, got %s", ErrInvalidTransition, types.StatusPending, tx.Status)
	}
	if tx.ReplacesID == tx.ID {
		return fmt.Errorf("%w: record cannot replace itself", ErrInvalidRecord)
	}

	// adds are serialized per account so the nonce check and the insert are atomic
	unlockAccount := r.accountLocks.lock(accountKey(tx.From, tx.ChainID))
	defer unlockAccount()
	unlockID := r.idLocks.lock(tx.ID)
	defer unlockID()

	if _, err := r.storage.GetTransaction(ctx, tx.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
	} else if !isNotFound(err) {
		return wrapStorageError("get transaction", err)
	}

	var superseded *types.TransactionRecord
	if tx.ReplacesID != "" {
		unlockReplaced := r.idLocks.lock(tx.ReplacesID)
		defer unlockReplaced()

		old, err := r.loadReplaced(ctx, tx)
		if err != nil {
			return err
		}
		superseded = old
	}

	if nonce, ok := tx.Nonce(); ok {
		conflicts, err := r.storage.GetPendingByNonce(ctx, tx.From, tx.ChainID, nonce)
		if err != nil {
			return wrapStorageError("get pending by nonce", err)
		}
		for _, c := range conflicts {
			if superseded != nil && c.ID == superseded.ID {
				continue
			}
			return fmt.Errorf("%w: nonce %d already used by %s", ErrNonceConflict, nonce, c.ID)
		}
	}

	now := time.Now()
	tx.AddedAt = now
	tx.UpdatedAt = now

	if superseded == nil {
		if err := r.storage.InsertTransaction(ctx, tx); err != nil {
			return wrapStorageError("insert transaction", err)
		}
		log.Debugf("tx %s added, chain %d, from %s", tx.Tag(), tx.ChainID, tx.From)
		r.emit(ctx, EventAdded, tx)
		return nil
	}

	superseded.Status = types.StatusCancelled
	superseded.UpdatedAt = now
	if err := r.storage.InsertReplacement(ctx, tx, superseded); err != nil {
		return wrapStorageError("insert replacement", err)
	}
	log.Infof("tx %s added, replaces tx %s", tx.Tag(), superseded.Tag())
	r.emit(ctx, EventAdded, tx)
	r.emit(ctx, EventFinalized, superseded)
	return nil
}

// loadReplaced returns the pending record tx supersedes
func (r *Repository) loadReplaced(ctx context.Context, tx *types.TransactionRecord) (*types.TransactionRecord, error) {
	old, err := r.storage.GetTransaction(ctx, tx.ReplacesID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: replaced tx %s", ErrNotFound, tx.ReplacesID)
		}
		return nil, wrapStorageError("get transaction", err)
	}
	if old.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: replaced tx %s is %s", ErrNotPending, old.ID, old.Status)
	}
	if old.From != tx.From || old.ChainID != tx.ChainID {
		return nil, fmt.Errorf("%w: replaced tx %s belongs to another account or chain", ErrInvalidRecord, old.ID)
	}
	oldNonce, oldHasNonce := old.Nonce()
	nonce, hasNonce := tx.Nonce()
	if !oldHasNonce || !hasNonce || oldNonce != nonce {
		return nil, fmt.Errorf("%w: replacement must reuse the nonce of tx %s", ErrInvalidRecord, old.ID)
	}
	return old, nil
}

// UpdateTransaction replaces the stored fields of a pending record. Id, chain, sender, nonce and
// status cannot change through an update, and a hash cannot change once assigned.
func (r *Repository) UpdateTransaction(ctx context.Context, tx *types.TransactionRecord, opts UpdateOptions) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	unlock := r.idLocks.lock(tx.ID)
	stored, err := r.getPending(ctx, tx.ID)
	if err != nil {
		unlock()
		return err
	}

	if tx.Status != "" && tx.Status != stored.Status {
		unlock()
		return fmt.Errorf("%w: use FinalizeTransaction to move %s to %s", ErrInvalidTransition, tx.ID, tx.Status)
	}
	if stored.HasHash() && tx.Hash != stored.Hash {
		unlock()
		return fmt.Errorf("%w: %s has hash %s", ErrHashImmutable, tx.ID, stored.Hash)
	}
	storedNonce, storedHasNonce := stored.Nonce()
	if nonce, ok := tx.Nonce(); storedHasNonce && (!ok || nonce != storedNonce) {
		unlock()
		return fmt.Errorf("%w: nonce of %s cannot change", ErrInvalidRecord, tx.ID)
	}

	updated := tx.Copy()
	updated.ChainID = stored.ChainID
	updated.From = stored.From
	updated.Status = stored.Status
	updated.ReplacesID = stored.ReplacesID
	updated.AddedAt = stored.AddedAt
	updated.UpdatedAt = time.Now()
	if storedHasNonce {
		updated.Options.Request.Nonce = stored.Options.Request.Nonce
	}

	if err := r.storage.UpdateTransaction(ctx, updated); err != nil {
		unlock()
		return wrapStorageError("update transaction", err)
	}
	unlock()

	log.Debugf("tx %s updated", updated.Tag())
	if !opts.SkipProcessing {
		r.emit(ctx, EventUpdated, updated)
	}
	return nil
}

// FinalizeTransaction moves a pending record to the terminal status, recording the
// receipt and confirmation time carried by tx
func (r *Repository) FinalizeTransaction(ctx context.Context, tx *types.TransactionRecord, status types.Status) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}

	unlock := r.idLocks.lock(tx.ID)
	stored, err := r.getPending(ctx, tx.ID)
	if err != nil {
		unlock()
		return err
	}

	finalized := stored.Copy()
	finalized.Status = status
	finalized.UpdatedAt = time.Now()
	if !finalized.HasHash() && tx.HasHash() {
		finalized.Hash = tx.Hash
	}
	if tx.Receipt != nil {
		finalized.Receipt = tx.Copy().Receipt
	}
	if tx.ConfirmedAt != nil {
		confirmedAt := *tx.ConfirmedAt
		finalized.ConfirmedAt = &confirmedAt
	} else if status == types.StatusConfirmed {
		finalized.ConfirmedAt = &finalized.UpdatedAt
	}

	if err := r.storage.UpdateTransaction(ctx, finalized); err != nil {
		unlock()
		return wrapStorageError("update transaction", err)
	}
	unlock()

	log.Infof("tx %s finalized as %s", finalized.Tag(), status)
	r.emit(ctx, EventFinalized, finalized)
	return nil
}

func (r *Repository) getPending(ctx context.Context, id string) (*types.TransactionRecord, error) {
	stored, err := r.storage.GetTransaction(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, wrapStorageError("get transaction", err)
	}
	if stored.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, stored.Status)
	}
	return stored, nil
}

// GetTransaction returns the record with the given id
func (r *Repository) GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error) {
	tx, err := r.storage.GetTransaction(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, wrapStorageError("get transaction", err)
	}
	return tx, nil
}

// GetTransactionsByAddress returns the records sent from address, newest first, or nil
// when the address has no history
func (r *Repository) GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error) {
	txs, err := r.storage.GetTransactionsByAddress(ctx, address)
	if err != nil {
		return nil, wrapStorageError("get transactions by address", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}
	slices.SortStableFunc(txs, func(a, b *types.TransactionRecord) int {
		return b.AddedAt.Compare(a.AddedAt)
	})
	return txs, nil
}

// GetPendingTransactions returns the pending records of chainID, or of every chain when chainID is 0
func (r *Repository) GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error) {
	txs, err := r.storage.GetPendingTransactions(ctx, chainID)
	if err != nil {
		return nil, wrapStorageError("get pending transactions", err)
	}
	return txs, nil
}

// GetPendingPrivateTransactionCount returns the number of pending private records of address on chainID
func (r *Repository) GetPendingPrivateTransactionCount(ctx context.Context, address common.Address, chainID uint64) (uint64, error) {
	count, err := r.storage.CountPendingPrivateTransactions(ctx, address, chainID)
	if err != nil {
		return 0, wrapStorageError("count pending private transactions", err)
	}
	return count, nil
}
