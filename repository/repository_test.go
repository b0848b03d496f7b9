package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/db"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFrom = common.HexToAddress("0x617b3a3528F9cDd6630fd3301B9c8911F7Bf063D")

func newRecord(id string, nonce uint64) *types.TransactionRecord {
	n := nonce
	return &types.TransactionRecord{
		ID:       id,
		ChainID:  1,
		From:     testFrom,
		TypeInfo: types.NewApproveTypeInfo(common.HexToAddress("0x02"), common.HexToAddress("0x03"), big.NewInt(10)),
		Options: types.TransactionOptions{
			Request: types.TransactionRequest{ChainID: 1, From: testFrom, Nonce: &n},
		},
	}
}

func newRepository() *repository.Repository {
	return repository.NewRepository(db.NewMemoryStorage())
}

func TestAddTransaction(t *testing.T) {
	type testCase struct {
		Name          string
		Prepare       func(r *repository.Repository)
		Tx            *types.TransactionRecord
		ExpectedError error
	}

	testCases := []testCase{
		{
			Name: "adds pending record",
			Tx:   newRecord("a", 0),
		},
		{
			Name: "duplicated id",
			Prepare: func(r *repository.Repository) {
				require.NoError(t, r.AddTransaction(context.Background(), newRecord("a", 0)))
			},
			Tx:            newRecord("a", 1),
			ExpectedError: repository.ErrDuplicateID,
		},
		{
			Name: "nonce already used by a pending record",
			Prepare: func(r *repository.Repository) {
				require.NoError(t, r.AddTransaction(context.Background(), newRecord("a", 0)))
			},
			Tx:            newRecord("b", 0),
			ExpectedError: repository.ErrNonceConflict,
		},
		{
			Name: "missing id",
			Tx:   newRecord("", 0),

			ExpectedError: repository.ErrInvalidRecord,
		},
		{
			Name: "added as confirmed",
			Tx: func() *types.TransactionRecord {
				tx := newRecord("a", 0)
				tx.Status = types.StatusConfirmed
				return tx
			}(),
			ExpectedError: repository.ErrInvalidTransition,
		},
		{
			Name: "replaces a missing record",
			Tx: func() *types.TransactionRecord {
				tx := newRecord("b", 0)
				tx.ReplacesID = "a"
				return tx
			}(),
			ExpectedError: repository.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			r := newRepository()
			if tc.Prepare != nil {
				tc.Prepare(r)
			}
			err := r.AddTransaction(context.Background(), tc.Tx)
			if tc.ExpectedError != nil {
				assert.ErrorIs(t, err, tc.ExpectedError)
				return
			}
			require.NoError(t, err)

			stored, err := r.GetTransaction(context.Background(), tc.Tx.ID)
			require.NoError(t, err)
			assert.Equal(t, types.StatusPending, stored.Status)
			assert.False(t, stored.AddedAt.IsZero())
		})
	}
}

func TestAddTransactionAfterFinalizeReusesNonce(t *testing.T) {
	ctx := context.Background()
	r := newRepository()

	first := newRecord("a", 0)
	require.NoError(t, r.AddTransaction(ctx, first))
	require.NoError(t, r.FinalizeTransaction(ctx, first, types.StatusFailed))

	assert.NoError(t, r.AddTransaction(ctx, newRecord("b", 0)))
}

func TestAddReplacementSupersedesRecord(t *testing.T) {
	ctx := context.Background()
	r := newRepository()
	events, unsubscribe := r.Subscribe(10)
	defer unsubscribe()

	require.NoError(t, r.AddTransaction(ctx, newRecord("a", 5)))

	replacement := newRecord("b", 5)
	replacement.ReplacesID = "a"
	require.NoError(t, r.AddTransaction(ctx, replacement))

	old, err := r.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, old.Status)

	kinds := []repository.EventKind{}
	for i := 0; i < 3; i++ {
		kinds = append(kinds, (<-events).Kind)
	}
	assert.Equal(t, []repository.EventKind{repository.EventAdded, repository.EventAdded, repository.EventFinalized}, kinds)

	// the replaced record is terminal and cannot be replaced again
	again := newRecord("c", 5)
	again.ReplacesID = "a"
	assert.ErrorIs(t, r.AddTransaction(ctx, again), repository.ErrNotPending)

	mismatch := newRecord("d", 6)
	mismatch.ReplacesID = "b"
	assert.ErrorIs(t, r.AddTransaction(ctx, mismatch), repository.ErrInvalidRecord)
}

func TestConcurrentAddsKeepOnePendingPerNonce(t *testing.T) {
	ctx := context.Background()
	r := newRepository()

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mutex     sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.AddTransaction(ctx, newRecord(fmt.Sprintf("tx-%d", i), 1))
			mutex.Lock()
			defer mutex.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, repository.ErrNonceConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
}

func TestConcurrentUpdateAndFinalize(t *testing.T) {
	type testCase struct {
		Name   string
		Status types.Status
		// WithReceipt finalizes with a receipt the way the monitor does
		WithReceipt bool
	}

	testCases := []testCase{
		{Name: "Confirmed with receipt", Status: types.StatusConfirmed, WithReceipt: true},
		{Name: "Failed with receipt", Status: types.StatusFailed, WithReceipt: true},
		{Name: "Failed on expiry", Status: types.StatusFailed},
		{Name: "Cancelled", Status: types.StatusCancelled},
	}

	const rounds = 100
	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			ctx := context.Background()
			r := newRepository()

			for i := 0; i < rounds; i++ {
				id := fmt.Sprintf("tx-%d", i)
				require.NoError(t, r.AddTransaction(ctx, newRecord(id, uint64(i))))

				hash := common.BigToHash(big.NewInt(int64(i + 1)))
				update := newRecord(id, uint64(i))
				update.Hash = hash
				update.SubmittedAt = time.Now()

				final := newRecord(id, uint64(i))
				if tc.WithReceipt {
					final.Receipt = &types.Receipt{BlockNumber: uint64(i), Status: types.ReceiptStatusSuccessful}
				}

				var (
					wg          sync.WaitGroup
					updateErr   error
					finalizeErr error
				)
				wg.Add(2)
				go func() {
					defer wg.Done()
					updateErr = r.UpdateTransaction(ctx, update, repository.UpdateOptions{})
				}()
				go func() {
					defer wg.Done()
					finalizeErr = r.FinalizeTransaction(ctx, final, tc.Status)
				}()
				wg.Wait()

				require.NoError(t, finalizeErr)
				stored, err := r.GetTransaction(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, tc.Status, stored.Status)
				if updateErr == nil {
					// the update came first, finalizing keeps its hash
					assert.Equal(t, hash, stored.Hash)
				} else {
					assert.ErrorIs(t, updateErr, repository.ErrNotPending)
				}
				if tc.WithReceipt {
					require.NotNil(t, stored.Receipt)
					assert.Equal(t, uint64(i), stored.Receipt.BlockNumber)
				}
			}
		})
	}
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	r := newRepository()
	events, unsubscribe := r.Subscribe(10)
	defer unsubscribe()

	tx := newRecord("a", 0)
	require.NoError(t, r.AddTransaction(ctx, tx))
	<-events

	tx.Hash = common.HexToHash("0xaa")
	tx.SubmittedAt = time.Now()
	require.NoError(t, r.UpdateTransaction(ctx, tx, repository.UpdateOptions{}))
	event := <-events
	assert.Equal(t, repository.EventUpdated, event.Kind)
	assert.Equal(t, tx.Hash, event.Transaction.Hash)

	// updates with SkipProcessing do not notify listeners
	tx.Options.Private = true
	require.NoError(t, r.UpdateTransaction(ctx, tx, repository.UpdateOptions{SkipProcessing: true}))
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Kind)
	default:
	}

	changed := tx.Copy()
	changed.Hash = common.HexToHash("0xbb")
	assert.ErrorIs(t, r.UpdateTransaction(ctx, changed, repository.UpdateOptions{}), repository.ErrHashImmutable)

	changed = tx.Copy()
	changed.Status = types.StatusConfirmed
	assert.ErrorIs(t, r.UpdateTransaction(ctx, changed, repository.UpdateOptions{}), repository.ErrInvalidTransition)

	changed = tx.Copy()
	otherNonce := uint64(9)
	changed.Options.Request.Nonce = &otherNonce
	assert.ErrorIs(t, r.UpdateTransaction(ctx, changed, repository.UpdateOptions{}), repository.ErrInvalidRecord)

	assert.ErrorIs(t, r.UpdateTransaction(ctx, newRecord("missing", 0), repository.UpdateOptions{}), repository.ErrNotFound)

	stored, err := r.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xaa"), stored.Hash)
	assert.True(t, stored.IsPrivate())
}

func TestFinalizeTransaction(t *testing.T) {
	ctx := context.Background()
	r := newRepository()

	tx := newRecord("a", 0)
	require.NoError(t, r.AddTransaction(ctx, tx))

	assert.ErrorIs(t, r.FinalizeTransaction(ctx, tx, types.StatusPending), repository.ErrInvalidTransition)

	tx.Receipt = &types.Receipt{BlockNumber: 10, Status: types.ReceiptStatusSuccessful}
	require.NoError(t, r.FinalizeTransaction(ctx, tx, types.StatusConfirmed))

	stored, err := r.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.Receipt)
	assert.Equal(t, uint64(10), stored.Receipt.BlockNumber)
	assert.NotNil(t, stored.ConfirmedAt)

	// terminal records reject every further write
	assert.ErrorIs(t, r.FinalizeTransaction(ctx, tx, types.StatusFailed), repository.ErrNotPending)
	assert.ErrorIs(t, r.UpdateTransaction(ctx, tx, repository.UpdateOptions{}), repository.ErrNotPending)
}

func TestGetTransactionsByAddress(t *testing.T) {
	ctx := context.Background()
	r := newRepository()

	txs, err := r.GetTransactionsByAddress(ctx, testFrom)
	require.NoError(t, err)
	assert.Nil(t, txs)

	require.NoError(t, r.AddTransaction(ctx, newRecord("a", 0)))
	time.Sleep(time.Millisecond)
	require.NoError(t, r.AddTransaction(ctx, newRecord("b", 1)))

	txs, err = r.GetTransactionsByAddress(ctx, testFrom)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "b", txs[0].ID)
	assert.Equal(t, "a", txs[1].ID)
}

func TestGetPendingPrivateTransactionCount(t *testing.T) {
	ctx := context.Background()
	r := newRepository()

	for i := uint64(0); i < 3; i++ {
		tx := newRecord(fmt.Sprintf("tx-%d", i), i)
		tx.Options.Private = i != 1
		require.NoError(t, r.AddTransaction(ctx, tx))
	}
	tx, err := r.GetTransaction(ctx, "tx-0")
	require.NoError(t, err)
	require.NoError(t, r.FinalizeTransaction(ctx, tx, types.StatusConfirmed))

	count, err := r.GetPendingPrivateTransactionCount(ctx, testFrom, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

type failingStorage struct {
	*db.MemoryStorage
}

func (f failingStorage) GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error) {
	return nil, errors.New("connection refused")
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	r := repository.NewRepository(failingStorage{db.NewMemoryStorage()})

	_, err := r.GetTransaction(context.Background(), "a")
	var storageErr *repository.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "get transaction", storageErr.Op)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}
