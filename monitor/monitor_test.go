package monitor

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	cfgTypes "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"
	"github.com/0xPolygonHermez/zkevm-tx-engine/db"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/0xPolygonHermez/zkevm-tx-engine/watcher"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceipts struct {
	mutex    sync.Mutex
	receipts map[common.Hash]*ethTypes.Receipt
	calls    int
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{receipts: make(map[common.Hash]*ethTypes.Receipt)}
}

func (f *fakeReceipts) set(hash common.Hash, status uint64, block int64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.receipts[hash] = &ethTypes.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(block),
		BlockHash:   common.HexToHash("0xb10c"),
		GasUsed:     21000,
	}
}

func (f *fakeReceipts) callCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls
}

func (f *fakeReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethTypes.Receipt, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	receipt, found := f.receipts[hash]
	if !found {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

type resyncedNonce struct {
	account common.Address
	chainID uint64
	nonce   uint64
}

type fakeNonces struct {
	mutex    sync.Mutex
	resynced []resyncedNonce
}

func (f *fakeNonces) ResyncNonce(account common.Address, chainID uint64, nonce uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.resynced = append(f.resynced, resyncedNonce{account: account, chainID: chainID, nonce: nonce})
}

func (f *fakeNonces) all() []resyncedNonce {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]resyncedNonce(nil), f.resynced...)
}

type testEnv struct {
	repo     *repository.Repository
	stream   *watcher.Stream
	receipts *fakeReceipts
	nonces   *fakeNonces
	monitor  *Monitor
}

func newTestEnv(lifetime time.Duration) *testEnv {
	cfg := Config{
		Workers:       2,
		QueueSize:     10,
		TxLifeTimeMax: cfgTypes.NewDuration(lifetime),
	}
	env := &testEnv{
		repo:     repository.NewRepository(db.NewMemoryStorage()),
		stream:   watcher.NewStream(),
		receipts: newFakeReceipts(),
		nonces:   &fakeNonces{},
	}
	env.monitor = NewMonitor(cfg, env.repo, env.stream, map[uint64]ReceiptClient{1: env.receipts}, env.nonces)
	return env
}

func pendingRecord(id string, hash common.Hash) *types.TransactionRecord {
	nonce := uint64(len(id))
	return &types.TransactionRecord{
		ID:       id,
		ChainID:  1,
		From:     common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Hash:     hash,
		TypeInfo: types.UnknownTypeInfo(),
		Options: types.TransactionOptions{
			Request:      types.TransactionRequest{ChainID: 1, Nonce: &nonce},
			SignedTxHash: hash,
		},
	}
}

func (env *testEnv) tracked(id string) bool {
	_, found := env.monitor.requestList.get(id)
	return found
}

// waitStatus publishes blocks until the record reaches status
func (env *testEnv) waitStatus(t *testing.T, id string, status types.Status) *types.TransactionRecord {
	t.Helper()
	var stored *types.TransactionRecord
	require.Eventually(t, func() bool {
		env.stream.Publish(types.BlockUpdate{ChainID: 1, BlockNumber: 10})
		var err error
		stored, err = env.repo.GetTransaction(context.Background(), id)
		require.NoError(t, err)
		return stored.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return stored
}

func TestMonitorConfirmsTransaction(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	hash := common.HexToHash("0x01")
	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("a", hash)))
	require.Eventually(t, func() bool { return env.tracked("a") }, time.Second, time.Millisecond)

	env.receipts.set(hash, types.ReceiptStatusSuccessful, 10)
	stored := env.waitStatus(t, "a", types.StatusConfirmed)

	require.NotNil(t, stored.Receipt)
	assert.Equal(t, uint64(10), stored.Receipt.BlockNumber)
	assert.NotNil(t, stored.ConfirmedAt)
	require.Eventually(t, func() bool { return !env.tracked("a") }, time.Second, time.Millisecond)
}

func TestMonitorRetriesUntilReceipt(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	hash := common.HexToHash("0x02")
	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("b", hash)))
	require.Eventually(t, func() bool {
		env.stream.Publish(types.BlockUpdate{ChainID: 1, BlockNumber: 1})
		return env.receipts.callCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := env.repo.GetTransaction(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, stored.Status)

	env.receipts.set(hash, types.ReceiptStatusFailed, 11)
	stored = env.waitStatus(t, "b", types.StatusFailed)
	require.NotNil(t, stored.Receipt)
	assert.False(t, stored.Receipt.Succeeded())
}

func TestMonitorExpiresTransaction(t *testing.T) {
	env := newTestEnv(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("c", common.HexToHash("0x03"))))
	time.Sleep(5 * time.Millisecond)

	stored := env.waitStatus(t, "c", types.StatusFailed)
	assert.Nil(t, stored.Receipt)

	// the nonce never reached the chain, later txs of the account must not queue behind it
	require.Eventually(t, func() bool { return len(env.nonces.all()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, resyncedNonce{account: stored.From, chainID: 1, nonce: 1}, env.nonces.all()[0])
}

func TestMonitorDoesNotResyncMinedNonces(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	hash := common.HexToHash("0x08")
	env.receipts.set(hash, types.ReceiptStatusFailed, 14)
	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("i", hash)))
	env.waitStatus(t, "i", types.StatusFailed)

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, env.nonces.all())
}

func TestMonitorSettlesReplacementWithSupersededReceipt(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	originalHash := common.HexToHash("0x07")
	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("g", originalHash)))

	replacement := pendingRecord("h", common.HexToHash("0x17"))
	replacement.ReplacesID = "g"
	require.NoError(t, env.repo.AddTransaction(ctx, replacement))

	// the original payload is the one mined
	env.receipts.set(originalHash, types.ReceiptStatusSuccessful, 15)
	stored := env.waitStatus(t, "h", types.StatusConfirmed)

	require.NotNil(t, stored.Receipt)
	assert.Equal(t, uint64(15), stored.Receipt.BlockNumber)
	assert.Equal(t, common.HexToHash("0x17"), stored.Hash)

	original, err := env.repo.GetTransaction(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, original.Status)
	assert.Empty(t, env.nonces.all())
}

func TestMonitorIgnoresOtherChains(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("d", common.HexToHash("0x04"))))
	require.Eventually(t, func() bool { return env.tracked("d") }, time.Second, time.Millisecond)

	env.stream.Publish(types.BlockUpdate{ChainID: 2, BlockNumber: 100})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, env.receipts.callCount())
	assert.True(t, env.tracked("d"))
}

func TestMonitorLoadsPendingOnStart(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hash := common.HexToHash("0x05")
	require.NoError(t, env.repo.AddTransaction(ctx, pendingRecord("e", hash)))
	require.NoError(t, env.monitor.Start(ctx))
	assert.True(t, env.tracked("e"))

	env.receipts.set(hash, types.ReceiptStatusSuccessful, 12)
	env.waitStatus(t, "e", types.StatusConfirmed)
}

func TestMonitorTracksSignedHashWithoutAssignedHash(t *testing.T) {
	env := newTestEnv(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, env.monitor.Start(ctx))

	signedHash := common.HexToHash("0x06")
	record := pendingRecord("f", common.Hash{})
	record.Options.SignedTxHash = signedHash
	require.NoError(t, env.repo.AddTransaction(ctx, record))

	env.receipts.set(signedHash, types.ReceiptStatusSuccessful, 13)
	stored := env.waitStatus(t, "f", types.StatusConfirmed)
	assert.Equal(t, signedHash, stored.Hash)
}
