package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	cfgTypes "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"
	"github.com/0xPolygonHermez/zkevm-tx-engine/db"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type rawSenderMock struct {
	mock.Mock
}

func (m *rawSenderMock) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *rawSenderMock) SendPrivateRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(common.Hash), args.Error(1)
}

var from = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func testConfig() Config {
	return Config{
		Enabled:                true,
		ResendTxsCheckInterval: cfgTypes.NewDuration(time.Hour),
		ResendInterval:         cfgTypes.NewDuration(time.Minute),
		Workers:                1,
		QueueSize:              1,
		SendPolicy:             retry.Config{Retries: 2},
	}
}

func storedRecord(t *testing.T, repo *repository.Repository, id string, nonce uint64, raw []byte, private bool) *types.TransactionRecord {
	t.Helper()
	tx := &types.TransactionRecord{
		ID:       id,
		ChainID:  1,
		From:     from,
		TypeInfo: types.UnknownTypeInfo(),
		Options: types.TransactionOptions{
			Request:        types.TransactionRequest{ChainID: 1, From: from, Nonce: &nonce},
			Private:        private,
			SignedTxHash:   common.BytesToHash(raw),
			RawTransaction: raw,
		},
	}
	require.NoError(t, repo.AddTransaction(context.Background(), tx))
	stored, err := repo.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return stored
}

func TestTransactionsToResend(t *testing.T) {
	s := NewSender(testConfig(), nil, nil)
	now := time.Now()
	raw := []byte{0x01}

	type testCase struct {
		Name     string
		Tx       *types.TransactionRecord
		LastSent time.Time
		Due      bool
	}

	testCases := []testCase{
		{
			Name: "submitted long ago",
			Tx:   &types.TransactionRecord{ID: "a", SubmittedAt: now.Add(-2 * time.Minute), Options: types.TransactionOptions{RawTransaction: raw}},
			Due:  true,
		},
		{
			Name: "submitted recently",
			Tx:   &types.TransactionRecord{ID: "b", SubmittedAt: now.Add(-time.Second), Options: types.TransactionOptions{RawTransaction: raw}},
		},
		{
			Name: "never submitted, added long ago",
			Tx:   &types.TransactionRecord{ID: "c", AddedAt: now.Add(-2 * time.Minute), Options: types.TransactionOptions{RawTransaction: raw}},
			Due:  true,
		},
		{
			Name: "without payload",
			Tx:   &types.TransactionRecord{ID: "d", SubmittedAt: now.Add(-2 * time.Minute)},
		},
		{
			Name: "with receipt",
			Tx:   &types.TransactionRecord{ID: "e", SubmittedAt: now.Add(-2 * time.Minute), Receipt: &types.Receipt{}, Options: types.TransactionOptions{RawTransaction: raw}},
		},
		{
			Name:     "resent recently",
			Tx:       &types.TransactionRecord{ID: "f", SubmittedAt: now.Add(-2 * time.Minute), Options: types.TransactionOptions{RawTransaction: raw}},
			LastSent: now.Add(-time.Second),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			if !tc.LastSent.IsZero() {
				s.markSent(tc.Tx.ID, tc.LastSent)
			}
			due := s.transactionsToResend([]*types.TransactionRecord{tc.Tx}, now)
			assert.Equal(t, tc.Due, len(due) == 1)
		})
	}
}

func TestTransactionsToResendForgetsFinalized(t *testing.T) {
	s := NewSender(testConfig(), nil, nil)
	s.markSent("gone", time.Now())

	s.transactionsToResend(nil, time.Now())

	_, found := s.lastSent["gone"]
	assert.False(t, found)
}

func TestResendTransactions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := repository.NewRepository(db.NewMemoryStorage())
	client := new(rawSenderMock)
	s := NewSender(testConfig(), repo, map[uint64]RawSender{1: client})
	s.Start(ctx)

	public := storedRecord(t, repo, "public", 1, []byte{0x01}, false)
	private := storedRecord(t, repo, "private", 2, []byte{0x02}, true)

	client.On("SendRawTransaction", mock.Anything, []byte{0x01}).Return(public.Options.SignedTxHash, nil).Once()
	client.On("SendPrivateRawTransaction", mock.Anything, []byte{0x02}).Return(private.Options.SignedTxHash, nil).Once()

	s.resendTransactions(ctx, time.Now().Add(2*time.Minute))
	client.AssertExpectations(t)

	stored, err := repo.GetTransaction(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, public.Options.SignedTxHash, stored.Hash)
	assert.False(t, stored.SubmittedAt.IsZero())
	assert.Equal(t, types.StatusPending, stored.Status)

	// resent records wait another interval
	s.resendTransactions(ctx, time.Now().Add(30*time.Second))
	client.AssertNumberOfCalls(t, "SendRawTransaction", 1)
	client.AssertNumberOfCalls(t, "SendPrivateRawTransaction", 1)
}

func TestSendTransactionRetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := repository.NewRepository(db.NewMemoryStorage())
	client := new(rawSenderMock)
	s := NewSender(testConfig(), repo, map[uint64]RawSender{1: client})
	s.Start(ctx)

	tx := storedRecord(t, repo, "a", 1, []byte{0x01}, false)
	client.On("SendRawTransaction", mock.Anything, []byte{0x01}).Return(common.Hash{}, retry.Retryable(errors.New("timeout"))).Twice()
	client.On("SendRawTransaction", mock.Anything, []byte{0x01}).Return(tx.Options.SignedTxHash, nil).Once()

	require.NoError(t, s.SendTransaction(ctx, tx))
	client.AssertNumberOfCalls(t, "SendRawTransaction", 3)
}

func TestSendTransactionFatalError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := repository.NewRepository(db.NewMemoryStorage())
	client := new(rawSenderMock)
	s := NewSender(testConfig(), repo, map[uint64]RawSender{1: client})
	s.Start(ctx)

	tx := storedRecord(t, repo, "a", 1, []byte{0x01}, false)
	sendErr := errors.New("nonce too low")
	client.On("SendRawTransaction", mock.Anything, []byte{0x01}).Return(common.Hash{}, sendErr).Once()

	err := s.SendTransaction(ctx, tx)
	require.ErrorIs(t, err, sendErr)
	client.AssertNumberOfCalls(t, "SendRawTransaction", 1)

	stored, err := repo.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.False(t, stored.HasHash())
	assert.True(t, stored.SubmittedAt.IsZero())
}

func TestSendTransactionWithoutPayload(t *testing.T) {
	s := NewSender(testConfig(), nil, nil)
	err := s.SendTransaction(context.Background(), &types.TransactionRecord{ID: "a"})
	require.ErrorIs(t, err, ErrNoPayload)
}

func TestSendTransactionReturnsWhenWorkersAreGone(t *testing.T) {
	repo := repository.NewRepository(db.NewMemoryStorage())
	client := new(rawSenderMock)
	// no workers are started, the request stays queued
	s := NewSender(testConfig(), repo, map[uint64]RawSender{1: client})
	tx := storedRecord(t, repo, "a", 1, []byte{0x01}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errC := make(chan error, 1)
	go func() { errC <- s.SendTransaction(ctx, tx) }()

	select {
	case err := <-errC:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("SendTransaction did not return after the context expired")
	}
	client.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything)
}
