package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/config/types"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ethService struct {
	blockNumber atomic.Uint64
	sendErr     error
	sent        atomic.Int32
}

func (s *ethService) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (common.Hash, error) {
	s.sent.Add(1)
	if s.sendErr != nil {
		return common.Hash{}, s.sendErr
	}
	return crypto.Keccak256Hash(input), nil
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(s.blockNumber.Load())
}

func newTestClient(t *testing.T, service *ethService, cfg ChainConfig) *Client {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", service))
	t.Cleanup(server.Stop)

	client := NewClient(cfg, rpc.DialInProc(server), nil)
	t.Cleanup(client.Close)
	return client
}

func TestSendRawTransaction(t *testing.T) {
	raw := []byte{0x02, 0xf8, 0x01}

	type testCase struct {
		Name          string
		SendErr       error
		ExpectedHash  common.Hash
		ExpectedError bool
		Retryable     bool
	}

	testCases := []testCase{
		{
			Name:         "sent",
			ExpectedHash: crypto.Keccak256Hash(raw),
		},
		{
			Name:         "already known counts as sent",
			SendErr:      errors.New("already known"),
			ExpectedHash: crypto.Keccak256Hash(raw),
		},
		{
			Name:          "fatal node error",
			SendErr:       errors.New("nonce too low"),
			ExpectedError: true,
		},
		{
			Name:          "transient node error",
			SendErr:       errors.New("request timed out"),
			ExpectedError: true,
			Retryable:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			client := newTestClient(t, &ethService{sendErr: tc.SendErr}, ChainConfig{ChainID: 1})

			hash, err := client.SendRawTransaction(context.Background(), raw)
			if tc.ExpectedError {
				require.Error(t, err)
				assert.Equal(t, tc.Retryable, retry.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.ExpectedHash, hash)
		})
	}
}

func TestSendPrivateRawTransactionWithoutRelay(t *testing.T) {
	client := newTestClient(t, &ethService{}, ChainConfig{ChainID: 1})
	_, err := client.SendPrivateRawTransaction(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrPrivateRelayNotConfigured)
}

func TestCircuitBreakerFailsFast(t *testing.T) {
	service := &ethService{sendErr: errors.New("service unavailable")}
	client := newTestClient(t, service, ChainConfig{
		ChainID:        1,
		CircuitBreaker: BreakerConfig{FailureThreshold: 2, Timeout: types.NewDuration(time.Hour)},
	})

	for i := 0; i < 2; i++ {
		_, err := client.SendRawTransaction(context.Background(), []byte{0x01})
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, client.breaker.State())

	_, err := client.SendRawTransaction(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, retry.IsRetryable(err))
	assert.Equal(t, int32(2), service.sent.Load())
}

func TestPollNewBlocks(t *testing.T) {
	service := &ethService{}
	service.blockNumber.Store(10)
	client := newTestClient(t, service, ChainConfig{ChainID: 1, PollInterval: types.NewDuration(5 * time.Millisecond)})

	sink := make(chan uint64)
	sub, err := client.SubscribeNewBlocks(context.Background(), sink)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), <-sink)
	service.blockNumber.Store(12)
	assert.Equal(t, uint64(12), <-sink)

	sub.Unsubscribe()
	service.blockNumber.Store(13)
	select {
	case n := <-sink:
		t.Fatalf("unexpected block %d after unsubscribe", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		err       error
		retryable bool
	}{
		{context.DeadlineExceeded, true},
		{rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, true},
		{rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, true},
		{rpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"}, false},
		{errors.New("execution reverted"), false},
		{errors.New("insufficient funds for gas * price + value"), false},
		{ethereum.NotFound, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", ErrCircuitOpen), true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.retryable, retry.IsRetryable(classifyError(tc.err)), tc.err.Error())
	}
	assert.NoError(t, classifyError(nil))
}

func TestCircuitBreakerStates(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: types.NewDuration(10 * time.Millisecond)})
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
