package executor

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	mock "github.com/stretchr/testify/mock"
)

// repositoryMock is a mock of repositoryInterface
type repositoryMock struct {
	mock.Mock
}

func (_m *repositoryMock) AddTransaction(ctx context.Context, tx *types.TransactionRecord) error {
	ret := _m.Called(ctx, tx)
	return ret.Error(0)
}

func (_m *repositoryMock) UpdateTransaction(ctx context.Context, tx *types.TransactionRecord, opts repository.UpdateOptions) error {
	ret := _m.Called(ctx, tx, opts)
	return ret.Error(0)
}

func (_m *repositoryMock) GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error) {
	ret := _m.Called(ctx, id)
	var r0 *types.TransactionRecord
	if rf, ok := ret.Get(0).(*types.TransactionRecord); ok {
		r0 = rf
	}
	return r0, ret.Error(1)
}

func (_m *repositoryMock) GetPendingPrivateTransactionCount(ctx context.Context, address common.Address, chainID uint64) (uint64, error) {
	ret := _m.Called(ctx, address, chainID)
	return ret.Get(0).(uint64), ret.Error(1)
}

// signerMock is a mock of signer.Signer
type signerMock struct {
	mock.Mock
	address common.Address
}

func (_m *signerMock) Address() common.Address {
	return _m.address
}

func (_m *signerMock) PrepareTransaction(ctx context.Context, req types.TransactionRequest) (types.TransactionRequest, error) {
	ret := _m.Called(ctx, req)
	if rf, ok := ret.Get(0).(func(context.Context, types.TransactionRequest) (types.TransactionRequest, error)); ok {
		return rf(ctx, req)
	}
	return ret.Get(0).(types.TransactionRequest), ret.Error(1)
}

func (_m *signerMock) SignTransaction(ctx context.Context, req types.TransactionRequest) (*signer.SignedTransaction, error) {
	ret := _m.Called(ctx, req)
	if rf, ok := ret.Get(0).(func(context.Context, types.TransactionRequest) (*signer.SignedTransaction, error)); ok {
		return rf(ctx, req)
	}
	var r0 *signer.SignedTransaction
	if rf, ok := ret.Get(0).(*signer.SignedTransaction); ok {
		r0 = rf
	}
	return r0, ret.Error(1)
}

func (_m *signerMock) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	ret := _m.Called(ctx, typedData)
	var r0 []byte
	if rf, ok := ret.Get(0).([]byte); ok {
		r0 = rf
	}
	return r0, ret.Error(1)
}

func (_m *signerMock) SendTransaction(ctx context.Context, signed *signer.SignedTransaction, private bool) (*signer.SendResult, error) {
	ret := _m.Called(ctx, signed, private)
	var r0 *signer.SendResult
	if rf, ok := ret.Get(0).(*signer.SendResult); ok {
		r0 = rf
	}
	return r0, ret.Error(1)
}

func (_m *signerMock) SendTransactionSync(ctx context.Context, signed *signer.SignedTransaction, private bool, policy retry.Policy) (*ethTypes.Receipt, error) {
	ret := _m.Called(ctx, signed, private, policy)
	var r0 *ethTypes.Receipt
	if rf, ok := ret.Get(0).(*ethTypes.Receipt); ok {
		r0 = rf
	}
	return r0, ret.Error(1)
}

func (_m *signerMock) ReleaseNonce(chainID uint64, nonce uint64) {
	_m.Called(chainID, nonce)
}

func (_m *signerMock) ResyncNonce(chainID uint64, nonce uint64) {
	_m.Called(chainID, nonce)
}

type registryMock map[common.Address]signer.Signer

func (r registryMock) Get(address common.Address) (signer.Signer, error) {
	s, found := r[address]
	if !found {
		return nil, signer.ErrUnknownAccount
	}
	return s, nil
}
