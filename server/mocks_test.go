package server

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	mock "github.com/stretchr/testify/mock"
)

type executorMock struct {
	mock.Mock
}

func (m *executorMock) ExecuteTransaction(ctx context.Context, params executor.ExecuteParams) (*executor.ExecuteResult, error) {
	args := m.Called(ctx, params)
	var result *executor.ExecuteResult
	if r := args.Get(0); r != nil {
		result = r.(*executor.ExecuteResult)
	}
	return result, args.Error(1)
}

func (m *executorMock) Approve(ctx context.Context, params executor.ApproveParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *executorMock) Wrap(ctx context.Context, params executor.WrapParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *executorMock) ClassifyWrap(input, output executor.Currency) executor.WrapType {
	args := m.Called(input, output)
	return args.Get(0).(executor.WrapType)
}

func (m *executorMock) SpeedUp(ctx context.Context, id string, factor float64) (*executor.ExecuteResult, error) {
	args := m.Called(ctx, id, factor)
	var result *executor.ExecuteResult
	if r := args.Get(0); r != nil {
		result = r.(*executor.ExecuteResult)
	}
	return result, args.Error(1)
}

type repositoryMock struct {
	mock.Mock
}

func (m *repositoryMock) GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error) {
	args := m.Called(ctx, address)
	var txs []*types.TransactionRecord
	if r := args.Get(0); r != nil {
		txs = r.([]*types.TransactionRecord)
	}
	return txs, args.Error(1)
}

func (m *repositoryMock) GetPendingPrivateTransactionCount(ctx context.Context, address common.Address, chainID uint64) (uint64, error) {
	args := m.Called(ctx, address, chainID)
	return args.Get(0).(uint64), args.Error(1)
}
