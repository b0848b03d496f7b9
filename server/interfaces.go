package server

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

type executorInterface interface {
	ExecuteTransaction(ctx context.Context, params executor.ExecuteParams) (*executor.ExecuteResult, error)
	Approve(ctx context.Context, params executor.ApproveParams) (bool, error)
	Wrap(ctx context.Context, params executor.WrapParams) error
	ClassifyWrap(input, output executor.Currency) executor.WrapType
	SpeedUp(ctx context.Context, id string, factor float64) (*executor.ExecuteResult, error)
}

type repositoryInterface interface {
	GetTransactionsByAddress(ctx context.Context, address common.Address) ([]*types.TransactionRecord, error)
	GetPendingPrivateTransactionCount(ctx context.Context, address common.Address, chainID uint64) (uint64, error)
}
