package executor

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

type repositoryInterface interface {
	AddTransaction(ctx context.Context, tx *types.TransactionRecord) error
	UpdateTransaction(ctx context.Context, tx *types.TransactionRecord, opts repository.UpdateOptions) error
	GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error)
	GetPendingPrivateTransactionCount(ctx context.Context, address common.Address, chainID uint64) (uint64, error)
}

type signerRegistryInterface interface {
	Get(address common.Address) (signer.Signer, error)
}
