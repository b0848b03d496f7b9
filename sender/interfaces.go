package sender

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

type repositoryInterface interface {
	GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error)
	UpdateTransaction(ctx context.Context, tx *types.TransactionRecord, opts repository.UpdateOptions) error
}

// RawSender broadcasts signed payloads to one chain
type RawSender interface {
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	SendPrivateRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
}
