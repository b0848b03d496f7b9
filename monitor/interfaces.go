package monitor

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

type repositoryInterface interface {
	FinalizeTransaction(ctx context.Context, tx *types.TransactionRecord, status types.Status) error
	GetPendingTransactions(ctx context.Context, chainID uint64) ([]*types.TransactionRecord, error)
	GetTransaction(ctx context.Context, id string) (*types.TransactionRecord, error)
	Subscribe(buffer int) (<-chan repository.Event, func())
}

type blockStreamInterface interface {
	Subscribe(buffer int) (<-chan types.BlockUpdate, func())
}

// ReceiptClient fetches the receipts of one chain
type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethTypes.Receipt, error)
}

// NonceResyncer gives back the nonce of a record that expired without reaching the chain
type NonceResyncer interface {
	ResyncNonce(account common.Address, chainID uint64, nonce uint64)
}
