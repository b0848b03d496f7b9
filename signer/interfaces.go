package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ChainClient is the node access of one chain
type ChainClient interface {
	ChainID() uint64
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethTypes.Header, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	SendPrivateRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethTypes.Receipt, error)
}

// KeyStore holds the account keys. It never exposes them.
type KeyStore interface {
	Accounts() []common.Address
	SignTransaction(ctx context.Context, account common.Address, tx *ethTypes.Transaction, chainID *big.Int) (*ethTypes.Transaction, error)
	SignTypedData(ctx context.Context, account common.Address, typedData apitypes.TypedData) ([]byte, error)
	SignMessage(ctx context.Context, account common.Address, message []byte) ([]byte, error)
}
