package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

// BlockUpdate is published every time a chain reports a new block
type BlockUpdate struct {
	ChainID     uint64 `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
}

func (b BlockUpdate) String() string {
	return fmt.Sprintf("chain %d block %d", b.ChainID, b.BlockNumber)
}

const (
	// ReceiptStatusFailed is the status code of a transaction if execution failed.
	ReceiptStatusFailed = ethTypes.ReceiptStatusFailed
	// ReceiptStatusSuccessful is the status code of a transaction if execution succeeded.
	ReceiptStatusSuccessful = ethTypes.ReceiptStatusSuccessful
)

// Receipt is the persisted subset of a mined transaction receipt
type Receipt struct {
	BlockNumber       uint64      `json:"blockNumber"`
	BlockHash         common.Hash `json:"blockHash"`
	TransactionIndex  uint        `json:"transactionIndex"`
	Status            uint64      `json:"status"`
	GasUsed           uint64      `json:"gasUsed"`
	EffectiveGasPrice *big.Int    `json:"effectiveGasPrice,omitempty"`
	MinedAt           time.Time   `json:"minedAt"`
}

// NewReceipt converts a go-ethereum receipt
func NewReceipt(r *ethTypes.Receipt, minedAt time.Time) *Receipt {
	receipt := &Receipt{
		BlockHash:        r.BlockHash,
		TransactionIndex: r.TransactionIndex,
		Status:           r.Status,
		GasUsed:          r.GasUsed,
		MinedAt:          minedAt,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		receipt.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	return receipt
}

// Succeeded returns true if the transaction execution succeeded
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}
