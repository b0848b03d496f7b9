package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusPending.IsValid())
	assert.False(t, Status("sent").IsValid())
}

func TestRecordCopyIsIndependent(t *testing.T) {
	nonce := uint64(7)
	to := common.HexToAddress("0x2")
	record := &TransactionRecord{
		ID:      "id-1",
		ChainID: 1,
		From:    common.HexToAddress("0x1"),
		Options: TransactionOptions{
			Request: TransactionRequest{
				ChainID: 1,
				To:      &to,
				Value:   big.NewInt(10),
				Nonce:   &nonce,
				GasFeeParameters: GasFeeParameters{
					GasPrice: big.NewInt(100),
				},
			},
		},
		TypeInfo: NewApproveTypeInfo(common.HexToAddress("0x3"), common.HexToAddress("0x4"), big.NewInt(5)),
	}

	c := record.Copy()
	*c.Options.Request.Nonce = 8
	c.Options.Request.Value.SetInt64(20)
	c.Options.Request.GasPrice.SetInt64(200)
	c.TypeInfo.Approve.Amount.SetInt64(50)

	n, ok := record.Nonce()
	require.True(t, ok)
	assert.Equal(t, uint64(7), n)
	assert.Equal(t, int64(10), record.Options.Request.Value.Int64())
	assert.Equal(t, int64(100), record.Options.Request.GasPrice.Int64())
	assert.Equal(t, int64(5), record.TypeInfo.Approve.Amount.Int64())
}

func TestTypeInfoValidity(t *testing.T) {
	assert.True(t, NewApproveTypeInfo(common.Address{}, common.Address{}, nil).IsValid())
	assert.True(t, NewWrapTypeInfo(true, big.NewInt(1)).IsValid())
	assert.True(t, UnknownTypeInfo().IsValid())
	assert.False(t, TypeInfo{Type: TransactionTypeSwap}.IsValid())
	assert.False(t, TypeInfo{Type: "bridge"}.IsValid())
}

func TestRecordJSON(t *testing.T) {
	record := &TransactionRecord{
		ID:       "id-1",
		ChainID:  5,
		From:     common.HexToAddress("0x1"),
		Status:   StatusPending,
		TypeInfo: NewWrapTypeInfo(false, big.NewInt(1000)),
		Options: TransactionOptions{
			Private: true,
			Request: TransactionRequest{
				GasFeeParameters: GasFeeParameters{
					MaxFeePerGas:         big.NewInt(30),
					MaxPriorityFeePerGas: big.NewInt(2),
				},
			},
		},
	}

	b, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded TransactionRecord
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, record.ID, decoded.ID)
	assert.True(t, decoded.IsPrivate())
	assert.True(t, decoded.Options.Request.IsEIP1559())
	assert.False(t, decoded.Options.Request.IsLegacy())
	assert.False(t, decoded.HasHash())
	assert.Equal(t, int64(1000), decoded.TypeInfo.Wrap.Amount.Int64())
}
