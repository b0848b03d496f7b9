package db

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

// recordRow holds the indexed columns of a record next to its JSON encoding
type recordRow struct {
	id          string
	chainID     uint64
	fromAddress string
	hash        sql.NullString
	status      string
	nonce       sql.NullInt64
	private     bool
	replacesID  sql.NullString
	data        []byte
}

func newRecordRow(tx *types.TransactionRecord) (*recordRow, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	row := &recordRow{
		id:          tx.ID,
		chainID:     tx.ChainID,
		fromAddress: addressKey(tx.From),
		status:      string(tx.Status),
		private:     tx.IsPrivate(),
		data:        data,
	}
	if tx.HasHash() {
		row.hash = sql.NullString{String: tx.Hash.Hex(), Valid: true}
	}
	if nonce, ok := tx.Nonce(); ok {
		row.nonce = sql.NullInt64{Int64: int64(nonce), Valid: true}
	}
	if tx.ReplacesID != "" {
		row.replacesID = sql.NullString{String: tx.ReplacesID, Valid: true}
	}
	return row, nil
}

func decodeRecord(data []byte) (*types.TransactionRecord, error) {
	tx := &types.TransactionRecord{}
	if err := json.Unmarshal(data, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func addressKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}
