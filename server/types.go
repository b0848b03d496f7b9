package server

import (
	"encoding/json"
	"fmt"

	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/hex"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request is a jsonrpc Request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a jsonrpc success/error response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Id      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a jsonrpc error
type ErrorObject struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    *ArgBytes `json:"data,omitempty"`
}

// ArgBytes helps to marshal byte array values provided in the RPC requests
type ArgBytes []byte

// ArgBytesPtr helps to marshal byte array values provided in the RPC requests
func ArgBytesPtr(b []byte) *ArgBytes {
	bb := ArgBytes(b)

	return &bb
}

// NewResponse returns Success/Error response object
func NewResponse(req Request, reply []byte, err Error) Response {
	var result json.RawMessage
	if reply != nil {
		result = reply
	}

	var errorObj *ErrorObject
	if err != nil {
		errorObj = &ErrorObject{
			Code:    err.ErrorCode(),
			Message: err.Error(),
		}
		if err.ErrorData() != nil {
			errorObj.Data = ArgBytesPtr(err.ErrorData())
		}
	}

	return Response{
		JSONRPC: req.JSONRPC,
		Id:      req.ID,
		Result:  result,
		Error:   errorObj,
	}
}

// GasFeeArgs overrides the suggested fees of a tx
type GasFeeArgs struct {
	GasPrice             *hexutil.Big `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
}

func (a *GasFeeArgs) parameters() types.GasFeeParameters {
	if a == nil {
		return types.GasFeeParameters{}
	}
	return types.GasFeeParameters{
		GasPrice:             a.GasPrice.ToInt(),
		MaxFeePerGas:         a.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: a.MaxPriorityFeePerGas.ToInt(),
	}
}

// ExecuteTransactionArgs are the arguments of txengine_executeTransaction
type ExecuteTransactionArgs struct {
	ID       string          `json:"id,omitempty"`
	ChainID  uint64          `json:"chainId"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     string          `json:"data,omitempty"`
	GasLimit hexutil.Uint64  `json:"gasLimit,omitempty"`
	Fees     *GasFeeArgs     `json:"fees,omitempty"`
	Private  bool            `json:"private,omitempty"`
	TypeInfo *types.TypeInfo `json:"typeInfo,omitempty"`
}

func (a ExecuteTransactionArgs) params() (executor.ExecuteParams, error) {
	var data []byte
	if a.Data != "" {
		if !hex.IsValid(a.Data) {
			return executor.ExecuteParams{}, fmt.Errorf("invalid data")
		}
		decoded, err := hex.DecodeHex(a.Data)
		if err != nil {
			return executor.ExecuteParams{}, err
		}
		data = decoded
	}
	typeInfo := types.UnknownTypeInfo()
	if a.TypeInfo != nil {
		if !a.TypeInfo.IsValid() {
			return executor.ExecuteParams{}, fmt.Errorf("invalid type info")
		}
		typeInfo = *a.TypeInfo
	}
	return executor.ExecuteParams{
		ID:       a.ID,
		ChainID:  a.ChainID,
		From:     a.From,
		To:       a.To,
		Value:    a.Value.ToInt(),
		Data:     data,
		GasLimit: uint64(a.GasLimit),
		Fees:     a.Fees.parameters(),
		Private:  a.Private,
		TypeInfo: typeInfo,
	}, nil
}

// ApproveArgs are the arguments of txengine_approve
type ApproveArgs struct {
	ID       string         `json:"id,omitempty"`
	ChainID  uint64         `json:"chainId"`
	From     common.Address `json:"from"`
	Token    common.Address `json:"token"`
	Spender  common.Address `json:"spender"`
	Amount   *hexutil.Big   `json:"amount"`
	GasLimit string         `json:"gasLimit,omitempty"`
	Fees     *GasFeeArgs    `json:"fees,omitempty"`
	Private  bool           `json:"private,omitempty"`
}

func (a ApproveArgs) params() executor.ApproveParams {
	return executor.ApproveParams{
		ID:       a.ID,
		ChainID:  a.ChainID,
		From:     a.From,
		Token:    a.Token,
		Spender:  a.Spender,
		Amount:   a.Amount.ToInt(),
		GasLimit: a.GasLimit,
		Fees:     a.Fees.parameters(),
		Private:  a.Private,
	}
}

// WrapArgs are the arguments of txengine_wrap
type WrapArgs struct {
	ID       string            `json:"id,omitempty"`
	From     common.Address    `json:"from"`
	Input    executor.Currency `json:"input"`
	Output   executor.Currency `json:"output"`
	Amount   *hexutil.Big      `json:"amount"`
	GasLimit hexutil.Uint64    `json:"gasLimit,omitempty"`
	Fees     *GasFeeArgs       `json:"fees,omitempty"`
	Private  bool              `json:"private,omitempty"`
}

func (a WrapArgs) params() executor.WrapParams {
	return executor.WrapParams{
		ID:       a.ID,
		From:     a.From,
		Input:    a.Input,
		Output:   a.Output,
		Amount:   a.Amount.ToInt(),
		GasLimit: uint64(a.GasLimit),
		Fees:     a.Fees.parameters(),
		Private:  a.Private,
	}
}
