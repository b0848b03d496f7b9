package server

import (
	"net/http"

	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
)

// Endpoints contains implementations for the tx engine endpoints
type Endpoints struct {
	cfg      Config
	executor executorInterface
	repo     repositoryInterface
}

// NewEndpoints creates an new instance of endpoints
func NewEndpoints(cfg Config, executor executorInterface, repo repositoryInterface) *Endpoints {
	e := &Endpoints{cfg: cfg, executor: executor, repo: repo}
	return e
}

// ExecuteTransaction signs, records and broadcasts a tx
func (e *Endpoints) ExecuteTransaction(httpRequest *http.Request, args ExecuteTransactionArgs) (interface{}, Error) {
	params, err := args.params()
	if err != nil {
		return RPCErrorResponse(InvalidParamsErrorCode, "invalid tx input", err, false)
	}

	result, err := e.executor.ExecuteTransaction(httpRequest.Context(), params)
	if err != nil {
		return flowErrorResponse(err)
	}

	log.Infof("tx %s executed, hash %s", result.ID, result.TransactionHash.Hex())
	return result, nil
}

// Approve submits an ERC-20 approve. It returns false when no tx was needed
func (e *Endpoints) Approve(httpRequest *http.Request, args ApproveArgs) (interface{}, Error) {
	submitted, err := e.executor.Approve(httpRequest.Context(), args.params())
	if err != nil {
		return flowErrorResponse(err)
	}
	return submitted, nil
}

// Wrap wraps or unwraps the native currency. Currency pairs that are not a wrap are a no-op
func (e *Endpoints) Wrap(httpRequest *http.Request, args WrapArgs) (interface{}, Error) {
	if err := e.executor.Wrap(httpRequest.Context(), args.params()); err != nil {
		return flowErrorResponse(err)
	}
	return true, nil
}

// SpeedUp replaces a pending tx with a copy paying higher fees. The bump factor is optional
func (e *Endpoints) SpeedUp(httpRequest *http.Request, id string, factor *float64) (interface{}, Error) {
	if id == "" {
		return RPCErrorResponse(InvalidParamsErrorCode, "missing tx id", nil, false)
	}

	var f float64
	if factor != nil {
		f = *factor
	}
	result, err := e.executor.SpeedUp(httpRequest.Context(), id, f)
	if err != nil {
		return flowErrorResponse(err)
	}

	log.Infof("tx %s sped up by tx %s, hash %s", id, result.ID, result.TransactionHash.Hex())
	return result, nil
}

// GetTransactionsByAddress returns the txs sent from address, newest first
func (e *Endpoints) GetTransactionsByAddress(httpRequest *http.Request, address common.Address) (interface{}, Error) {
	txs, err := e.repo.GetTransactionsByAddress(httpRequest.Context(), address)
	if err != nil {
		log.Errorf("error getting txs of %s, error: %v", address, err)
		return RPCErrorResponse(InternalErrorCode, internalErrorMessage, err, false)
	}
	if txs == nil {
		txs = []*types.TransactionRecord{}
	}
	return txs, nil
}

// GetPendingPrivateTransactionCount returns the number of pending private txs of address on a chain
func (e *Endpoints) GetPendingPrivateTransactionCount(httpRequest *http.Request, address common.Address, chainID uint64) (interface{}, Error) {
	count, err := e.repo.GetPendingPrivateTransactionCount(httpRequest.Context(), address, chainID)
	if err != nil {
		log.Errorf("error counting pending private txs of %s, error: %v", address, err)
		return RPCErrorResponse(InternalErrorCode, internalErrorMessage, err, false)
	}
	return count, nil
}

// ClassifyWrap returns how a currency pair is handled by txengine_wrap
func (e *Endpoints) ClassifyWrap(input executor.Currency, output executor.Currency) (interface{}, Error) {
	return e.executor.ClassifyWrap(input, output).String(), nil
}
