package server

import (
	"fmt"

	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
)

const (
	// DefaultErrorCode default error code
	DefaultErrorCode = -32000
	// InvalidRequestErrorCode error code for invalid requests
	InvalidRequestErrorCode = -32600
	// NotFoundErrorCode error code for not found objects
	NotFoundErrorCode = -32601
	// InvalidParamsErrorCode error code for invalid parameters
	InvalidParamsErrorCode = -32602
	// InternalErrorCode error code for unexpected failures
	InternalErrorCode = -32603
	// ParserErrorCode error code for parsing errors
	ParserErrorCode = -32700
	// SignerRejectedErrorCode error code for txs the key store refused to sign
	SignerRejectedErrorCode = -32010
	// ExecutionRevertedErrorCode error code for txs that would fail on chain
	ExecutionRevertedErrorCode = -32011
	// NetworkErrorCode error code for transient failures that outlived their retries
	NetworkErrorCode = -32012
)

const (
	signerRejectedMessage    = "transaction rejected by signer"
	executionRevertedMessage = "transaction would fail"
	networkErrorMessage      = "network issue, try again"
	internalErrorMessage     = "internal error"
)

var (
	// ErrBatchRequestsDisabled returned by the server when a batch request is detected and the batch requests are disabled via configuration
	ErrBatchRequestsDisabled = fmt.Errorf("batch requests are disabled")
	// ErrBatchRequestsLimitExceeded returned by the server when a batch request is detected and the number of requests are greater than the configured limit
	ErrBatchRequestsLimitExceeded = fmt.Errorf("batch requests limit exceeded")
)

// Error interface
type Error interface {
	Error() string
	ErrorCode() int
	ErrorData() []byte
}

// ServerError represents an error returned by a tx engine endpoint
type ServerError struct {
	err  string
	code int
	data []byte
}

// NewServerError creates a new error instance to be returned by the tx engine endpoints
func NewServerError(code int, err string, args ...interface{}) *ServerError {
	return NewServerErrorWithData(code, err, nil, args...)
}

// NewServerErrorWithData creates a new error instance with data to be returned by the tx engine endpoints
func NewServerErrorWithData(code int, err string, data []byte, args ...interface{}) *ServerError {
	var errMessage string
	if len(args) > 0 {
		errMessage = fmt.Sprintf(err, args...)
	} else {
		errMessage = err
	}
	return &ServerError{code: code, err: errMessage, data: data}
}

// Error returns the error message
func (e ServerError) Error() string {
	return e.err
}

// ErrorCode returns the error code
func (e *ServerError) ErrorCode() int {
	return e.code
}

// ErrorData returns the error data
func (e *ServerError) ErrorData() []byte {
	return e.data
}

// flowErrorResponse maps a flow failure to the error returned to the caller. Invalid requests
// carry the failure message, any other kind gets a fixed message.
func flowErrorResponse(err error) (interface{}, Error) {
	switch executor.Classify(err) {
	case executor.ErrorKindSigning:
		return RPCErrorResponse(SignerRejectedErrorCode, signerRejectedMessage, err, true)
	case executor.ErrorKindEstimation:
		return RPCErrorResponse(ExecutionRevertedErrorCode, executionRevertedMessage, err, true)
	case executor.ErrorKindNetwork:
		return RPCErrorResponse(NetworkErrorCode, networkErrorMessage, err, true)
	case executor.ErrorKindInvalid:
		return RPCErrorResponse(InvalidParamsErrorCode, err.Error(), err, true)
	}
	log.Errorf("unexpected flow error: %v", err)
	return RPCErrorResponse(InternalErrorCode, internalErrorMessage, err, false)
}
