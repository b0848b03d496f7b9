package executor

import (
	"errors"

	"github.com/0xPolygonHermez/zkevm-tx-engine/gas"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
)

var (
	// ErrInvalidParams is returned when the flow parameters are incomplete or malformed
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrPrivateRelayBusy is returned when a previous private transaction of the account is still pending
	ErrPrivateRelayBusy = errors.New("a private transaction of the account is still pending")
	// ErrAlreadyReplaced is returned when speeding up a transaction that already is a replacement
	ErrAlreadyReplaced = errors.New("transaction already is a fee bump replacement")
	// ErrNotReplaceable is returned when speeding up a transaction without an assigned nonce
	ErrNotReplaceable = errors.New("transaction has no nonce to replace")
)

// ErrorKind groups flow failures by what the caller can do about them
type ErrorKind string

const (
	// ErrorKindSigning means the key store refused to sign. Retrying does not help
	ErrorKindSigning ErrorKind = "signing"
	// ErrorKindEstimation means the transaction would fail on chain. Retrying does not help
	ErrorKindEstimation ErrorKind = "estimation"
	// ErrorKindNetwork means a transient failure outlived its retries, or the flow was cancelled
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindInvalid means the request cannot be served as sent
	ErrorKindInvalid ErrorKind = "invalid"
	// ErrorKindInternal is any other failure
	ErrorKindInternal ErrorKind = "internal"
)

// Classify returns the kind of a flow error
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, signer.ErrSigning):
		return ErrorKindSigning
	case errors.Is(err, signer.ErrEstimation):
		return ErrorKindEstimation
	case errors.Is(err, retry.ErrCancelled), errors.Is(err, ErrPrivateRelayBusy), retry.IsRetryable(err):
		return ErrorKindNetwork
	case errors.Is(err, ErrInvalidParams),
		errors.Is(err, ErrAlreadyReplaced),
		errors.Is(err, ErrNotReplaceable),
		errors.Is(err, signer.ErrUnknownAccount),
		errors.Is(err, signer.ErrUnknownChain),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrNotPending),
		errors.Is(err, repository.ErrInvalidRecord),
		errors.Is(err, gas.ErrMalformedFeeParameters),
		errors.Is(err, gas.ErrInvalidAdjustmentFactor),
		errors.Is(err, gas.ErrFeeOverflow):
		return ErrorKindInvalid
	}
	return ErrorKindInternal
}
