package signer

import "errors"

var (
	// ErrEstimation is returned when the node rejects the gas estimation of a request,
	// which means the transaction would fail on chain
	ErrEstimation = errors.New("gas estimation failed")
	// ErrSigning is returned when the key store refuses or fails to sign
	ErrSigning = errors.New("signing failed")
	// ErrUnknownAccount is returned when no key is available for the address
	ErrUnknownAccount = errors.New("unknown account")
	// ErrUnknownChain is returned when no chain client is configured for the chain id
	ErrUnknownChain = errors.New("unknown chain")
	// ErrIncompleteRequest is returned when signing a request that has not been prepared
	ErrIncompleteRequest = errors.New("transaction request is not prepared")
	// ErrAbnormalNonceState is returned when the mined nonce is higher than the pending nonce
	ErrAbnormalNonceState = errors.New("mined nonce is higher than pending nonce, this is abnormal data from nodes, retry again later")
)
