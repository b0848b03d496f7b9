package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// SignedTransaction is a signed payload ready to be broadcast
type SignedTransaction struct {
	Request types.TransactionRequest
	Raw     []byte
	Hash    common.Hash
}

// SendResult is the outcome of a broadcast
type SendResult struct {
	Hash        common.Hash
	SubmittedAt time.Time
}

// Signer prepares, signs and broadcasts the transactions of one account
type Signer interface {
	Address() common.Address
	// PrepareTransaction fills the gas limit, fees and nonce missing from req
	PrepareTransaction(ctx context.Context, req types.TransactionRequest) (types.TransactionRequest, error)
	SignTransaction(ctx context.Context, req types.TransactionRequest) (*SignedTransaction, error)
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
	// SendTransaction broadcasts the payload, through the chain private relay when private is set
	SendTransaction(ctx context.Context, signed *SignedTransaction, private bool) (*SendResult, error)
	// SendTransactionSync broadcasts the payload and waits for its receipt, polling following policy
	SendTransactionSync(ctx context.Context, signed *SignedTransaction, private bool, policy retry.Policy) (*ethTypes.Receipt, error)
	// ReleaseNonce gives back a nonce reserved by PrepareTransaction that will never be broadcast
	ReleaseNonce(chainID uint64, nonce uint64)
	// ResyncNonce gives back nonce and the later reservations after the node is known to have
	// never received nonce
	ResyncNonce(chainID uint64, nonce uint64)
}

// AccountSigner is the Signer of an account held by a KeyStore
type AccountSigner struct {
	address common.Address
	keys    KeyStore
	clients map[uint64]ChainClient
	nonces  *NonceTracker

	// signing is serialized per account
	mutex sync.Mutex
}

// NewAccountSigner creates the signer of address
func NewAccountSigner(address common.Address, keys KeyStore, clients map[uint64]ChainClient, nonces *NonceTracker) *AccountSigner {
	if nonces == nil {
		nonces = NewNonceTracker()
	}
	return &AccountSigner{
		address: address,
		keys:    keys,
		clients: clients,
		nonces:  nonces,
	}
}

// Address returns the signing account
func (s *AccountSigner) Address() common.Address {
	return s.address
}

func (s *AccountSigner) client(chainID uint64) (ChainClient, error) {
	client, found := s.clients[chainID]
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return client, nil
}

// PrepareTransaction fills the gas limit, fees and nonce missing from req. The nonce is
// reserved last, so a failed estimation never consumes one.
func (s *AccountSigner) PrepareTransaction(ctx context.Context, req types.TransactionRequest) (types.TransactionRequest, error) {
	client, err := s.client(req.ChainID)
	if err != nil {
		return types.TransactionRequest{}, err
	}
	prepared := req.Copy()
	prepared.From = s.address

	if prepared.GasLimit == 0 {
		gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:  prepared.From,
			To:    prepared.To,
			Value: prepared.Value,
			Data:  prepared.Data,
		})
		if err != nil {
			if retry.IsRetryable(err) {
				return types.TransactionRequest{}, err
			}
			return types.TransactionRequest{}, fmt.Errorf("%w: %v", ErrEstimation, err)
		}
		prepared.GasLimit = gas
	}

	if prepared.GasFeeParameters.IsEmpty() {
		fees, err := SuggestGasFees(ctx, client)
		if err != nil {
			return types.TransactionRequest{}, err
		}
		prepared.GasFeeParameters = fees
	}

	if !prepared.HasNonce() {
		mined, err := client.NonceAt(ctx, s.address)
		if err != nil {
			return types.TransactionRequest{}, err
		}
		pending, err := client.PendingNonceAt(ctx, s.address)
		if err != nil {
			return types.TransactionRequest{}, err
		}
		nonce, err := s.nonces.Acquire(s.address, req.ChainID, mined, pending)
		if err != nil {
			return types.TransactionRequest{}, retry.Retryable(err)
		}
		prepared.Nonce = &nonce
	}

	return prepared, nil
}

// SuggestGasFees returns EIP-1559 fees (maxFee = 2 * baseFee + tip) when the latest block
// carries a base fee, the legacy gas price otherwise
func SuggestGasFees(ctx context.Context, client ChainClient) (types.GasFeeParameters, error) {
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return types.GasFeeParameters{}, err
	}
	if header.BaseFee == nil {
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return types.GasFeeParameters{}, err
		}
		return types.GasFeeParameters{GasPrice: price}, nil
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return types.GasFeeParameters{}, err
	}
	maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return types.GasFeeParameters{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

func newTransaction(req types.TransactionRequest) (*ethTypes.Transaction, error) {
	if !req.HasNonce() || req.GasLimit == 0 || req.GasFeeParameters.IsEmpty() {
		return nil, ErrIncompleteRequest
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	if req.IsEIP1559() {
		return ethTypes.NewTx(&ethTypes.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(req.ChainID),
			Nonce:     *req.Nonce,
			GasTipCap: req.MaxPriorityFeePerGas,
			GasFeeCap: req.MaxFeePerGas,
			Gas:       req.GasLimit,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		}), nil
	}
	return ethTypes.NewTx(&ethTypes.LegacyTx{
		Nonce:    *req.Nonce,
		GasPrice: req.GasPrice,
		Gas:      req.GasLimit,
		To:       req.To,
		Value:    value,
		Data:     req.Data,
	}), nil
}

// SignTransaction signs a prepared request. A failed signature releases the request nonce.
func (s *AccountSigner) SignTransaction(ctx context.Context, req types.TransactionRequest) (*SignedTransaction, error) {
	tx, err := newTransaction(req)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	signed, err := s.keys.SignTransaction(ctx, s.address, tx, new(big.Int).SetUint64(req.ChainID))
	s.mutex.Unlock()
	if err != nil {
		s.nonces.Release(s.address, req.ChainID, *req.Nonce)
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return &SignedTransaction{Request: req.Copy(), Raw: raw, Hash: signed.Hash()}, nil
}

// ReleaseNonce gives back a nonce reserved by PrepareTransaction that will never be broadcast
func (s *AccountSigner) ReleaseNonce(chainID uint64, nonce uint64) {
	s.nonces.Release(s.address, chainID, nonce)
}

// ResyncNonce rewinds the reservations of the chain to nonce, so the next PrepareTransaction
// fills the gap the node holds at nonce
func (s *AccountSigner) ResyncNonce(chainID uint64, nonce uint64) {
	s.nonces.Rewind(s.address, chainID, nonce)
}

// SignTypedData signs EIP-712 typed data
func (s *AccountSigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sig, err := s.keys.SignTypedData(ctx, s.address, typedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return sig, nil
}

// SendTransaction broadcasts the payload once
func (s *AccountSigner) SendTransaction(ctx context.Context, signed *SignedTransaction, private bool) (*SendResult, error) {
	client, err := s.client(signed.Request.ChainID)
	if err != nil {
		return nil, err
	}

	var hash common.Hash
	if private {
		hash, err = client.SendPrivateRawTransaction(ctx, signed.Raw)
	} else {
		hash, err = client.SendRawTransaction(ctx, signed.Raw)
	}
	if err != nil {
		return nil, err
	}
	if hash != signed.Hash {
		log.Warnf("node returned hash %s for tx %s", hash, signed.Hash)
	}
	return &SendResult{Hash: signed.Hash, SubmittedAt: time.Now()}, nil
}

// SendTransactionSync broadcasts the payload and polls its receipt following policy
func (s *AccountSigner) SendTransactionSync(ctx context.Context, signed *SignedTransaction, private bool, policy retry.Policy) (*ethTypes.Receipt, error) {
	if _, err := s.SendTransaction(ctx, signed, private); err != nil {
		return nil, err
	}
	client, err := s.client(signed.Request.ChainID)
	if err != nil {
		return nil, err
	}
	return retry.Do(ctx, policy, func(ctx context.Context) (*ethTypes.Receipt, error) {
		receipt, err := client.TransactionReceipt(ctx, signed.Hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, retry.Retryable(err)
		}
		return receipt, err
	})
}
