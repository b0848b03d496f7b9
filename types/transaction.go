package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Status represents the lifecycle status of a transaction record
type Status string

const (
	// StatusPending represents a tx that has been recorded and may or may not have reached the chain
	StatusPending Status = "pending"
	// StatusConfirmed represents a tx that has been mined successfully
	StatusConfirmed Status = "confirmed"
	// StatusFailed represents a tx that has been mined and reverted, or that expired waiting for a receipt
	StatusFailed Status = "failed"
	// StatusCancelled represents a tx that has been superseded by a replacement with the same nonce
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if no further transition is allowed from the status
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusCancelled
}

// IsValid returns true for the known statuses
func (s Status) IsValid() bool {
	return s == StatusPending || s.IsTerminal()
}

// TransactionRequest is the populated, not yet signed, transaction request
type TransactionRequest struct {
	ChainID  uint64          `json:"chainId"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Value    *big.Int        `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Nonce    *uint64         `json:"nonce,omitempty"`
	GasLimit uint64          `json:"gasLimit,omitempty"`
	GasFeeParameters
}

// HasNonce returns true if the nonce has been assigned
func (r *TransactionRequest) HasNonce() bool {
	return r.Nonce != nil
}

// Copy returns a deep copy of the request
func (r TransactionRequest) Copy() TransactionRequest {
	c := r
	if r.To != nil {
		to := *r.To
		c.To = &to
	}
	if r.Value != nil {
		c.Value = new(big.Int).Set(r.Value)
	}
	if r.Data != nil {
		c.Data = common.CopyBytes(r.Data)
	}
	if r.Nonce != nil {
		nonce := *r.Nonce
		c.Nonce = &nonce
	}
	c.GasFeeParameters = r.GasFeeParameters.Copy()
	return c
}

// TransactionOptions holds the submission context of a record
type TransactionOptions struct {
	// Request is the populated request the signed payload was built from
	Request TransactionRequest `json:"request"`
	// Private is true when the tx is submitted through a private relay
	Private bool `json:"private,omitempty"`
	// SignedTxHash is the hash of the signed payload, known before broadcasting
	SignedTxHash common.Hash `json:"signedTxHash,omitempty"`
	// RawTransaction is the signed payload, kept to allow rebroadcasting
	RawTransaction hexutil.Bytes `json:"rawTransaction,omitempty"`
}

// TransactionRecord is the unit of work tracked from submission to finalization
type TransactionRecord struct {
	ID          string             `json:"id"`
	ChainID     uint64             `json:"chainId"`
	From        common.Address     `json:"from"`
	Hash        common.Hash        `json:"hash,omitempty"`
	TypeInfo    TypeInfo           `json:"typeInfo"`
	Status      Status             `json:"status"`
	SubmittedAt time.Time          `json:"submittedAt,omitempty"`
	ConfirmedAt *time.Time         `json:"confirmedAt,omitempty"`
	Receipt     *Receipt           `json:"receipt,omitempty"`
	Options     TransactionOptions `json:"options"`
	// ReplacesID is the id of the record superseded by this fee bump replacement
	ReplacesID string    `json:"replacesId,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasHash returns true once the hash has been assigned
func (t *TransactionRecord) HasHash() bool {
	return t.Hash != (common.Hash{})
}

// TrackingHash returns the hash to look the receipt up with: the assigned hash, or the hash
// of the signed payload when the broadcast result was never recorded
func (t *TransactionRecord) TrackingHash() (common.Hash, bool) {
	if t.HasHash() {
		return t.Hash, true
	}
	if t.Options.SignedTxHash != (common.Hash{}) {
		return t.Options.SignedTxHash, true
	}
	return common.Hash{}, false
}

// Nonce returns the nonce of the underlying request, if assigned
func (t *TransactionRecord) Nonce() (uint64, bool) {
	if t.Options.Request.Nonce == nil {
		return 0, false
	}
	return *t.Options.Request.Nonce, true
}

// IsPrivate returns true if the record was submitted through a private relay
func (t *TransactionRecord) IsPrivate() bool {
	return t.Options.Private
}

// Copy returns a deep copy of the record
func (t *TransactionRecord) Copy() *TransactionRecord {
	c := *t
	c.Options.Request = t.Options.Request.Copy()
	if t.Options.RawTransaction != nil {
		c.Options.RawTransaction = common.CopyBytes(t.Options.RawTransaction)
	}
	if t.ConfirmedAt != nil {
		confirmedAt := *t.ConfirmedAt
		c.ConfirmedAt = &confirmedAt
	}
	if t.Receipt != nil {
		receipt := *t.Receipt
		receipt.EffectiveGasPrice = copyBig(t.Receipt.EffectiveGasPrice)
		c.Receipt = &receipt
	}
	c.TypeInfo = t.TypeInfo.Copy()
	return &c
}

// Tag returns a short identifier used in logs
func (t *TransactionRecord) Tag() string {
	if t.HasHash() {
		return fmt.Sprintf("[%s]:%s", t.ID, t.Hash.Hex())
	}
	return fmt.Sprintf("[%s]", t.ID)
}
