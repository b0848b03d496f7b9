package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionType is the discriminator of TypeInfo
type TransactionType string

const (
	TransactionTypeApprove           TransactionType = "approve"
	TransactionTypeWrap              TransactionType = "wrap"
	TransactionTypeSwap              TransactionType = "swap"
	TransactionTypeSend              TransactionType = "send"
	TransactionTypeReceive           TransactionType = "receive"
	TransactionTypeOnRampPurchase    TransactionType = "onramp-purchase"
	TransactionTypeOffRampSale       TransactionType = "offramp-sale"
	TransactionTypeLpIncentivesClaim TransactionType = "lp-incentives-claim"
	TransactionTypeUnknown           TransactionType = "unknown"
)

// ApproveInfo describes an ERC-20 allowance change
type ApproveInfo struct {
	TokenAddress common.Address `json:"tokenAddress"`
	Spender      common.Address `json:"spender"`
	Amount       *big.Int       `json:"amount,omitempty"`
}

// WrapInfo describes a wrap or unwrap of the chain native currency
type WrapInfo struct {
	Unwrapped bool     `json:"unwrapped"`
	Amount    *big.Int `json:"amount,omitempty"`
}

// SwapInfo describes a token swap
type SwapInfo struct {
	InputToken   common.Address `json:"inputToken"`
	OutputToken  common.Address `json:"outputToken"`
	InputAmount  *big.Int       `json:"inputAmount,omitempty"`
	OutputAmount *big.Int       `json:"outputAmount,omitempty"`
}

// SendInfo describes an outgoing transfer
type SendInfo struct {
	Token     common.Address `json:"token"`
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount,omitempty"`
}

// ReceiveInfo describes an incoming transfer
type ReceiveInfo struct {
	Token  common.Address `json:"token"`
	Sender common.Address `json:"sender"`
	Amount *big.Int       `json:"amount,omitempty"`
}

// RampInfo describes a fiat on/off ramp operation
type RampInfo struct {
	Provider string   `json:"provider"`
	Amount   *big.Int `json:"amount,omitempty"`
}

// LpIncentivesClaimInfo describes a liquidity incentives claim
type LpIncentivesClaimInfo struct {
	Token common.Address `json:"token"`
}

// TypeInfo classifies a transaction. Exactly one of the variant fields matching
// Type is expected to be set; Unknown carries none.
type TypeInfo struct {
	Type              TransactionType        `json:"type"`
	Approve           *ApproveInfo           `json:"approve,omitempty"`
	Wrap              *WrapInfo              `json:"wrap,omitempty"`
	Swap              *SwapInfo              `json:"swap,omitempty"`
	Send              *SendInfo              `json:"send,omitempty"`
	Receive           *ReceiveInfo           `json:"receive,omitempty"`
	OnRampPurchase    *RampInfo              `json:"onRampPurchase,omitempty"`
	OffRampSale       *RampInfo              `json:"offRampSale,omitempty"`
	LpIncentivesClaim *LpIncentivesClaimInfo `json:"lpIncentivesClaim,omitempty"`
}

// NewApproveTypeInfo returns the TypeInfo of an approve transaction
func NewApproveTypeInfo(token, spender common.Address, amount *big.Int) TypeInfo {
	return TypeInfo{Type: TransactionTypeApprove, Approve: &ApproveInfo{TokenAddress: token, Spender: spender, Amount: amount}}
}

// NewWrapTypeInfo returns the TypeInfo of a wrap (or unwrap) transaction
func NewWrapTypeInfo(unwrapped bool, amount *big.Int) TypeInfo {
	return TypeInfo{Type: TransactionTypeWrap, Wrap: &WrapInfo{Unwrapped: unwrapped, Amount: amount}}
}

// UnknownTypeInfo returns the TypeInfo used when the transaction is not classified
func UnknownTypeInfo() TypeInfo {
	return TypeInfo{Type: TransactionTypeUnknown}
}

// IsValid checks the variant field matches the discriminator
func (ti TypeInfo) IsValid() bool {
	switch ti.Type {
	case TransactionTypeApprove:
		return ti.Approve != nil
	case TransactionTypeWrap:
		return ti.Wrap != nil
	case TransactionTypeSwap:
		return ti.Swap != nil
	case TransactionTypeSend:
		return ti.Send != nil
	case TransactionTypeReceive:
		return ti.Receive != nil
	case TransactionTypeOnRampPurchase:
		return ti.OnRampPurchase != nil
	case TransactionTypeOffRampSale:
		return ti.OffRampSale != nil
	case TransactionTypeLpIncentivesClaim:
		return ti.LpIncentivesClaim != nil
	case TransactionTypeUnknown:
		return true
	}
	return false
}

// Copy returns a copy of the TypeInfo with its own variant value
func (ti TypeInfo) Copy() TypeInfo {
	c := ti
	if ti.Approve != nil {
		v := *ti.Approve
		v.Amount = copyBig(ti.Approve.Amount)
		c.Approve = &v
	}
	if ti.Wrap != nil {
		v := *ti.Wrap
		v.Amount = copyBig(ti.Wrap.Amount)
		c.Wrap = &v
	}
	if ti.Swap != nil {
		v := *ti.Swap
		v.InputAmount = copyBig(ti.Swap.InputAmount)
		v.OutputAmount = copyBig(ti.Swap.OutputAmount)
		c.Swap = &v
	}
	if ti.Send != nil {
		v := *ti.Send
		v.Amount = copyBig(ti.Send.Amount)
		c.Send = &v
	}
	if ti.Receive != nil {
		v := *ti.Receive
		v.Amount = copyBig(ti.Receive.Amount)
		c.Receive = &v
	}
	if ti.OnRampPurchase != nil {
		v := *ti.OnRampPurchase
		v.Amount = copyBig(ti.OnRampPurchase.Amount)
		c.OnRampPurchase = &v
	}
	if ti.OffRampSale != nil {
		v := *ti.OffRampSale
		v.Amount = copyBig(ti.OffRampSale.Amount)
		c.OffRampSale = &v
	}
	if ti.LpIncentivesClaim != nil {
		v := *ti.LpIncentivesClaim
		c.LpIncentivesClaim = &v
	}
	return c
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
