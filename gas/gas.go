package gas

import (
	"fmt"
	"math/big"

	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultAdjustmentFactor is the multiplier applied on a fee bump
const DefaultAdjustmentFactor = 1.2

var (
	// ErrMalformedFeeParameters is returned when the previous attempt carries neither legacy nor EIP-1559 fees
	ErrMalformedFeeParameters = fmt.Errorf("fee parameters have neither gas price nor max fee per gas and max priority fee per gas")
	// ErrInvalidAdjustmentFactor is returned for a non-positive factor
	ErrInvalidAdjustmentFactor = fmt.Errorf("adjustment factor must be greater than zero")
	// ErrFeeOverflow is returned when an adjusted fee does not fit in the 256 bits of a tx fee field
	ErrFeeOverflow = fmt.Errorf("adjusted fee overflows 256 bits")
)

// AdjustGasFee computes the fee parameters of a replacement transaction:
// floor(max(current, previous) * factor) for each fee field present on previous.
// Fields absent from previous are left absent on the result.
func AdjustGasFee(current, previous types.GasFeeParameters, factor float64) (types.GasFeeParameters, error) {
	if previous.IsEmpty() {
		return types.GasFeeParameters{}, ErrMalformedFeeParameters
	}
	if factor <= 0 {
		return types.GasFeeParameters{}, ErrInvalidAdjustmentFactor
	}
	f := decimal.NewFromFloat(factor)

	var (
		adjusted types.GasFeeParameters
		err      error
	)
	if previous.IsLegacy() {
		if adjusted.GasPrice, err = scale(maxBig(current.GasPrice, previous.GasPrice), f); err != nil {
			return types.GasFeeParameters{}, fmt.Errorf("gas price: %w", err)
		}
	}
	if previous.IsEIP1559() {
		if adjusted.MaxFeePerGas, err = scale(maxBig(current.MaxFeePerGas, previous.MaxFeePerGas), f); err != nil {
			return types.GasFeeParameters{}, fmt.Errorf("max fee per gas: %w", err)
		}
		if adjusted.MaxPriorityFeePerGas, err = scale(maxBig(current.MaxPriorityFeePerGas, previous.MaxPriorityFeePerGas), f); err != nil {
			return types.GasFeeParameters{}, fmt.Errorf("max priority fee per gas: %w", err)
		}
	}
	return adjusted, nil
}

// maxBig returns the greater value, ignoring nil operands
func maxBig(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil || a.Cmp(b) > 0 {
		return a
	}
	return b
}

func scale(v *big.Int, factor decimal.Decimal) (*big.Int, error) {
	scaled := decimal.NewFromBigInt(v, 0).Mul(factor).Floor().BigInt()
	if _, overflow := uint256.FromBig(scaled); overflow {
		return nil, fmt.Errorf("%w: %s", ErrFeeOverflow, scaled)
	}
	return scaled, nil
}
