package types

import "math/big"

// GasFeeParameters holds either the legacy gas price or the EIP-1559 fee cap pair.
// Values are recomputed on every bump, never mutated in place.
type GasFeeParameters struct {
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
}

// IsLegacy returns true if the legacy gas price is set
func (f GasFeeParameters) IsLegacy() bool {
	return f.GasPrice != nil
}

// IsEIP1559 returns true if both EIP-1559 fields are set
func (f GasFeeParameters) IsEIP1559() bool {
	return f.MaxFeePerGas != nil && f.MaxPriorityFeePerGas != nil
}

// IsEmpty returns true if no fee field is set
func (f GasFeeParameters) IsEmpty() bool {
	return !f.IsLegacy() && !f.IsEIP1559()
}

// Copy returns a deep copy
func (f GasFeeParameters) Copy() GasFeeParameters {
	return GasFeeParameters{
		GasPrice:             copyBig(f.GasPrice),
		MaxFeePerGas:         copyBig(f.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(f.MaxPriorityFeePerGas),
	}
}
