package executor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Currency is a native currency or a token of one chain
type Currency struct {
	ChainID uint64         `json:"chainId"`
	Native  bool           `json:"native,omitempty"`
	Address common.Address `json:"address,omitempty"`
}

func (c Currency) String() string {
	if c.Native {
		return fmt.Sprintf("native/%d", c.ChainID)
	}
	return fmt.Sprintf("%s/%d", c.Address.Hex(), c.ChainID)
}

// WrapType is the classification of a currency pair
type WrapType int

const (
	// WrapNotApplicable is any pair that is neither a wrap nor an unwrap
	WrapNotApplicable WrapType = iota
	// WrapWrap turns the native currency into its wrapped token
	WrapWrap
	// WrapUnwrap turns the wrapped token back into the native currency
	WrapUnwrap
)

func (w WrapType) String() string {
	switch w {
	case WrapWrap:
		return "wrap"
	case WrapUnwrap:
		return "unwrap"
	}
	return "not-applicable"
}

// WrappedNativeTokens maps a chain id to the canonical wrapped token of its native currency
type WrappedNativeTokens map[uint64]common.Address

// DefaultWrappedNativeTokens returns the built-in table
func DefaultWrappedNativeTokens() WrappedNativeTokens {
	return WrappedNativeTokens{
		1:        common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		5:        common.HexToAddress("0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6"),
		10:       common.HexToAddress("0x4200000000000000000000000000000000000006"),
		56:       common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		137:      common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"),
		1101:     common.HexToAddress("0x4F9A0e7FD2Bf6067db6994CF12E4495Df938E6e9"),
		8453:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
		42161:    common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		11155111: common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"),
	}
}

// WithOverrides returns a copy of the table where the given entries replace the built-in ones
func (w WrappedNativeTokens) WithOverrides(overrides map[uint64]common.Address) WrappedNativeTokens {
	c := make(WrappedNativeTokens, len(w)+len(overrides))
	for chainID, token := range w {
		c[chainID] = token
	}
	for chainID, token := range overrides {
		c[chainID] = token
	}
	return c
}

// Classify maps every pair to exactly one WrapType. Pairs on different chains, and chains
// missing from the table, are never applicable.
func (w WrappedNativeTokens) Classify(input, output Currency) WrapType {
	if input.ChainID != output.ChainID {
		return WrapNotApplicable
	}
	wrapped, found := w[input.ChainID]
	if !found {
		return WrapNotApplicable
	}
	switch {
	case input.Native && !output.Native && output.Address == wrapped:
		return WrapWrap
	case !input.Native && output.Native && input.Address == wrapped:
		return WrapUnwrap
	}
	return WrapNotApplicable
}

// ClassifyWrap classifies a pair against the built-in table
func ClassifyWrap(input, output Currency) WrapType {
	return DefaultWrappedNativeTokens().Classify(input, output)
}
