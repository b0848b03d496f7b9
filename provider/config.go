package provider

import "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"

// ChainConfig configures the connection to one chain
type ChainConfig struct {
	// ChainID is the EIP-155 chain id
	ChainID uint64 `mapstructure:"ChainID"`

	// Name is used in logs
	Name string `mapstructure:"Name"`

	// URL is the node RPC endpoint. ws:// and wss:// endpoints receive new blocks through
	// eth_subscribe, http endpoints are polled every PollInterval
	URL string `mapstructure:"URL"`

	// PrivateRelayURL is the endpoint private transactions are sent to. Private submissions
	// are rejected when it is empty
	PrivateRelayURL string `mapstructure:"PrivateRelayURL"`

	// PollInterval is the block polling interval of http endpoints
	PollInterval types.Duration `mapstructure:"PollInterval"`

	// RPCTimeout bounds every call to the node
	RPCTimeout types.Duration `mapstructure:"RPCTimeout"`

	// WrappedNativeToken overrides the built-in wrapped native token address of the chain
	WrappedNativeToken string `mapstructure:"WrappedNativeToken"`

	// CircuitBreaker configures the fail-fast protection of the node endpoint
	CircuitBreaker BreakerConfig `mapstructure:"CircuitBreaker"`
}

// BreakerConfig configures a circuit breaker
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures before opening the circuit
	FailureThreshold int `mapstructure:"FailureThreshold"`

	// SuccessThreshold is the number of consecutive successes in half-open state before closing the circuit
	SuccessThreshold int `mapstructure:"SuccessThreshold"`

	// Timeout is how long the circuit stays open before letting a trial request through
	Timeout types.Duration `mapstructure:"Timeout"`
}
