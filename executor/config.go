package executor

import "github.com/0xPolygonHermez/zkevm-tx-engine/retry"

// Config is the configuration of the execution flows
type Config struct {
	// SendPolicy bounds the retries of the network calls of a flow: preparation and broadcast
	SendPolicy retry.Config `mapstructure:"SendPolicy"`

	// PrivateRelayPolicy bounds the wait for the previous private transaction of an account
	// to leave the pending state before a new one is submitted
	PrivateRelayPolicy retry.Config `mapstructure:"PrivateRelayPolicy"`

	// GasBumpFactor is the default multiplier of a speed up. Zero uses the built-in factor
	GasBumpFactor float64 `mapstructure:"GasBumpFactor"`
}
