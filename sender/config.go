package sender

import (
	"github.com/0xPolygonHermez/zkevm-tx-engine/config/types"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
)

// Config for the tx engine sender
type Config struct {
	// Enabled starts the sender. When disabled, stored payloads are only broadcast by the submitting flow
	Enabled bool `mapstructure:"Enabled"`

	// ResendTxsCheckInterval is the time the sender waits between checks for txs to resend
	ResendTxsCheckInterval types.Duration `mapstructure:"ResendTxsCheckInterval"`

	// ResendInterval is the minimum time since the last broadcast of a pending tx before it is sent again
	ResendInterval types.Duration `mapstructure:"ResendInterval"`

	// Workers is the number of sender workers broadcasting txs
	Workers uint16 `mapstructure:"Workers"`

	// QueueSize is the size of the queue for txs that need to be resent
	QueueSize uint16 `mapstructure:"QueueSize"`

	// SendPolicy is the retry policy of every rebroadcast
	SendPolicy retry.Config `mapstructure:"SendPolicy"`
}
