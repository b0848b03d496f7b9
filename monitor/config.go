package monitor

import "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"

// Config for the reconciliation monitor
type Config struct {
	// Workers is the number of monitor workers querying for txs receipts
	Workers uint16 `mapstructure:"Workers"`

	// QueueSize is the size of the queue of pending txs waiting for a worker
	QueueSize uint16 `mapstructure:"QueueSize"`

	// InitialWaitInterval is the time the monitor waits after a tx is recorded before checking its receipt for first time
	InitialWaitInterval types.Duration `mapstructure:"InitialWaitInterval"`

	// RetryWaitInterval is the time the monitor waits before checking again a receipt that still doesn't exist
	RetryWaitInterval types.Duration `mapstructure:"RetryWaitInterval"`

	// TxLifeTimeMax is the time a tx can stay pending without receipt before it is finalized as failed
	TxLifeTimeMax types.Duration `mapstructure:"TxLifeTimeMax"`
}
