package server

import "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"

// Config of the JSON-RPC server exposing the execution flows
type Config struct {
	// Host is the interface the server listens on
	Host string `mapstructure:"Host"`

	// Port is the TCP port the server listens on
	Port int `mapstructure:"Port"`

	// ReadTimeout bounds reading a request, headers included
	ReadTimeout types.Duration `mapstructure:"ReadTimeout"`

	// WriteTimeout bounds a call from the end of the request read to the end of the response write.
	// It has to cover the slowest flow, private submissions wait for the relay
	WriteTimeout types.Duration `mapstructure:"WriteTimeout"`

	// MaxRequestsPerIPAndSecond is the rate limit applied per client IP
	MaxRequestsPerIPAndSecond float64 `mapstructure:"MaxRequestsPerIPAndSecond"`

	// EnableHttpLog logs a line per served HTTP request
	EnableHttpLog bool `mapstructure:"EnableHttpLog"`

	// BatchRequestsEnabled accepts JSON arrays of calls
	BatchRequestsEnabled bool `mapstructure:"BatchRequestsEnabled"`

	// BatchRequestsLimit is the maximum number of calls of a batch. Zero means no limit
	BatchRequestsLimit uint `mapstructure:"BatchRequestsLimit"`

	// BatchRequestsConcurrency is the number of calls of one batch served at the same time
	BatchRequestsConcurrency uint `mapstructure:"BatchRequestsConcurrency"`

	// WebSocketPath is the path serving the same calls over WebSocket. Empty disables it
	WebSocketPath string `mapstructure:"WebSocketPath"`
}
