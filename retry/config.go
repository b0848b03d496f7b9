package retry

import "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"

// Config is the configuration form of a Policy
type Config struct {
	// Retries is the number of attempts allowed after the first one
	Retries int `mapstructure:"Retries"`

	// MinWait is the lower bound of the wait between attempts
	MinWait types.Duration `mapstructure:"MinWait"`

	// MaxWait is the upper bound of the wait between attempts
	MaxWait types.Duration `mapstructure:"MaxWait"`
}

// Policy returns a fresh policy with the configured bounds
func (c Config) Policy() Policy {
	return Policy{
		Retries: c.Retries,
		MinWait: c.MinWait.Duration,
		MaxWait: c.MaxWait.Duration,
	}
}
