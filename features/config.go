package features

// Config is the configuration of the capability providers
type Config struct {
	// Enabled lists the features enabled by default
	Enabled []string `mapstructure:"Enabled"`

	// RedisAddr is the address of the redis server holding runtime flags. Empty disables it.
	RedisAddr string `mapstructure:"RedisAddr"`

	// RedisKeyPrefix prefixes the flag keys, e.g. "txengine:feature:" + "execution-v2"
	RedisKeyPrefix string `mapstructure:"RedisKeyPrefix"`
}
